package service_test

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/boardgame-relay/game/lobby"
	"github.com/wricardo/boardgame-relay/game/registry"
	"github.com/wricardo/boardgame-relay/game/room"
	"github.com/wricardo/boardgame-relay/game/service"
	"github.com/wricardo/boardgame-relay/game/state"
)

var _ service.Presence = (*lobby.Lobby)(nil)

type outbound struct {
	conn    string
	event   string
	payload any
}

// MockTransport records everything the relay and its rooms send
type MockTransport struct {
	mu   sync.Mutex
	msgs []outbound
}

func (m *MockTransport) Send(conn, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, outbound{conn, event, payload})
}

func (m *MockTransport) Broadcast(event string, payload any) {
	m.Send("*", event, payload)
}

func (m *MockTransport) last(conn, event string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].conn == conn && m.msgs[i].event == event {
			return m.msgs[i].payload, true
		}
	}
	return nil, false
}

func (m *MockTransport) count(conn string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if msg.conn == conn {
			n++
		}
	}
	return n
}

func (m *MockTransport) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = nil
}

type fixture struct {
	relay *service.Relay
	out   *MockTransport
	reg   *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := &MockTransport{}
	opts := registry.DefaultOptions()
	opts.Room = room.Options{
		Setup:        state.DefaultSetup(),
		ForfeitGrace: 20 * time.Millisecond,
		WinGrace:     20 * time.Millisecond,
	}
	reg := registry.New(out, nil, opts)
	return &fixture{
		relay: service.NewRelay(reg, lobby.New(out, reg), out),
		out:   out,
		reg:   reg,
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// start creates a room as alice (conn a) and joins bob (conn b) using a
// lowercase code
func (f *fixture) start(t *testing.T) string {
	t.Helper()
	f.relay.HandleEvent("a", service.EventCreateGame, raw(t, "alice"))
	p, ok := f.out.last("a", room.EventGameCreated)
	require.True(t, ok, "no game-created")
	code := p.(room.AdmissionPayload).GameID

	f.relay.HandleEvent("b", service.EventJoinGame, raw(t, map[string]string{
		"gameId":     strings.ToLower(code),
		"playerName": "bob",
	}))
	_, ok = f.out.last("b", room.EventGameJoined)
	require.True(t, ok, "no game-joined")
	f.out.reset()
	return code
}

func (f *fixture) state(t *testing.T, code string) *state.GameState {
	t.Helper()
	rm, err := f.reg.Get(code)
	require.NoError(t, err)
	return rm.Snapshot().State
}

func TestRelay_CreateGame(t *testing.T) {
	tests := []struct {
		name string
		data json.RawMessage
	}{
		{"bare string", json.RawMessage(`"alice"`)},
		{"object", json.RawMessage(`{"playerName":"alice"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.relay.HandleEvent("a", service.EventCreateGame, tt.data)

			p, ok := f.out.last("a", room.EventGameCreated)
			require.True(t, ok)
			payload := p.(room.AdmissionPayload)
			assert.Regexp(t, `^[A-Z0-9]{5}$`, payload.GameID)
			assert.Equal(t, state.White, payload.Color)
			assert.Equal(t, "alice", payload.PlayerName)
		})
	}
}

func TestRelay_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  json.RawMessage
		reply string
	}{
		{"blank create name", service.EventCreateGame, json.RawMessage(`"  "`), service.EventJoinError},
		{"missing create payload", service.EventCreateGame, nil, service.EventJoinError},
		{"join without code", service.EventJoinGame, json.RawMessage(`{"playerName":"bob"}`), service.EventJoinError},
		{"join without name", service.EventJoinGame, json.RawMessage(`{"gameId":"ABCDE"}`), service.EventJoinError},
		{"join unknown room", service.EventJoinGame, json.RawMessage(`{"gameId":"NOPE1","playerName":"bob"}`), service.EventJoinError},
		{"forfeit without room", service.EventPlayerForfeit, json.RawMessage(`{}`), service.EventError},
		{"unknown event", "launch-missiles", json.RawMessage(`{}`), service.EventError},
		{"bad winner color", service.EventGameWon, json.RawMessage(`{"gameId":"ABCDE","winningColor":"red"}`), service.EventError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.relay.HandleEvent("x", tt.event, tt.data)

			p, ok := f.out.last("x", tt.reply)
			require.True(t, ok, "expected %s", tt.reply)
			assert.NotEmpty(t, p.(service.ErrorPayload).Message)
			assert.Zero(t, f.reg.Count())
		})
	}
}

func TestRelay_JoinFullRoom(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleEvent("c", service.EventJoinGame, raw(t, map[string]string{"gameId": code, "playerName": "carol"}))
	p, ok := f.out.last("c", service.EventJoinError)
	require.True(t, ok)
	assert.Equal(t, room.ErrRoomFull.Error(), p.(service.ErrorPayload).Message)
}

func TestRelay_RejectedJoinKeepsCurrentRoom(t *testing.T) {
	f := newFixture(t)
	full := f.start(t)

	f.relay.HandleEvent("c", service.EventCreateGame, raw(t, "carol"))
	p, ok := f.out.last("c", room.EventGameCreated)
	require.True(t, ok)
	own := p.(room.AdmissionPayload).GameID

	f.relay.HandleEvent("c", service.EventJoinGame, raw(t, map[string]string{"gameId": full, "playerName": "carol"}))
	_, ok = f.out.last("c", service.EventJoinError)
	require.True(t, ok)

	rm, err := f.reg.Get(own)
	require.NoError(t, err)
	assert.True(t, rm.Has("c"))
	assert.Equal(t, []room.PlayerInfo{{Name: "carol", Color: state.White, Connected: true}}, rm.Snapshot().Players)
	assert.Equal(t, 3, f.relay.Stats().Bound)

	t.Run("successful join moves the connection", func(t *testing.T) {
		f.relay.HandleEvent("d", service.EventCreateGame, raw(t, "dave"))
		p, ok := f.out.last("d", room.EventGameCreated)
		require.True(t, ok)
		target := p.(room.AdmissionPayload).GameID

		f.relay.HandleEvent("c", service.EventJoinGame, raw(t, map[string]string{"gameId": target, "playerName": "carol"}))
		_, ok = f.out.last("c", room.EventGameJoined)
		require.True(t, ok)

		// carol was alone in her old room, so it released itself
		_, err := f.reg.Get(own)
		assert.ErrorIs(t, err, registry.ErrRoomNotFound)
		assert.Equal(t, state.Playing, f.state(t, target).Status)
	})
}

func TestRelay_GameUpdateFlow(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	st := f.state(t, code)
	for i, p := range st.BoardPieces {
		if p.Color == state.White {
			st.BoardPieces[i].Position.Row--
			break
		}
	}
	st.IsWhiteTurn = false

	t.Run("out of turn is dropped silently", func(t *testing.T) {
		f.relay.HandleEvent("b", service.EventGameUpdate, raw(t, map[string]any{"gameId": code, "gameState": st}))
		assert.Zero(t, f.out.count("b"))
		assert.Zero(t, f.out.count("a"))
		assert.True(t, f.state(t, code).IsWhiteTurn)
	})

	t.Run("invalid state is dropped silently", func(t *testing.T) {
		f.relay.HandleEvent("a", service.EventGameUpdate, raw(t, map[string]any{"gameId": code, "gameState": map[string]any{"isWhiteTurn": false}}))
		assert.Zero(t, f.out.count("a"))
		assert.True(t, f.state(t, code).IsWhiteTurn)
	})

	t.Run("in turn is broadcast", func(t *testing.T) {
		f.relay.HandleEvent("a", service.EventGameUpdate, raw(t, map[string]any{"gameId": code, "gameState": st}))
		p, ok := f.out.last("b", room.EventGameState)
		require.True(t, ok)
		payload := p.(room.StatePayload)
		assert.False(t, payload.GameState.IsWhiteTurn)
		assert.Equal(t, state.Black, payload.Color)
	})

	stats := f.relay.Stats()
	assert.EqualValues(t, 2, stats.Dropped)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 2, stats.Bound)
}

func TestRelay_RestartBothConsent(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)
	req := raw(t, map[string]string{"gameId": code})

	f.relay.HandleEvent("a", service.EventRequestRestart, req)
	_, ok := f.out.last("b", room.EventRestartRequest)
	require.True(t, ok)

	f.relay.HandleEvent("b", service.EventRestartAccepted, req)
	f.relay.HandleEvent("a", service.EventRestartAccepted, req)

	for conn, color := range map[string]state.Color{"a": state.White, "b": state.Black} {
		p, ok := f.out.last(conn, room.EventGameRestarted)
		require.True(t, ok, conn)
		assert.Equal(t, color, p.(room.StatePayload).Color)
		assert.False(t, p.(room.StatePayload).Finished)
	}
}

func TestRelay_ForfeitRemovesRoomAfterGrace(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleEvent("a", service.EventPlayerForfeit, raw(t, map[string]string{"gameId": code}))

	p, ok := f.out.last("b", room.EventOpponentForfeit)
	require.True(t, ok)
	assert.Equal(t, state.Black, p.(room.ForfeitPayload).WinningColor)

	assert.Eventually(t, func() bool {
		_, err := f.reg.Get(code)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	f.relay.HandleEvent("c", service.EventJoinGame, raw(t, map[string]string{"gameId": code, "playerName": "carol"}))
	p, ok = f.out.last("c", service.EventJoinError)
	require.True(t, ok)
	assert.Equal(t, registry.ErrRoomNotFound.Error(), p.(service.ErrorPayload).Message)
}

func TestRelay_GameWonWithoutGameID(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	// the bound room is used when gameId is omitted
	f.relay.HandleEvent("b", service.EventGameWon, json.RawMessage(`{}`))
	p, ok := f.out.last("b", room.EventGameWon)
	require.True(t, ok)
	assert.Equal(t, "bob", p.(room.WinPayload).WinnerName)
	_, ok = f.out.last("a", room.EventGameOver)
	assert.True(t, ok)
}

func TestRelay_DisconnectReachesRoom(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleDisconnect("a")
	_, ok := f.out.last("b", room.EventOpponentDisconnected)
	require.True(t, ok)
	assert.Equal(t, state.Waiting, f.state(t, code).Status)

	f.relay.HandleDisconnect("b")
	_, err := f.reg.Get(code)
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)
	assert.Zero(t, f.relay.Stats().Bound)
}

func TestRelay_LeaveGame(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleEvent("b", service.EventLeaveGame, raw(t, map[string]string{"gameId": code}))
	_, ok := f.out.last("a", room.EventOpponentDisconnected)
	assert.True(t, ok)
	assert.Equal(t, 1, f.relay.Stats().Bound)
}

func TestRelay_CreatingAgainLeavesPreviousRoom(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleEvent("a", service.EventCreateGame, raw(t, "alice"))
	_, ok := f.out.last("b", room.EventOpponentDisconnected)
	assert.True(t, ok)
	assert.Equal(t, 2, f.reg.Count())
	assert.Equal(t, state.Waiting, f.state(t, code).Status)
}

func TestRelay_ChallengeFlow(t *testing.T) {
	f := newFixture(t)

	f.relay.HandleEvent("a", service.EventRegisterPlayer, raw(t, "alice"))
	f.relay.HandleEvent("b", service.EventRegisterPlayer, raw(t, map[string]string{"playerName": "bob"}))
	p, ok := f.out.last("*", lobby.EventActivePlayers)
	require.True(t, ok)
	assert.Len(t, p, 2)

	f.relay.HandleEvent("a", service.EventChallengePlayer, raw(t, map[string]string{"targetId": "b"}))
	_, ok = f.out.last("b", lobby.EventChallengeReceived)
	require.True(t, ok)

	f.relay.HandleEvent("b", service.EventChallengeResponse, raw(t, map[string]any{"challengerId": "a", "accepted": true}))
	p, ok = f.out.last("a", lobby.EventGameStarted)
	require.True(t, ok)
	code := p.(lobby.StartedPayload).GameID
	assert.Equal(t, 2, f.relay.Stats().Bound)

	// bound connections can play without repeating the code
	f.relay.HandleEvent("b", service.EventPlayerForfeit, json.RawMessage(`{}`))
	p, ok = f.out.last("a", room.EventOpponentForfeit)
	require.True(t, ok)
	assert.Equal(t, code, p.(room.ForfeitPayload).GameID)
}

func TestRelay_PlayerInRoomIsBusyInLobby(t *testing.T) {
	f := newFixture(t)
	code := f.start(t)

	f.relay.HandleEvent("a", service.EventRegisterPlayer, raw(t, "alice"))
	f.relay.HandleEvent("c", service.EventRegisterPlayer, raw(t, "carol"))

	p, ok := f.out.last("*", lobby.EventActivePlayers)
	require.True(t, ok)
	players := p.([]lobby.Player)
	require.Len(t, players, 2)
	assert.Equal(t, lobby.Player{ID: "a", Username: "alice", InGame: true}, players[0])

	t.Run("cannot be challenged", func(t *testing.T) {
		f.relay.HandleEvent("c", service.EventChallengePlayer, raw(t, map[string]string{"targetId": "a"}))
		p, ok := f.out.last("c", service.EventError)
		require.True(t, ok)
		assert.Equal(t, lobby.ErrPlayerBusy.Error(), p.(service.ErrorPayload).Message)
		_, ok = f.out.last("a", lobby.EventChallengeReceived)
		assert.False(t, ok)
	})

	t.Run("cannot start a game from a challenge", func(t *testing.T) {
		f.out.reset()
		f.relay.HandleEvent("a", service.EventChallengePlayer, raw(t, map[string]string{"targetId": "c"}))
		_, ok := f.out.last("c", lobby.EventChallengeReceived)
		require.True(t, ok)

		f.relay.HandleEvent("c", service.EventChallengeResponse, raw(t, map[string]any{"challengerId": "a", "accepted": true}))
		p, ok := f.out.last("c", service.EventError)
		require.True(t, ok)
		assert.Equal(t, lobby.ErrPlayerBusy.Error(), p.(service.ErrorPayload).Message)
		assert.Equal(t, 1, f.reg.Count())
	})

	t.Run("disconnect still reaches the room", func(t *testing.T) {
		f.relay.HandleDisconnect("a")
		_, ok := f.out.last("b", room.EventOpponentDisconnected)
		require.True(t, ok)
		assert.Equal(t, state.Waiting, f.state(t, code).Status)
	})
}

type panickyStore struct{ service.RoomStore }

func (panickyStore) Create() *room.Room { panic("boom") }

func (panickyStore) Count() int { return 0 }

func TestRelay_RecoversFromPanics(t *testing.T) {
	out := &MockTransport{}
	relay := service.NewRelay(panickyStore{}, nil, out)

	assert.NotPanics(t, func() {
		relay.HandleEvent("a", service.EventCreateGame, json.RawMessage(`"alice"`))
	})
	p, ok := out.last("a", service.EventError)
	require.True(t, ok)
	assert.Equal(t, service.ErrInternalError.Error(), p.(service.ErrorPayload).Message)
	assert.EqualValues(t, 1, relay.Stats().Recoveries)
}
