package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/registry"
	"github.com/wricardo/boardgame-relay/game/room"
)

// Relay decodes inbound events, resolves their rooms and turns failures into
// rejection events. It remembers which room each connection sits in so a
// transport disconnect reaches the right room.
type Relay struct {
	rooms    RoomStore
	lobby    Presence
	out      Transport
	bindings map[string]string // conn -> room code
	mu       sync.Mutex

	events     atomic.Int64
	dropped    atomic.Int64
	rejected   atomic.Int64
	recoveries atomic.Int64
}

// NewRelay wires a relay. lobby may be nil, which disables presence and
// challenges.
func NewRelay(rooms RoomStore, lobby Presence, out Transport) *Relay {
	return &Relay{
		rooms:    rooms,
		lobby:    lobby,
		out:      out,
		bindings: make(map[string]string),
	}
}

// HandleEvent processes one inbound event. It never panics.
func (s *Relay) HandleEvent(connID, event string, data json.RawMessage) {
	s.events.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			s.recoveries.Add(1)
			log.Error().Str("module", "service").Str("conn", connID).Str("event", event).
				Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			s.out.Send(connID, EventError, ErrorPayload{Message: ErrInternalError.Error(), Event: event})
		}
	}()

	if err := s.dispatch(connID, event, data); err != nil {
		s.reject(connID, event, err)
	}
}

func (s *Relay) dispatch(connID, event string, data json.RawMessage) error {
	switch event {
	case EventCreateGame:
		return s.createGame(connID, data)
	case EventJoinGame:
		return s.joinGame(connID, data)
	case EventGameUpdate:
		return s.gameUpdate(connID, data)
	case EventPlayerForfeit:
		return s.withRoom(connID, data, func(rm *room.Room) error { return rm.Forfeit(connID) })
	case EventGameWon:
		return s.gameWon(connID, data)
	case EventRequestRestart:
		return s.withRoom(connID, data, func(rm *room.Room) error { return rm.RequestRestart(connID) })
	case EventRestartAccepted:
		return s.withRoom(connID, data, func(rm *room.Room) error {
			_, err := rm.AcceptRestart(connID)
			return err
		})
	case EventRestartRejected:
		return s.withRoom(connID, data, func(rm *room.Room) error { return rm.RejectRestart(connID) })
	case EventRestartCancelled:
		return s.withRoom(connID, data, func(rm *room.Room) error { return rm.CancelRestart(connID) })
	case EventLeaveGame:
		return s.leaveGame(connID, data)
	case EventRegisterPlayer, EventChallengePlayer, EventChallengeResponse:
		return s.lobbyEvent(connID, event, data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

func (s *Relay) createGame(connID string, data json.RawMessage) error {
	var req CreateGameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	name := normalizeName(req.PlayerName)
	if name == "" {
		return fmt.Errorf("%w: playerName is required", ErrInvalidInput)
	}

	rm := s.rooms.Create()
	if _, err := rm.Join(connID, name); err != nil {
		return err
	}
	s.moveTo(connID, rm.Code())
	return nil
}

func (s *Relay) joinGame(connID string, data json.RawMessage) error {
	var req JoinGameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	code := normalizeCode(req.GameID)
	name := normalizeName(req.PlayerName)
	if code == "" || name == "" {
		return fmt.Errorf("%w: gameId and playerName are required", ErrInvalidInput)
	}

	rm, err := s.rooms.Get(code)
	if err != nil {
		return err
	}
	// a rejected join must leave the sender where it was
	if _, err := rm.Join(connID, name); err != nil {
		return err
	}
	s.moveTo(connID, rm.Code())
	return nil
}

func (s *Relay) gameUpdate(connID string, data json.RawMessage) error {
	var req UpdateRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	rm, err := s.resolve(connID, req.GameID)
	if err != nil {
		return err
	}
	if len(req.GameState) == 0 {
		return fmt.Errorf("%w: gameState is required", room.ErrInvalidState)
	}
	return rm.HandleUpdate(connID, req.GameState)
}

func (s *Relay) gameWon(connID string, data json.RawMessage) error {
	var req WinRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.WinningColor != nil && !req.WinningColor.Valid() {
		return fmt.Errorf("%w: winningColor must be white or black", ErrInvalidInput)
	}
	rm, err := s.resolve(connID, req.GameID)
	if err != nil {
		return err
	}
	return rm.DeclareWinner(connID, req.WinningColor)
}

func (s *Relay) leaveGame(connID string, data json.RawMessage) error {
	var req GameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	rm, err := s.resolve(connID, req.GameID)
	if err != nil {
		return err
	}
	s.unbind(connID, rm.Code())
	if s.lobby != nil {
		s.lobby.SetInGame(connID, false)
	}
	return rm.Disconnect(connID)
}

func (s *Relay) lobbyEvent(connID, event string, data json.RawMessage) error {
	if s.lobby == nil {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	switch event {
	case EventRegisterPlayer:
		var req RegisterRequest
		if err := decodeName(data, &req); err != nil {
			return err
		}
		if err := s.lobby.Register(connID, req.Name()); err != nil {
			return err
		}
		// a player registering from inside a room is busy
		s.pruneStale(connID)
		if _, ok := s.boundTo(connID); ok {
			s.lobby.SetInGame(connID, true)
		}
		return nil
	case EventChallengePlayer:
		var req ChallengeRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		s.pruneStale(req.TargetID)
		return s.lobby.Challenge(connID, req.TargetID)
	default:
		var req ChallengeResponseRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.Accepted {
			s.pruneStale(connID)
			s.pruneStale(req.ChallengerID)
		}
		rm, err := s.lobby.Respond(connID, req.ChallengerID, req.Accepted)
		if err != nil || rm == nil {
			return err
		}
		s.moveTo(connID, rm.Code())
		s.moveTo(req.ChallengerID, rm.Code())
		return nil
	}
}

// withRoom resolves the room named by a {gameId} payload and runs fn on it
func (s *Relay) withRoom(connID string, data json.RawMessage, fn func(*room.Room) error) error {
	var req GameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	rm, err := s.resolve(connID, req.GameID)
	if err != nil {
		return err
	}
	return fn(rm)
}

// resolve finds the room named by code, falling back to the room the
// connection is bound to when no code was sent.
func (s *Relay) resolve(connID, code string) (*room.Room, error) {
	code = normalizeCode(code)
	if code == "" {
		bound, ok := s.boundTo(connID)
		if !ok {
			return nil, fmt.Errorf("%w: gameId is required", ErrInvalidInput)
		}
		code = bound
	}
	return s.rooms.Get(code)
}

// HandleDisconnect tells the connection's room and the lobby it is gone
func (s *Relay) HandleDisconnect(connID string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.recoveries.Add(1)
			log.Error().Str("module", "service").Str("conn", connID).Interface("panic", rec).
				Bytes("stack", debug.Stack()).Msg("recovered from panic during disconnect")
		}
	}()

	s.leaveCurrent(connID)
	if s.lobby != nil {
		s.lobby.Remove(connID)
	}
}

// leaveCurrent disconnects connID from the room it is bound to, if any
func (s *Relay) leaveCurrent(connID string) {
	code, ok := s.boundTo(connID)
	if !ok {
		return
	}
	s.unbind(connID, code)
	if s.lobby != nil {
		s.lobby.SetInGame(connID, false)
	}

	rm, err := s.rooms.Get(code)
	if err != nil {
		// the room already released itself
		return
	}
	if err := rm.Disconnect(connID); err != nil && !errors.Is(err, room.ErrNotInRoom) {
		log.Warn().Err(err).Str("module", "service").Str("conn", connID).Str("room", code).Msg("disconnect failed")
	}
}

// pruneStale forgets a binding whose room has since released itself, so the
// lobby stops treating the player as busy
func (s *Relay) pruneStale(connID string) {
	code, ok := s.boundTo(connID)
	if !ok {
		return
	}
	if _, err := s.rooms.Get(code); errors.Is(err, registry.ErrRoomNotFound) {
		s.unbind(connID, code)
		if s.lobby != nil {
			s.lobby.SetInGame(connID, false)
		}
	}
}

// moveTo binds connID to code after leaving any other room it was bound to
func (s *Relay) moveTo(connID, code string) {
	if current, ok := s.boundTo(connID); ok && current != code {
		s.leaveCurrent(connID)
	}
	s.bind(connID, code)
}

func (s *Relay) bind(connID, code string) {
	s.mu.Lock()
	s.bindings[connID] = code
	s.mu.Unlock()
	if s.lobby != nil {
		s.lobby.SetInGame(connID, true)
	}
}

func (s *Relay) unbind(connID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindings[connID] == code {
		delete(s.bindings, connID)
	}
}

func (s *Relay) boundTo(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.bindings[connID]
	return code, ok
}

// reject maps a failure onto the event the sender should see. Invalid or
// out-of-turn updates are dropped without telling the sender.
func (s *Relay) reject(connID, event string, err error) {
	logger := log.With().Str("module", "service").Str("conn", connID).Str("event", event).Logger()

	switch {
	case errors.Is(err, room.ErrInvalidState):
		s.dropped.Add(1)
		logger.Warn().Err(err).Msg("dropping invalid game state")
		return
	case errors.Is(err, room.ErrNotYourTurn):
		s.dropped.Add(1)
		logger.Debug().Err(err).Msg("dropping out-of-turn update")
		return
	}

	s.rejected.Add(1)
	logger.Info().Err(err).Msg("request rejected")

	name := EventError
	if event == EventJoinGame || event == EventCreateGame {
		name = EventJoinError
	}
	s.out.Send(connID, name, ErrorPayload{Message: err.Error(), Event: event})
}

// Stats returns counters for operators
func (s *Relay) Stats() Stats {
	s.mu.Lock()
	bound := len(s.bindings)
	s.mu.Unlock()

	return Stats{
		Rooms:      s.rooms.Count(),
		Bound:      bound,
		Events:     s.events.Load(),
		Dropped:    s.dropped.Load(),
		Rejected:   s.rejected.Load(),
		Recoveries: s.recoveries.Load(),
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// decodeName accepts a bare string as well as an object for the
// register-player event
func decodeName(data json.RawMessage, req *RegisterRequest) error {
	var name string
	if json.Unmarshal(data, &name) == nil {
		req.PlayerName = name
		return nil
	}
	return decode(data, req)
}

var _ Handler = (*Relay)(nil)
var _ RoomStore = (*registry.Registry)(nil)
