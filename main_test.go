package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/boardgame-relay/game/config"
	"github.com/wricardo/boardgame-relay/game/room"
	"github.com/wricardo/boardgame-relay/game/state"
	"github.com/wricardo/boardgame-relay/transport/websocket"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "Board Game Relay", AppName)
}

// parseSettings runs the root command with args and returns the settings
// the serve action would have used.
func parseSettings(t *testing.T, args ...string) (*config.Settings, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var (
		settings *config.Settings
		loadErr  error
	)
	app := newApp()
	app.Action = func(ctx context.Context, cmd *cli.Command) error {
		settings, loadErr = loadSettings(cmd)
		return nil
	}
	require.NoError(t, app.Run(context.Background(), append([]string{"boardgame-relay"}, args...)))
	return settings, loadErr
}

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := parseSettings(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, settings.Server.Port)
	assert.Equal(t, "info", settings.Log.Level)
	assert.Equal(t, "console", settings.Log.Format)
	assert.False(t, settings.Ngrok.Enabled)
}

func TestLoadSettings_FlagsOverride(t *testing.T) {
	settings, err := parseSettings(t,
		"--host", "127.0.0.1",
		"--port", "9090",
		"--debug",
		"--log-format", "json",
		"--ngrok",
		"--ngrok-domain", "relay.example.dev",
	)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", settings.Server.Addr())
	assert.Equal(t, "debug", settings.Log.Level)
	assert.Equal(t, "json", settings.Log.Format)
	assert.True(t, settings.Ngrok.Enabled)
	assert.Equal(t, "relay.example.dev", settings.Ngrok.Domain)
}

func TestLoadSettings_InvalidOverride(t *testing.T) {
	_, err := parseSettings(t, "--port", "70000")
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = parseSettings(t, "--log-format", "xml")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadSettings_MissingConfigFile(t *testing.T) {
	_, err := parseSettings(t, "--config", "does-not-exist.yaml")
	require.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run(context.Background(), []string{"boardgame-relay", "version"}))
	assert.Equal(t, "Board Game Relay v1.0.0\n", out.String())
}

func TestSetupLogging(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	setupLogging(&buf, config.LogSettings{Level: "debug", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Str("module", "test").Msg("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "test", line["module"])

	setupLogging(&buf, config.LogSettings{Level: "bogus", Format: "console"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	t.Chdir(t.TempDir())
	settings, err := config.Load("")
	require.NoError(t, err)
	return settings
}

func dialRelay(t *testing.T, srv *httptest.Server) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame := readEvent(t, conn)
	require.Equal(t, websocket.EventConnected, frame.Event)
	return conn
}

func readEvent(t *testing.T, conn *gorillaws.Conn) websocket.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame websocket.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// awaitEvent reads frames until one named event arrives
func awaitEvent(t *testing.T, conn *gorillaws.Conn, event string) websocket.Frame {
	t.Helper()
	for {
		frame := readEvent(t, conn)
		if frame.Event == event {
			return frame
		}
	}
}

func sendEvent(t *testing.T, conn *gorillaws.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(websocket.Frame{Event: event, Data: raw}))
}

func TestRelay_CreateAndJoinOverWebSocket(t *testing.T) {
	rl := newRelay(testSettings(t))
	srv := httptest.NewServer(rl.handler)
	t.Cleanup(func() {
		rl.shutdown()
		srv.Close()
	})

	host := dialRelay(t, srv)
	sendEvent(t, host, "create-game", map[string]string{"playerName": "alice"})

	created := readEvent(t, host)
	require.Equal(t, room.EventGameCreated, created.Event)
	var admission room.AdmissionPayload
	require.NoError(t, json.Unmarshal(created.Data, &admission))
	assert.Equal(t, state.White, admission.Color)
	require.NotEmpty(t, admission.GameID)

	guest := dialRelay(t, srv)
	sendEvent(t, guest, "join-game", map[string]string{"gameId": strings.ToLower(admission.GameID), "playerName": "bob"})

	joined := readEvent(t, guest)
	require.Equal(t, room.EventGameJoined, joined.Event)
	var guestAdmission room.AdmissionPayload
	require.NoError(t, json.Unmarshal(joined.Data, &guestAdmission))
	assert.Equal(t, state.Black, guestAdmission.Color)
	assert.Equal(t, admission.GameID, guestAdmission.GameID)

	notice := awaitEvent(t, host, room.EventPlayerJoined)
	var joinedPayload room.PlayerJoinedPayload
	require.NoError(t, json.Unmarshal(notice.Data, &joinedPayload))
	assert.Len(t, joinedPayload.Players, 2)

	resp, err := http.Get(srv.URL + "/api/rooms/" + admission.GameID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var info room.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Len(t, info.Players, 2)

	stats := rl.service.Stats()
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 2, rl.hub.Count())
}

func TestRelay_HealthAndMCPRoutes(t *testing.T) {
	rl := newRelay(testSettings(t))
	srv := httptest.NewServer(rl.handler)
	t.Cleanup(func() {
		rl.shutdown()
		srv.Close()
	})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
	resp, err = http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rpc struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	var names []string
	for _, tool := range rpc.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_rooms", "get_room", "list_players", "relay_stats"}, names)
}

func TestRunServer_StopsOnCancel(t *testing.T) {
	settings := testSettings(t)
	settings.Server.Host = "127.0.0.1"
	settings.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, settings, runOptions{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
