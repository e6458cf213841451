package room

import "github.com/wricardo/boardgame-relay/game/state"

// Outbound event names
const (
	EventGameCreated          = "game-created"
	EventGameJoined           = "game-joined"
	EventPlayerJoined         = "player-joined"
	EventGameState            = "game-state"
	EventGameRestarted        = "game-restarted"
	EventGameOver             = "game-over"
	EventGameWon              = "game-won"
	EventGameForfeited        = "game-forfeited"
	EventOpponentForfeit      = "opponent-forfeit"
	EventOpponentDisconnected = "opponent-disconnected"
	EventRestartRequest       = "restart-request"
	EventRestartAccepted      = "restart-accepted"
	EventRestartRejected      = "restart-rejected"
	EventRestartCancelled     = "restart-cancelled"
	EventReturnToMenu         = "return-to-menu"
)

// Sender delivers an event to one connection. Implementations must not block;
// a failed delivery to one connection must not affect the others.
type Sender interface {
	Send(connID string, event string, payload any)
}

// PlayerInfo is the public view of a session
type PlayerInfo struct {
	Name      string      `json:"name"`
	Color     state.Color `json:"color"`
	Connected bool        `json:"connected"`
}

// AdmissionPayload acknowledges create/join to the admitted connection
type AdmissionPayload struct {
	GameID     string       `json:"gameId"`
	Color      state.Color  `json:"color"`
	PlayerName string       `json:"playerName"`
	Players    []PlayerInfo `json:"players"`
}

// PlayerJoinedPayload announces a new roster
type PlayerJoinedPayload struct {
	GameID    string           `json:"gameId"`
	Players   []PlayerInfo     `json:"players"`
	GameState *state.GameState `json:"gameState"`
}

// StatePayload is the per-session copy of the shared state. Color and
// PlayerName describe the receiving session.
type StatePayload struct {
	GameID     string           `json:"gameId"`
	GameState  *state.GameState `json:"gameState"`
	Color      state.Color      `json:"color"`
	PlayerName string           `json:"playerName"`
	Players    []PlayerInfo     `json:"players"`
	Finished   bool             `json:"finished"`
}

// ForfeitPayload is sent to both sides when one of them gives up
type ForfeitPayload struct {
	GameID          string      `json:"gameId"`
	ForfeitingColor state.Color `json:"forfeitingColor"`
	WinningColor    state.Color `json:"winningColor"`
	PlayerName      string      `json:"playerName"`
}

// WinPayload is sent to both sides when a game ends with a winner
type WinPayload struct {
	GameID       string           `json:"gameId"`
	WinningColor state.Color      `json:"winningColor"`
	WinnerName   string           `json:"winnerName"`
	GameState    *state.GameState `json:"gameState"`
}

// DisconnectPayload tells the remaining session who left
type DisconnectPayload struct {
	GameID      string      `json:"gameId"`
	PlayerColor state.Color `json:"playerColor"`
	PlayerName  string      `json:"playerName"`
}

// RestartPayload carries the session that raised, accepted, rejected or
// cancelled a restart
type RestartPayload struct {
	GameID      string      `json:"gameId"`
	PlayerName  string      `json:"playerName"`
	PlayerColor state.Color `json:"playerColor"`
}

// ReturnToMenuPayload is sent when a finished room is torn down
type ReturnToMenuPayload struct {
	GameID string `json:"gameId"`
	Reason string `json:"reason"`
}
