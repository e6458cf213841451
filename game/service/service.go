package service

import (
	"encoding/json"
	"errors"

	"github.com/wricardo/boardgame-relay/game/room"
)

// Inbound event names
const (
	EventCreateGame        = "create-game"
	EventJoinGame          = "join-game"
	EventGameUpdate        = "game-update"
	EventPlayerForfeit     = "player-forfeit"
	EventGameWon           = "game-won"
	EventRequestRestart    = "request-restart"
	EventRestartAccepted   = "restart-accepted"
	EventRestartRejected   = "restart-rejected"
	EventRestartCancelled  = "restart-cancelled"
	EventLeaveGame         = "leave-game"
	EventRegisterPlayer    = "register-player"
	EventChallengePlayer   = "challenge-player"
	EventChallengeResponse = "challenge-response"
)

// Outbound rejection events
const (
	EventError     = "error"
	EventJoinError = "join-error"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrInternalError = errors.New("internal error")
)

// Handler is what a transport drives. *Relay implements it.
type Handler interface {
	HandleEvent(connID, event string, data json.RawMessage)
	HandleDisconnect(connID string)
}

// Transport delivers outbound events. Send must never block.
type Transport interface {
	room.Sender
	Broadcast(event string, payload any)
}

// RoomStore creates and resolves rooms; *registry.Registry implements it
type RoomStore interface {
	Create() *room.Room
	Get(code string) (*room.Room, error)
	Count() int
}

// Presence is the lobby; *lobby.Lobby implements it
type Presence interface {
	Register(connID, username string) error
	Challenge(connID, targetID string) error
	Respond(connID, challengerID string, accepted bool) (*room.Room, error)
	SetInGame(connID string, inGame bool)
	Remove(connID string)
}

// ErrorPayload is the body of error and join-error events
type ErrorPayload struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Stats summarizes relay activity for operators
type Stats struct {
	Rooms      int   `json:"rooms"`
	Bound      int   `json:"boundConnections"`
	Events     int64 `json:"eventsHandled"`
	Dropped    int64 `json:"updatesDropped"`
	Rejected   int64 `json:"requestsRejected"`
	Recoveries int64 `json:"panicsRecovered"`
}
