package lobby

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/room"
	"github.com/wricardo/boardgame-relay/game/state"
)

const (
	EventActivePlayers     = "active-players"
	EventChallengeReceived = "challenge-received"
	EventChallengeDeclined = "challenge-declined"
	EventGameStarted       = "game-started"
)

var (
	ErrInvalidName   = errors.New("player name is required")
	ErrNotRegistered = errors.New("player is not registered")
	ErrUnknownPlayer = errors.New("player not found")
	ErrPlayerBusy    = errors.New("player is already in a game")
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	ErrNoChallenge   = errors.New("no pending challenge from that player")
)

// Broadcaster is the slice of the transport the lobby needs
type Broadcaster interface {
	room.Sender
	Broadcast(event string, payload any)
}

// RoomCreator creates empty rooms; *registry.Registry implements it
type RoomCreator interface {
	Create() *room.Room
}

// Player is one presence entry
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	InGame   bool   `json:"inGame"`
}

type ChallengePayload struct {
	ChallengerID   string `json:"challengerId"`
	ChallengerName string `json:"challengerName"`
}

type DeclinedPayload struct {
	PlayerID string `json:"playerId"`
}

type StartedPayload struct {
	GameID   string      `json:"gameId"`
	Opponent string      `json:"opponent"`
	Color    state.Color `json:"color"`
}

// Lobby tracks who is online and brokers direct challenges between them
type Lobby struct {
	mu         sync.Mutex
	players    map[string]*Player
	challenges map[string]map[string]struct{} // target -> challengers
	out        Broadcaster
	rooms      RoomCreator
}

func New(out Broadcaster, rooms RoomCreator) *Lobby {
	return &Lobby{
		players:    make(map[string]*Player),
		challenges: make(map[string]map[string]struct{}),
		out:        out,
		rooms:      rooms,
	}
}

// Register adds or renames connID's presence entry and rebroadcasts the list
func (l *Lobby) Register(connID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidName
	}

	l.mu.Lock()
	if p, ok := l.players[connID]; ok {
		p.Username = username
	} else {
		l.players[connID] = &Player{ID: connID, Username: username}
	}
	list := l.listLocked()
	l.mu.Unlock()

	log.Info().Str("module", "lobby").Str("conn", connID).Str("name", username).Msg("player registered")
	l.out.Broadcast(EventActivePlayers, list)
	return nil
}

// Challenge invites targetID to a game
func (l *Lobby) Challenge(connID, targetID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	challenger, ok := l.players[connID]
	if !ok {
		return ErrNotRegistered
	}
	if connID == targetID {
		return ErrSelfChallenge
	}
	target, ok := l.players[targetID]
	if !ok {
		return ErrUnknownPlayer
	}
	if target.InGame {
		return ErrPlayerBusy
	}

	pending := l.challenges[targetID]
	if pending == nil {
		pending = make(map[string]struct{})
		l.challenges[targetID] = pending
	}
	pending[connID] = struct{}{}

	l.out.Send(targetID, EventChallengeReceived, ChallengePayload{ChallengerID: connID, ChallengerName: challenger.Username})
	return nil
}

// Respond answers a pending challenge. On acceptance a room is created with
// the challenger as White and the responder as Black, and the room is
// returned so the caller can route both connections to it.
func (l *Lobby) Respond(connID, challengerID string, accepted bool) (*room.Room, error) {
	l.mu.Lock()
	responder, ok := l.players[connID]
	if !ok {
		l.mu.Unlock()
		return nil, ErrNotRegistered
	}
	if _, ok := l.challenges[connID][challengerID]; !ok {
		l.mu.Unlock()
		return nil, ErrNoChallenge
	}
	delete(l.challenges[connID], challengerID)

	if !accepted {
		l.mu.Unlock()
		l.out.Send(challengerID, EventChallengeDeclined, DeclinedPayload{PlayerID: connID})
		return nil, nil
	}

	challenger, ok := l.players[challengerID]
	if !ok {
		l.mu.Unlock()
		return nil, ErrUnknownPlayer
	}
	if challenger.InGame || responder.InGame {
		l.mu.Unlock()
		return nil, ErrPlayerBusy
	}
	challenger.InGame = true
	responder.InGame = true
	delete(l.challenges, connID)
	delete(l.challenges, challengerID)
	challengerName, responderName := challenger.Username, responder.Username
	l.mu.Unlock()

	rm := l.rooms.Create()
	if err := l.seat(rm, challengerID, challengerName, responderName, state.White); err != nil {
		l.release(challengerID, connID)
		return nil, err
	}
	if err := l.seat(rm, connID, responderName, challengerName, state.Black); err != nil {
		_ = rm.Disconnect(challengerID)
		l.release(challengerID, connID)
		return nil, err
	}

	log.Info().Str("module", "lobby").Str("room", rm.Code()).Str("white", challengerName).Str("black", responderName).Msg("challenge accepted")
	l.broadcast()
	return rm, nil
}

func (l *Lobby) seat(rm *room.Room, connID, name, opponent string, want state.Color) error {
	color, err := rm.Join(connID, name)
	if err != nil {
		return fmt.Errorf("seating %s: %w", name, err)
	}
	if color != want {
		log.Warn().Str("module", "lobby").Str("room", rm.Code()).Str("name", name).Str("color", string(color)).Msg("unexpected color for challenge seat")
	}
	l.out.Send(connID, EventGameStarted, StartedPayload{GameID: rm.Code(), Opponent: opponent, Color: color})
	return nil
}

func (l *Lobby) release(ids ...string) {
	l.mu.Lock()
	for _, id := range ids {
		if p, ok := l.players[id]; ok {
			p.InGame = false
		}
	}
	l.mu.Unlock()
}

// SetInGame flips connID's busy flag, rebroadcasting when it changes
func (l *Lobby) SetInGame(connID string, inGame bool) {
	l.mu.Lock()
	p, ok := l.players[connID]
	changed := ok && p.InGame != inGame
	if changed {
		p.InGame = inGame
	}
	l.mu.Unlock()

	if changed {
		l.broadcast()
	}
}

// Remove drops connID's presence and any challenges it is part of
func (l *Lobby) Remove(connID string) {
	l.mu.Lock()
	_, ok := l.players[connID]
	delete(l.players, connID)
	delete(l.challenges, connID)
	for _, pending := range l.challenges {
		delete(pending, connID)
	}
	l.mu.Unlock()

	if ok {
		l.broadcast()
	}
}

// List returns the presence list ordered by name
func (l *Lobby) List() []Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listLocked()
}

func (l *Lobby) listLocked() []Player {
	out := make([]Player, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Lobby) broadcast() {
	l.out.Broadcast(EventActivePlayers, l.List())
}
