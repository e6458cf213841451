package room

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/state"
)

// MaxSessions is the number of seats in a room
const MaxSessions = 2

// Options configures every room created by a registry
type Options struct {
	Setup        state.Setup
	ForfeitGrace time.Duration
	WinGrace     time.Duration

	// Now defaults to time.Now
	Now func() time.Time
	// Release is called once, with the room lock held, when the room tears
	// itself down. It must not call back into the room.
	Release func(code string)
}

// Room is a two-seat game. All exported methods are safe for concurrent use
// and serialize on the room's mutex, so every read-modify-write of a room is
// atomic with respect to the others.
type Room struct {
	mu sync.Mutex

	code         string
	out          Sender
	opts         Options
	sessions     []*Session
	admissions   int
	state        *state.GameState
	negotiation  Negotiation
	finished     bool
	released     bool
	epoch        uint64
	graceUntil   time.Time
	createdAt    time.Time
	lastActivity time.Time
}

// New creates an empty room waiting for its first player
func New(code string, out Sender, opts Options) *Room {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	return &Room{
		code:         code,
		out:          out,
		opts:         opts,
		sessions:     make([]*Session, 0, MaxSessions),
		state:        opts.Setup.NewGame(nil, state.Waiting),
		createdAt:    now,
		lastActivity: now,
	}
}

// Code returns the room's join code
func (r *Room) Code() string {
	return r.code
}

// Join admits a connection under a display name and returns its color.
// A session already holding the name, or already bound to the connection,
// is replaced. When both seats are taken but one of them is disconnected,
// the disconnected seat is reclaimed.
func (r *Room) Join(connID, name string) (state.Color, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || r.released {
		return "", ErrRoomFinished
	}

	others := make([]*Session, 0, MaxSessions)
	connected := 0
	for _, s := range r.sessions {
		if s.Name == name || s.ID == connID {
			continue
		}
		others = append(others, s)
		if s.Connected {
			connected++
		}
	}
	if connected >= MaxSessions {
		return "", ErrRoomFull
	}
	if len(r.sessions) != len(others) {
		log.Info().Str("module", "room").Str("room", r.code).Str("name", name).Msg("replacing session with the same name")
	}
	for len(others) >= MaxSessions {
		trimmed := evictDisconnected(others)
		if len(trimmed) == len(others) {
			return "", ErrRoomFull
		}
		others = trimmed
	}

	color := state.White
	if len(others) > 0 {
		color = others[0].Color.Opponent()
	}

	now := r.opts.Now()
	s := &Session{ID: connID, Name: name, Color: color, Connected: true, JoinedAt: now}
	r.sessions = append(others, s)
	first := r.admissions == 0
	r.admissions++
	r.negotiation.Reset()
	r.refreshStatusLocked()
	r.touchLocked()

	log.Info().Str("module", "room").Str("room", r.code).Str("conn", connID).Str("name", name).Str("color", string(color)).Msg("player admitted")

	ack := EventGameJoined
	if first {
		ack = EventGameCreated
	}
	players := r.playersLocked()
	r.out.Send(connID, ack, AdmissionPayload{GameID: r.code, Color: color, PlayerName: name, Players: players})
	if !first {
		snapshot := r.state.Clone()
		for _, peer := range r.connectedLocked() {
			r.out.Send(peer.ID, EventPlayerJoined, PlayerJoinedPayload{GameID: r.code, Players: players, GameState: snapshot})
		}
	}
	r.broadcastStateLocked(EventGameState)
	return color, nil
}

// evictDisconnected drops the session that has been gone the longest. The
// slice is returned unchanged when every session is connected.
func evictDisconnected(sessions []*Session) []*Session {
	victim := -1
	for i, s := range sessions {
		if s.Connected {
			continue
		}
		if victim < 0 || s.DisconnectedAt.Before(*sessions[victim].DisconnectedAt) {
			victim = i
		}
	}
	if victim < 0 {
		return sessions
	}
	return append(sessions[:victim:victim], sessions[victim+1:]...)
}

// HandleUpdate reconciles a snapshot submitted by connID. It returns nil when
// the snapshot was accepted and broadcast. ErrInvalidState and ErrNotYourTurn
// mean the update was dropped without touching the room.
func (r *Room) HandleUpdate(connID string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(connID)
	if s == nil || !s.Connected {
		return ErrNotInRoom
	}

	candidate, err := state.DecodeCandidate(raw)
	if r.finished && (err != nil || !candidate.Terminal() || r.state.Winner != nil) {
		return ErrRoomFinished
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.Color != r.state.TurnColor() {
		return ErrNotYourTurn
	}

	r.state = state.Merge(r.state, candidate)
	r.touchLocked()

	if candidate.Terminal() {
		winner := s.Color
		if r.state.Winner != nil {
			winner = *r.state.Winner
		}
		r.winLocked(winner)
		return nil
	}

	r.refreshStatusLocked()
	r.broadcastStateLocked(EventGameState)
	return nil
}

// RequestRestart opens a restart negotiation and asks the opponent
func (r *Room) RequestRestart(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, opp, err := r.pairLocked(connID)
	if err != nil {
		return err
	}
	r.negotiation.Request()
	r.out.Send(opp.ID, EventRestartRequest, RestartPayload{GameID: r.code, PlayerName: s.Name, PlayerColor: s.Color})
	return nil
}

// AcceptRestart records connID's consent. Once both sessions have consented
// the room restarts with a fresh layout and true is returned.
func (r *Room) AcceptRestart(connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, opp, err := r.pairLocked(connID)
	if err != nil {
		return false, err
	}
	if !r.negotiation.Accept(s.ID) {
		r.out.Send(opp.ID, EventRestartAccepted, RestartPayload{GameID: r.code, PlayerName: s.Name, PlayerColor: s.Color})
		return false, nil
	}

	r.epoch++
	r.finished = false
	r.state = r.opts.Setup.NewGame(nil, state.Waiting)
	r.refreshStatusLocked()
	r.touchLocked()
	log.Info().Str("module", "room").Str("room", r.code).Msg("game restarted")
	r.broadcastStateLocked(EventGameRestarted)
	return true, nil
}

// RejectRestart clears all consents and tells the opponent
func (r *Room) RejectRestart(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, opp, err := r.pairLocked(connID)
	if err != nil {
		return err
	}
	r.negotiation.Reset()
	r.out.Send(opp.ID, EventRestartRejected, RestartPayload{GameID: r.code, PlayerName: s.Name, PlayerColor: s.Color})
	return nil
}

// CancelRestart forwards a cancellation to the opponent. Consents already
// given are left alone.
func (r *Room) CancelRestart(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, opp, err := r.pairLocked(connID)
	if err != nil {
		return err
	}
	r.out.Send(opp.ID, EventRestartCancelled, RestartPayload{GameID: r.code, PlayerName: s.Name, PlayerColor: s.Color})
	return nil
}

// Forfeit ends the game in favor of connID's opponent and schedules the room
// for removal after the forfeit grace period.
func (r *Room) Forfeit(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(connID)
	if s == nil || !s.Connected {
		return ErrNotInRoom
	}
	if r.finished {
		return ErrRoomFinished
	}

	winner := s.Color.Opponent()
	r.finishLocked(winner)
	log.Info().Str("module", "room").Str("room", r.code).Str("forfeiter", s.Name).Msg("player forfeited")

	payload := ForfeitPayload{GameID: r.code, ForfeitingColor: s.Color, WinningColor: winner, PlayerName: s.Name}
	for _, peer := range r.connectedLocked() {
		event := EventOpponentForfeit
		if peer.ID == s.ID {
			event = EventGameForfeited
		}
		r.out.Send(peer.ID, event, payload)
	}

	r.scheduleLocked(r.opts.ForfeitGrace, func() {
		r.releaseLocked("forfeit grace elapsed")
	})
	return nil
}

// DeclareWinner ends the game with an explicit winner. A nil winner means
// the declaring session won.
func (r *Room) DeclareWinner(connID string, winner *state.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(connID)
	if s == nil || !s.Connected {
		return ErrNotInRoom
	}
	if r.finished {
		return ErrRoomFinished
	}

	w := s.Color
	if winner != nil {
		w = *winner
	}
	r.touchLocked()
	r.winLocked(w)
	return nil
}

// winLocked finishes the game, announces the winner, and schedules the return
// to menu after the win grace period.
func (r *Room) winLocked(winner state.Color) {
	r.finishLocked(winner)
	log.Info().Str("module", "room").Str("room", r.code).Str("winner", string(winner)).Msg("game won")

	r.broadcastStateLocked(EventGameState)

	payload := WinPayload{GameID: r.code, WinningColor: winner, GameState: r.state.Clone()}
	for _, s := range r.sessions {
		if s.Color == winner {
			payload.WinnerName = s.Name
		}
	}
	for _, peer := range r.connectedLocked() {
		event := EventGameOver
		if peer.Color == winner {
			event = EventGameWon
		}
		r.out.Send(peer.ID, event, payload)
	}

	r.scheduleLocked(r.opts.WinGrace, func() {
		for _, peer := range r.connectedLocked() {
			r.out.Send(peer.ID, EventReturnToMenu, ReturnToMenuPayload{GameID: r.code, Reason: "game over"})
		}
		r.releaseLocked("win grace elapsed")
	})
}

func (r *Room) finishLocked(winner state.Color) {
	r.epoch++
	r.finished = true
	r.state.Status = state.Finished
	r.state.Winner = &winner
	r.negotiation.Reset()
}

// Disconnect marks connID's session as gone. The seat and its color are kept
// for a same-name rejoin. When nobody is left the room finishes and releases
// itself.
func (r *Room) Disconnect(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(connID)
	if s == nil {
		return ErrNotInRoom
	}
	if !s.Connected {
		return nil
	}

	now := r.opts.Now()
	s.Connected = false
	s.DisconnectedAt = &now
	r.negotiation.Reset()
	r.refreshStatusLocked()
	r.touchLocked()

	log.Info().Str("module", "room").Str("room", r.code).Str("conn", connID).Str("name", s.Name).Msg("player disconnected")

	remaining := r.connectedLocked()
	for _, peer := range remaining {
		r.out.Send(peer.ID, EventOpponentDisconnected, DisconnectPayload{GameID: r.code, PlayerColor: s.Color, PlayerName: s.Name})
	}
	if len(remaining) == 0 {
		r.epoch++
		r.finished = true
		r.refreshStatusLocked()
		r.releaseLocked("last player left")
	}
	return nil
}

// Expired reports whether the reaper should remove the room. A finished room
// is left alone until its forfeit or win grace period has run out, so the
// scheduled cleanup gets to notify the players first.
func (r *Room) Expired(now time.Time, idle time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return true
	case r.finished:
		return !now.Before(r.graceUntil)
	default:
		return now.Sub(r.lastActivity) > idle
	}
}

// Shutdown finishes the room without calling Release and returns the
// connections that were still attached so the caller can close them.
func (r *Room) Shutdown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	now := r.opts.Now()
	for _, s := range r.sessions {
		if s.Connected {
			ids = append(ids, s.ID)
			s.Connected = false
			s.DisconnectedAt = &now
		}
	}
	r.epoch++
	r.finished = true
	r.released = true
	r.negotiation.Reset()
	r.refreshStatusLocked()
	return ids
}

// Has reports whether connID holds a seat
func (r *Room) Has(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionLocked(connID) != nil
}

// Info is a point-in-time view of a room for operators
type Info struct {
	Code            string           `json:"code"`
	Status          state.Status     `json:"status"`
	Finished        bool             `json:"finished"`
	Players         []PlayerInfo     `json:"players"`
	PendingConsents int              `json:"pendingConsents"`
	RestartPending  bool             `json:"restartPending"`
	CreatedAt       time.Time        `json:"createdAt"`
	LastActivity    time.Time        `json:"lastActivity"`
	State           *state.GameState `json:"state,omitempty"`
}

// Snapshot returns the room's current Info, including a copy of the state
func (r *Room) Snapshot() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		Code:            r.code,
		Status:          r.state.Status,
		Finished:        r.finished,
		Players:         r.playersLocked(),
		PendingConsents: r.negotiation.Pending(),
		RestartPending:  r.negotiation.Requested(),
		CreatedAt:       r.createdAt,
		LastActivity:    r.lastActivity,
		State:           r.state.Clone(),
	}
}

// scheduleLocked runs fn after d under the room lock, unless the room has
// moved on (restart, teardown) since it was scheduled.
func (r *Room) scheduleLocked(d time.Duration, fn func()) {
	epoch := r.epoch
	r.graceUntil = r.opts.Now().Add(d)
	time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.epoch != epoch || !r.finished || r.released {
			log.Debug().Str("module", "room").Str("room", r.code).Msg("skipping stale scheduled cleanup")
			return
		}
		fn()
	})
}

func (r *Room) releaseLocked(reason string) {
	if r.released {
		return
	}
	r.released = true
	log.Info().Str("module", "room").Str("room", r.code).Str("reason", reason).Msg("room released")
	if r.opts.Release != nil {
		r.opts.Release(r.code)
	}
}

func (r *Room) refreshStatusLocked() {
	switch {
	case r.finished:
		r.state.Status = state.Finished
	case len(r.connectedLocked()) == MaxSessions:
		r.state.Status = state.Playing
	default:
		r.state.Status = state.Waiting
	}
}

func (r *Room) touchLocked() {
	r.lastActivity = r.opts.Now()
}

func (r *Room) sessionLocked(connID string) *Session {
	for _, s := range r.sessions {
		if s.ID == connID {
			return s
		}
	}
	return nil
}

// pairLocked returns connID's session and its connected opponent
func (r *Room) pairLocked(connID string) (*Session, *Session, error) {
	s := r.sessionLocked(connID)
	if s == nil || !s.Connected {
		return nil, nil, ErrNotInRoom
	}
	for _, peer := range r.sessions {
		if peer.ID != s.ID && peer.Connected {
			return s, peer, nil
		}
	}
	return nil, nil, ErrNoOpponent
}

func (r *Room) connectedLocked() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Connected {
			out = append(out, s)
		}
	}
	return out
}

func (r *Room) playersLocked() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.info())
	}
	return out
}

// broadcastStateLocked sends every connected session its own copy of the state
func (r *Room) broadcastStateLocked(event string) {
	players := r.playersLocked()
	snapshot := r.state.Clone()
	for _, s := range r.connectedLocked() {
		r.out.Send(s.ID, event, StatePayload{
			GameID:     r.code,
			GameState:  snapshot,
			Color:      s.Color,
			PlayerName: s.Name,
			Players:    players,
			Finished:   r.finished,
		})
	}
}
