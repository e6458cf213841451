package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/room"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidCode  = errors.New("invalid room code")
)

// Closer force-closes transport connections. The websocket hub implements it.
type Closer interface {
	Close(connID string)
}

// Options configures a Registry
type Options struct {
	CodeLength   int
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	Room         room.Options
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		CodeLength:   DefaultCodeLength,
		IdleTimeout:  30 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Registry owns every live room, keyed by uppercase code
type Registry struct {
	rooms  map[string]*room.Room
	out    room.Sender
	closer Closer
	opts   Options
	gen    Generator
	mu     sync.RWMutex
}

// New creates an empty registry. Rooms it creates send through out; the
// reaper closes lingering connections through closer, which may be nil.
func New(out room.Sender, closer Closer, opts Options) *Registry {
	if opts.Room.Now == nil {
		opts.Room.Now = time.Now
	}
	return &Registry{
		rooms:  make(map[string]*room.Room),
		out:    out,
		closer: closer,
		opts:   opts,
		gen:    Generator{Length: opts.CodeLength},
	}
}

// Create registers a new empty room under a fresh code
func (r *Registry) Create() *room.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.gen.Generate(func(c string) bool {
		_, taken := r.rooms[c]
		return taken
	})

	opts := r.opts.Room
	opts.Release = func(code string) { r.remove(code) }
	rm := room.New(code, r.out, opts)
	r.rooms[code] = rm

	log.Info().Str("module", "registry").Str("room", code).Int("rooms", len(r.rooms)).Msg("room created")
	return rm
}

// Get looks up a room by code, ignoring case and surrounding whitespace
func (r *Registry) Get(code string) (*room.Room, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	r.mu.RLock()
	rm, ok := r.rooms[code]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

// Remove drops a room from the registry without touching the room itself
func (r *Registry) Remove(code string) error {
	if !r.remove(Normalize(code)) {
		return ErrRoomNotFound
	}
	return nil
}

func (r *Registry) remove(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[code]; !ok {
		return false
	}
	delete(r.rooms, code)
	log.Debug().Str("module", "registry").Str("room", code).Int("rooms", len(r.rooms)).Msg("room removed")
	return true
}

// List returns the live rooms ordered by code
func (r *Registry) List() []*room.Room {
	r.mu.RLock()
	out := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

// Snapshots returns Info for every live room. The registry lock is released
// before any room is read.
func (r *Registry) Snapshots() []room.Info {
	rooms := r.List()
	out := make([]room.Info, 0, len(rooms))
	for _, rm := range rooms {
		info := rm.Snapshot()
		info.State = nil
		out = append(out, info)
	}
	return out
}

// Count returns the number of live rooms
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sweep removes rooms that are finished or idle longer than the configured
// timeout, closing connections still attached to them. It returns how many
// rooms were removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, rm := range r.List() {
		if !rm.Expired(now, r.opts.IdleTimeout) {
			continue
		}

		conns := rm.Shutdown()
		r.mu.Lock()
		if r.rooms[rm.Code()] == rm {
			delete(r.rooms, rm.Code())
			removed++
		}
		r.mu.Unlock()

		if r.closer != nil {
			for _, id := range conns {
				r.closer.Close(id)
			}
		}
		log.Info().Str("module", "registry").Str("room", rm.Code()).Int("closed", len(conns)).Msg("reaped room")
	}
	return removed
}

// Run sweeps every ReapInterval until ctx is done
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.opts.Room.Now()); n > 0 {
				log.Info().Str("module", "registry").Int("removed", n).Int("remaining", r.Count()).Msg("reaper sweep")
			}
		}
	}
}

// Shutdown finishes every room and closes their connections
func (r *Registry) Shutdown() {
	for _, rm := range r.List() {
		conns := rm.Shutdown()
		r.remove(rm.Code())
		if r.closer != nil {
			for _, id := range conns {
				r.closer.Close(id)
			}
		}
	}
}
