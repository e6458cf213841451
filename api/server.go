package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/lobby"
	"github.com/wricardo/boardgame-relay/game/registry"
	"github.com/wricardo/boardgame-relay/game/room"
)

// Rooms is the read side of the room registry
type Rooms interface {
	Snapshots() []room.Info
	Get(code string) (*room.Room, error)
	Count() int
}

// Deps are the components the routes delegate to. Players, WebSocket and
// MCP may be nil, which leaves the matching routes unregistered.
type Deps struct {
	Rooms     Rooms
	Players   func() []lobby.Player
	WebSocket http.HandlerFunc
	MCP       http.Handler
	StaticDir string
	Version   string
}

// Server is the HTTP front of the relay
type Server struct {
	deps    Deps
	router  *mux.Router
	started time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestLogger)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{code}", s.handleGetRoom).Methods("GET")
	if s.deps.Players != nil {
		api.HandleFunc("/players", s.handleListPlayers).Methods("GET")
	}

	if s.deps.WebSocket != nil {
		s.router.HandleFunc("/ws", s.deps.WebSocket)
	}
	if s.deps.MCP != nil {
		s.router.Handle("/mcp", s.deps.MCP)
	}

	if s.deps.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.deps.StaticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"rooms":   s.deps.Rooms.Count(),
		"version": s.deps.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	rooms := make([]room.Info, 0)
	for _, info := range s.deps.Rooms.Snapshots() {
		if status == "" || string(info.Status) == status {
			rooms = append(rooms, info)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	rm, err := s.deps.Rooms.Get(code)
	switch {
	case errors.Is(err, registry.ErrRoomNotFound), errors.Is(err, registry.ErrInvalidCode):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, rm.Snapshot())
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players := s.deps.Players()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"players": players,
		"count":   len(players),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// websocket upgrades need the raw writer for hijacking
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug().Str("module", "api").Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("duration", time.Since(start)).Msg("request")
	})
}
