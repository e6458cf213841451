package websocket

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/service"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 64 * 1024
	defaultSendBuffer = 256

	// EventConnected tells a client the id other players can challenge it by
	EventConnected = "connected"
)

// Options configures a Hub
type Options struct {
	// AllowedOrigins lists accepted Origin headers. Empty allows every origin.
	AllowedOrigins []string
	ReadLimit      int64
	PingPeriod     time.Duration
	SendBuffer     int

	// EventsPerSecond and Burst limit inbound events per connection. A zero
	// rate disables limiting.
	EventsPerSecond float64
	Burst           int
}

// Frame is the envelope of every message in both directions
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConnectedPayload is sent once right after the upgrade
type ConnectedPayload struct {
	ConnID string `json:"connId"`
}

// Client is one websocket connection
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	limiter     *rate.Limiter
	remote      string
	connectedAt time.Time
}

// Hub tracks live connections, feeds their inbound frames to a handler and
// delivers outbound events without blocking the caller.
type Hub struct {
	clients  map[string]*Client
	handler  service.Handler
	opts     Options
	upgrader websocket.Upgrader
	mu       sync.RWMutex

	dropped atomic.Int64
}

// NewHub creates a hub. SetHandler must be called before serving.
func NewHub(opts Options) *Hub {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}

	h := &Hub{
		clients: make(map[string]*Client),
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetHandler installs the consumer of inbound events
func (h *Hub) SetHandler(handler service.Handler) {
	h.handler = handler
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// ServeWS upgrades the request and starts the connection's pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, h.opts.SendBuffer),
		id:          uuid.NewString(),
		remote:      r.RemoteAddr,
		connectedAt: time.Now(),
	}
	if h.opts.EventsPerSecond > 0 {
		burst := h.opts.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), burst)
	}

	h.register(client)
	h.Send(client.id, EventConnected, ConnectedPayload{ConnID: client.id})

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("module", "ws").Str("conn", c.id).Str("remote", c.remote).Int("clients", total).Msg("client connected")
}

// detach removes the client and closes its send channel, which makes the
// write pump close the socket. It reports whether the client was still
// registered.
func (h *Hub) detach(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	delete(h.clients, connID)
	close(c.send)
	return true
}

// Send queues an event for one connection. It never blocks: a connection
// whose buffer is full is dropped.
func (h *Hub) Send(connID, event string, payload any) {
	data, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("failed to marshal outbound event")
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	queued := false
	if ok {
		select {
		case c.send <- data:
			queued = true
		default:
		}
	}
	h.mu.RUnlock()

	if ok && !queued {
		h.dropped.Add(1)
		log.Warn().Str("module", "ws").Str("conn", connID).Str("event", event).Msg("send buffer full, closing connection")
		h.Close(connID)
	}
}

// Broadcast queues an event for every connection
func (h *Hub) Broadcast(event string, payload any) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Send(id, event, payload)
	}
}

// Close force-closes a connection. The handler still sees the disconnect
// once the read pump notices.
func (h *Hub) Close(connID string) {
	if h.detach(connID) {
		log.Info().Str("module", "ws").Str("conn", connID).Msg("closing connection")
	}
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many connections were closed for falling behind
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Close(id)
	}
}

// readPump feeds inbound frames to the handler until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c.id)
		c.conn.Close()
		if c.hub.handler != nil {
			c.hub.handler.HandleDisconnect(c.id)
		}
		log.Info().Str("module", "ws").Str("conn", c.id).Dur("duration", time.Since(c.connectedAt)).Msg("client disconnected")
	}()

	pongWait := c.hub.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(c.hub.opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "ws").Str("conn", c.id).Msg("websocket error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.Send(c.id, service.EventError, service.ErrorPayload{Message: "rate limit exceeded"})
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.hub.Send(c.id, service.EventError, service.ErrorPayload{Message: "malformed frame"})
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleEvent(c.id, frame.Event, frame.Data)
		}
	}
}

// writePump delivers queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
