package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32

	// A client may ask for a refresh about once a second, with small bursts.
	requestRate  = rate.Limit(1)
	requestBurst = 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // UI may be served from another origin
	},
}

// Message is the frame exchanged with subscribers in both directions.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Source is what the hub needs from the signal pipeline.
type Source interface {
	Signals() []domain.Signal
	Status() domain.BotStatus
	SimulationMode() bool
	RefreshSignals(ctx context.Context) []domain.Signal
	RefreshStatus(ctx context.Context) domain.BotStatus
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// Handler is the real-time subscriber hub. Broadcast never blocks: a client
// whose buffer is full is disconnected.
type Handler struct {
	source Source
	log    zerolog.Logger
	m      *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHandler(source Source, log zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		source:  source,
		log:     log.With().Str("component", "websocket").Logger(),
		m:       m,
		clients: make(map[string]*client),
	}
}

// Count returns the number of connected subscribers.
func (h *Handler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the event to every subscriber.
func (h *Handler) Broadcast(event string, payload any) {
	frame, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal broadcast")
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("client", c.id).Str("event", event).Msg("subscriber too slow, disconnecting")
		h.remove(c)
	}
}

// Handle upgrades the request and serves the subscriber until it leaves.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(requestRate, requestBurst),
	}

	// Initial snapshots are queued before the client becomes visible to
	// Broadcast so they are always the first frames it sees.
	for _, m := range []Message{
		{Event: domain.EventSignalsUpdate, Data: h.source.Signals()},
		{Event: domain.EventStatusUpdate, Data: h.source.Status()},
		{Event: domain.EventSimulationMode, Data: h.source.SimulationMode()},
	} {
		if frame, err := json.Marshal(m); err == nil {
			c.send <- frame
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.m.Subscribers.Inc()
	h.log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("subscriber connected")

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

// Close disconnects every subscriber.
func (h *Handler) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}

// queue sends a reply to c alone. It is a no-op once c was removed.
func (h *Handler) queue(c *client, event string, payload any) {
	frame, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal reply")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.id] != c {
		return
	}
	select {
	case c.send <- frame:
	default:
		h.log.Warn().Str("client", c.id).Str("event", event).Msg("reply dropped, buffer full")
	}
}

// remove unregisters c and closes its send channel exactly once.
func (h *Handler) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.m.Subscribers.Dec()
		h.log.Info().Str("client", c.id).Msg("subscriber disconnected")
	}
}

func (h *Handler) readPump(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("read error")
			}
			return
		}
		if !c.limiter.Allow() {
			h.log.Debug().Str("client", c.id).Str("event", msg.Event).Msg("request throttled")
			continue
		}

		switch msg.Event {
		case domain.RequestSignals:
			h.queue(c, domain.EventSignalsUpdate, h.source.RefreshSignals(ctx))
		case domain.RequestStatus:
			h.queue(c, domain.EventStatusUpdate, h.source.RefreshStatus(ctx))
		default:
			h.log.Debug().Str("client", c.id).Str("event", msg.Event).Msg("unknown request")
		}
	}
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug().Err(err).Str("client", c.id).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
