// Package feed streams engine events to connected websocket clients.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"battle-tracker/internal/constants"
	"battle-tracker/internal/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var feedEvents = []string{
	constants.EventStatsUpdated,
	constants.EventFiltersApplied,
	constants.EventBattleDeleted,
	constants.EventDataImported,
}

func NewHub(bus *events.Bus, logger zerolog.Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "feed").Logger(),
		clients: map[*client]struct{}{},
	}
	for _, name := range feedEvents {
		bus.On(name, func(payload any) { h.Broadcast(name, payload) })
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, constants.FeedSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("feed client connected")

	go c.writer()
	c.reader(h)
}

// Broadcast queues a message for every client. Clients whose buffer is full
// miss the message rather than stall the caller.
func (h *Hub) Broadcast(typ string, payload any) {
	out, err := json.Marshal(Message{Type: typ, Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", typ).Msg("failed to encode feed message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- out:
		default:
			h.logger.Debug().Str("type", typ).Msg("feed client lagging, message dropped")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reader drains client frames until the connection drops. The feed is one-way.
func (c *client) reader(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(constants.FeedWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
