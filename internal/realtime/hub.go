// Package realtime pushes domain events to dashboard clients over WebSocket.
package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
	"golang.org/x/net/websocket"
)

const defaultBuffer = 32

// InboundMessage is what a dashboard sends.
type InboundMessage struct {
	Type string `json:"type"` // "ping"
}

// OutboundMessage is what we push to a dashboard.
type OutboundMessage struct {
	Type     string           `json:"type"` // "hello", "event", "pong"
	ClientID string           `json:"client_id,omitempty"`
	Event    *events.Envelope `json:"event,omitempty"`
}

type client struct {
	id     string
	types  map[string]bool
	send   chan OutboundMessage
	closed atomic.Bool
	done   chan struct{}
}

func (c *client) wants(eventType string) bool {
	return len(c.types) == 0 || c.types[eventType]
}

// Hub fans events out to connected WebSocket clients. Clients that cannot
// keep up are disconnected rather than slowing publishers down.
type Hub struct {
	logger *logging.Logger
	buffer int

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, buffer: defaultBuffer, clients: make(map[string]*client)}
}

// WithBuffer overrides the per-client queue length.
func (h *Hub) WithBuffer(n int) *Hub {
	if n > 0 {
		h.buffer = n
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver implements events.Sink.
func (h *Hub) Deliver(_ context.Context, env events.Envelope) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.wants(env.EventType) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		e := env
		select {
		case c.send <- OutboundMessage{Type: "event", Event: &e}:
		default:
			h.logger.Warn("realtime: dropping slow client", "client_id", c.id)
			h.drop(c)
		}
	}
	return nil
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects. The optional "types" query parameter is a comma-separated
// event type filter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request) {
	c := &client{
		id:    uuid.NewString(),
		types: parseTypes(r.URL.Query().Get("types")),
		send:  make(chan OutboundMessage, h.buffer),
		done:  make(chan struct{}),
	}
	c.send <- OutboundMessage{Type: "hello", ClientID: c.id}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	defer h.drop(c)

	h.logger.Info("realtime: client connected", "client_id", c.id, "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := websocket.JSON.Send(conn, msg); err != nil {
					h.logger.Debug("realtime: send failed", "client_id", c.id, "error", err)
					_ = conn.Close()
					return
				}
			case <-c.done:
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("realtime: client disconnected", "client_id", c.id, "error", err)
			break
		}
		if msg.Type == "ping" {
			select {
			case c.send <- OutboundMessage{Type: "pong"}:
			default:
			}
		}
	}
	h.drop(c)
	<-writerDone
}

func (h *Hub) drop(c *client) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.done)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.drop(c)
	}
}

func parseTypes(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}

var _ events.Sink = (*Hub)(nil)
