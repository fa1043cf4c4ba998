package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "stream_live_connections",
	Help: "The current number of connected event stream observers",
})

// sender is the subset of *websocket.Conn the hub writes through; tests
// substitute failing implementations.
type sender interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection is one live observer. It is owned by the hub from Connect
// until Disconnect; a failed write is treated as an implicit disconnect.
type Connection struct {
	ID          string
	ClientType  string
	RemoteAddr  string
	ConnectedAt time.Time

	conn sender

	mu   sync.Mutex
	subs map[string]struct{} // empty = all kinds
}

// SetSubscriptions replaces the connection's kind filter. An empty list
// reverts to "all kinds".
func (c *Connection) SetSubscriptions(kinds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		c.subs[k] = struct{}{}
	}
}

func (c *Connection) wants(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[kind]
	return ok
}

// write serializes concurrent writers; gorilla connections support only
// one writer at a time.
func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub is the broadcast channel for live dashboard observers. It holds no
// history: observers only see events routed while they are connected.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	conns map[*Connection]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[*Connection]struct{}),
	}
}

func (h *Hub) Connect(conn sender, clientType, remoteAddr string) *Connection {
	c := &Connection{
		ID:          uuid.NewString(),
		ClientType:  clientType,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	liveConnections.Inc()

	h.log.Info("observer connected", "client_type", clientType, "remote_addr", remoteAddr)
	return c
}

func (h *Hub) Disconnect(c *Connection) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if present {
		liveConnections.Dec()
		_ = c.conn.Close()
		h.log.Info("observer disconnected", "client_type", c.ClientType)
	}
}

// Broadcast fans a routed event out to every observer whose filter
// matches kind. The message is serialized once; a write failure removes
// only the failing connection and never interrupts delivery to the rest.
func (h *Hub) Broadcast(kind string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.wants(kind) {
			continue
		}
		if err := c.write(data); err != nil {
			h.log.Warn("dropping observer after failed write", "client_type", c.ClientType, "error", err)
			h.Disconnect(c)
		}
	}
}

// SendTo writes a control message to a single observer, bypassing its
// kind filter. A failed write disconnects the observer.
func (h *Hub) SendTo(c *Connection, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal message", "error", err)
		return
	}
	if err := c.write(data); err != nil {
		h.log.Warn("dropping observer after failed write", "client_type", c.ClientType, "error", err)
		h.Disconnect(c)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
