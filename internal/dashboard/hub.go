package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

const (
	// PingInterval and PongWait are the websocket heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	// EventAction is the websocket event carrying one action log entry.
	EventAction = "action"

	sendBuffer = 64
)

// WSMessage is the websocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub fans action entries out to every connected dashboard.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a dashboard hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) newClient(adminID int64) *Client {
	return &Client{ID: uuid.New().String(), AdminID: adminID, hub: h, send: make(chan WSMessage, sendBuffer)}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard client connected", zap.String("client_id", c.ID), zap.Int64("admin_id", c.AdminID), zap.Int("clients", n))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard client disconnected", zap.String("client_id", c.ID))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAction pushes entry to every client. Slow clients miss messages
// rather than block the publisher.
func (h *Hub) BroadcastAction(entry *models.ActionLog) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	msg := WSMessage{Event: EventAction, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("dashboard client buffer full", zap.String("client_id", c.ID))
		}
	}
}
