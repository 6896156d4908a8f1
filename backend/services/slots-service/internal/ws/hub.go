package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/events"
)

// Hub tracks feed clients and fans slot events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.Named("ws"),
	}
}

// Add registers a client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Remove forgets a client.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event to every client subscribed to its station and returns the number of
// clients that accepted it.
func (h *Hub) Broadcast(event events.SlotEvent) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode slot event", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if c.Wants(event.StationID) && c.Send(payload) {
			delivered++
		}
	}
	return delivered
}
