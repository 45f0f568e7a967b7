package ws

import (
	"sync"

	"go.uber.org/zap"

	"zing-server/internal/logger"
)

// Hub maintains the set of active client sessions.
type Hub struct {
	// Registered clients by session ID
	clients map[string]*Client

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if existing, ok := h.clients[client.SessionID]; ok {
				// A second connection for the same session evicts the
				// prior one.
				existing.Close()
			}
			h.clients[client.SessionID] = client
			h.mu.Unlock()
			logger.Get().Debug("client registered", zap.String("session_id", client.SessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.clients[client.SessionID]; ok {
				if existing == client {
					delete(h.clients, client.SessionID)
					logger.Get().Debug("client unregistered", zap.String("session_id", client.SessionID))
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// Stop terminates the event loop; used by tests.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// GetClient returns a client by session ID.
func (h *Hub) GetClient(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

// FindByPlayer returns the live session stamped with the given player id,
// or nil when the player is offline.
func (h *Hub) FindByPlayer(playerID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.PlayerID() == playerID {
			return c
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
