package websocket

import (
	"sync"

	"itinerary-collab-be/internal/pkg/logger"
)

// Hub tracks every open collaboration connection so they can be counted and
// closed together on shutdown. Document state lives in collab.Registry.
type Hub struct {
	// user id -> connections (multi-tab)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		logger:     log,
	}
}

// Run processes registrations until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.user.ID] = append(h.clients[client.user.ID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"user_id": client.user.ID, "client_id": client.id,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			clients := h.clients[client.user.ID]
			for i, c := range clients {
				if c == client {
					h.clients[client.user.ID] = append(clients[:i], clients[i+1:]...)
					client.closeSend()
					break
				}
			}
			if len(h.clients[client.user.ID]) == 0 {
				delete(h.clients, client.user.ID)
				h.logger.Info("Hub", "User has no connection left", map[string]interface{}{"user_id": client.user.ID})
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Stop ends Run. Connections are left to CloseAll.
func (h *Hub) Stop() {
	close(h.done)
}

// Stats returns the number of connected users and connections.
func (h *Hub) Stats() (users, connections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		connections += len(clients)
	}
	return len(h.clients), connections
}

// CloseAll asks every connection to close. Each one then leaves its session
// through the normal read loop exit.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, c := range clients {
			c.closeSend()
		}
	}
}
