// Package websocket pushes panel events to connected views: session
// changes from the tracker and notification toasts from operations.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event types pushed to panel views
const (
	TypeSession      = "session"
	TypeNotification = "notification"
)

// Event is a single message broadcast to all connected views
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SessionPayload mirrors the gated view state for live updates
type SessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// Hub maintains the set of active clients and broadcasts events
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger

	quit     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub; call Run in a goroutine to start it
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket_hub")),
		quit:       make(chan struct{}),
	}
}

// Run processes register/unregister/broadcast until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client connected", slog.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("client disconnected", slog.Int("clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-h.quit:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Stop shuts the hub down. Idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// Broadcast sends an event to every connected view. Events that fail
// to encode are logged and dropped.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// BroadcastSession pushes the current session state to all views
func (h *Hub) BroadcastSession(authenticated bool, email string) {
	h.Broadcast(Event{
		Type:    TypeSession,
		Payload: SessionPayload{Authenticated: authenticated, Email: email},
	})
}
