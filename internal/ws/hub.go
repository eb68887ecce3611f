package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Hub fans kiosk events out to connected displays. A display either
// follows one session or, with an empty session, all of them.
type Hub struct {
	clients    map[*Client]bool
	sessions   map[string]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.sessions[client.sessionID], client)
	if len(h.sessions[client.sessionID]) == 0 {
		delete(h.sessions, client.sessionID)
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) deliver(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make([]*Client, 0)
	for client := range h.sessions[""] {
		targets = append(targets, client)
	}
	if event.SessionID != "" {
		for client := range h.sessions[event.SessionID] {
			targets = append(targets, client)
		}
	}

	for _, client := range targets {
		select {
		case client.send <- message:
		default:
			// slow display; drop it rather than block the kiosk
			h.dropLocked(client)
		}
	}
}

// join registers client unless the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event without blocking. Events are dropped when the
// queue is full.
func (h *Hub) Publish(sessionID string, eventType EventType, data interface{}) {
	event := Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

// ConnectedClients counts displays following sessionID; "" counts the
// displays following everything.
func (h *Hub) ConnectedClients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}
