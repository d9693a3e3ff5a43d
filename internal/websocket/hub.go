package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/tallyup/internal/model"
)

// Message is a change notification. FamilyID, UserID and the statuses are
// routing keys matched against each client's Subscription.
type Message struct {
	Type       string                   `json:"type"`
	FamilyID   string                   `json:"family_id"`
	UserID     string                   `json:"user_id,omitempty"`
	LogID      string                   `json:"log_id,omitempty"`
	Status     model.VerificationStatus `json:"status,omitempty"`
	PrevStatus model.VerificationStatus `json:"prev_status,omitempty"`
	Data       any                      `json:"data,omitempty"`
}

// Subscription filters the feed the same way a log query does: family is
// required, user and status narrow it further.
type Subscription struct {
	FamilyID string                   `json:"family_id"`
	UserID   string                   `json:"user_id,omitempty"`
	Status   model.VerificationStatus `json:"status,omitempty"`
}

// Matches reports whether msg belongs in this feed. A status filter also
// lets through messages about logs leaving that status, so a pending queue
// sees entries disappear when they are verified.
func (s Subscription) Matches(msg Message) bool {
	if msg.FamilyID != s.FamilyID {
		return false
	}
	if s.UserID != "" && msg.UserID != s.UserID {
		return false
	}
	if s.Status != "" && msg.Status != s.Status && msg.PrevStatus != s.Status {
		return false
	}
	return true
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client whose subscription matches. It never
// blocks: a client with a full buffer misses the message, and one that keeps
// missing them is disconnected.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.sub.Matches(msg) {
			continue
		}
		if !c.deliver(data) {
			h.logger.Debug("client buffer full, dropping message", "type", msg.Type, "family_id", msg.FamilyID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
