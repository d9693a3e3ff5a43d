package websocket

import (
	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/gamification"
	"github.com/dukerupert/tallyup/internal/model"
)

const TypeStatsUpdated = "stats_updated"

// Notifier turns domain events and stats updates into feed messages.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Handle implements events.Handler.
func (n *Notifier) Handle(e events.Event) {
	msg := Message{
		Type:     string(e.Type),
		FamilyID: e.FamilyID,
		UserID:   e.UserID,
		LogID:    e.LogID,
		Status:   e.Status,
		Data:     e,
	}
	if e.Type != events.LogCreated {
		msg.PrevStatus = model.StatusPending
	}
	n.hub.Broadcast(msg)
}

// StatsUpdated matches the gamification pipeline's Updated hook.
func (n *Notifier) StatsUpdated(st model.UserGameStats, e events.Event, out gamification.Outcome) {
	n.hub.Broadcast(Message{
		Type:     TypeStatsUpdated,
		FamilyID: e.FamilyID,
		UserID:   st.UserID,
		LogID:    e.LogID,
		Data: map[string]any{
			"stats":   gamification.View(st),
			"outcome": out,
		},
	})
}
