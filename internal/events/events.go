// Package events carries domain events from the verification core to the
// consumers that derive state from them.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/model"
)

type Type string

const (
	LogCreated  Type = "log_created"
	LogApproved Type = "log_approved"
	LogRejected Type = "log_rejected"
)

// Event describes one committed change to a log entry.
type Event struct {
	Type       Type                     `json:"type"`
	LogID      string                   `json:"log_id"`
	UserID     string                   `json:"user_id"`
	FamilyID   string                   `json:"family_id"`
	ActivityID string                   `json:"activity_id"`
	Units      int                      `json:"units"`
	Amount     decimal.Decimal          `json:"amount"`
	Status     model.VerificationStatus `json:"status"`
	LoggedAt   time.Time                `json:"logged_at"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// Key identifies the event for idempotent processing: one log produces at
// most one event of each type.
func (e Event) Key() string {
	return Key(e.LogID, e.Type)
}

func Key(logID string, t Type) string {
	return logID + ":" + string(t)
}

// FromLog builds the event of type t for a committed entry. OccurredAt is
// the verification instant for verdicts and the log time for creations.
func FromLog(t Type, l *model.LogEntry) Event {
	occurred := l.Timestamp
	if l.VerifiedAt != nil {
		occurred = *l.VerifiedAt
	}
	return Event{
		Type:       t,
		LogID:      l.ID,
		UserID:     l.UserID,
		FamilyID:   l.FamilyID,
		ActivityID: l.ActivityID,
		Units:      l.Units,
		Amount:     l.Amount(),
		Status:     l.VerificationStatus,
		LoggedAt:   l.Timestamp,
		OccurredAt: occurred,
	}
}

// Handler consumes events. Handle is called on the publisher's goroutine and
// must not block.
type Handler interface {
	Handle(Event)
}

type HandlerFunc func(Event)

func (f HandlerFunc) Handle(e Event) { f(e) }

// Bus fans events out to its subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers e to every subscriber. A panicking subscriber is logged
// and skipped so it cannot fail the operation that published the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", "type", e.Type, "log_id", e.LogID, "panic", r)
		}
	}()
	h.Handle(e)
}
