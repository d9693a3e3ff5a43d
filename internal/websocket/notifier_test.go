package websocket

import (
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/gamification"
	"github.com/dukerupert/tallyup/internal/model"
)

func TestNotifierVerdictReachesPendingQueue(t *testing.T) {
	hub := NewHub(slog.Default())
	queue := mockClient(hub, Subscription{FamilyID: "fam", Status: model.StatusPending})
	hub.Register(queue)
	defer hub.Unregister(queue)

	n := NewNotifier(hub)
	n.Handle(events.Event{Type: events.LogCreated, FamilyID: "fam", UserID: "child-1", LogID: "log-1", Status: model.StatusPending})
	n.Handle(events.Event{Type: events.LogRejected, FamilyID: "fam", UserID: "child-1", LogID: "log-1", Status: model.StatusRejected})

	first, ok := receive(t, queue)
	if !ok || first.Type != "log_created" {
		t.Fatalf("first = %+v, %v", first, ok)
	}
	second, ok := receive(t, queue)
	if !ok || second.Type != "log_rejected" || second.PrevStatus != model.StatusPending {
		t.Fatalf("second = %+v, %v", second, ok)
	}
}

func TestNotifierStatsUpdated(t *testing.T) {
	hub := NewHub(slog.Default())
	child := mockClient(hub, Subscription{FamilyID: "fam", UserID: "child-1"})
	hub.Register(child)
	defer hub.Unregister(child)

	st := model.NewUserGameStats("child-1")
	st.TotalEarnings = decimal.NewFromInt(6)
	NewNotifier(hub).StatsUpdated(st, events.Event{FamilyID: "fam", LogID: "log-1"}, gamification.Outcome{XPAwarded: 60})

	got, ok := receive(t, child)
	if !ok {
		t.Fatal("timeout waiting for message")
	}
	if got.Type != TypeStatsUpdated || got.UserID != "child-1" {
		t.Errorf("got %+v", got)
	}
}
