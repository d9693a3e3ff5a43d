package earnings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

func setupService(t *testing.T, now time.Time) (*Service, *store.LogStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logs := store.NewLogStore(db)
	svc := NewService(logs, store.NewActivityStore(db), time.UTC)
	svc.now = func() time.Time { return now }
	return svc, logs
}

func addLog(t *testing.T, logs *store.LogStore, userID string, status model.VerificationStatus, units int, rate string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	l := &model.LogEntry{
		ID:                 uuid.NewString(),
		ActivityID:         "dishes",
		UserID:             userID,
		FamilyID:           "fam",
		Units:              units,
		Rate:               decimal.RequireFromString(rate),
		Timestamp:          at,
		VerificationStatus: model.StatusPending,
	}
	if err := logs.Create(ctx, l); err != nil {
		t.Fatalf("create log: %v", err)
	}
	if status != model.StatusPending {
		if _, err := logs.TransitionFromPending(ctx, l.ID, status, "parent-1", at); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
}

func TestGetEarnings(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	svc, logs := setupService(t, now)
	ctx := context.Background()

	addLog(t, logs, "child-1", model.StatusApproved, 3, "2", now.Add(-2*time.Hour))
	addLog(t, logs, "child-1", model.StatusPending, 1, "1.50", now.Add(-time.Hour))
	addLog(t, logs, "child-1", model.StatusRejected, 5, "1", now.Add(-time.Hour))
	addLog(t, logs, "child-1", model.StatusApproved, 2, "2", now.Add(-3*24*time.Hour))
	addLog(t, logs, "child-1", model.StatusApproved, 1, "9", now.Add(-8*24*time.Hour))
	addLog(t, logs, "child-2", model.StatusApproved, 1, "100", now.Add(-time.Hour))

	today, err := svc.GetEarnings(ctx, "child-1", "fam", svc.Window(KindToday))
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !today.Verified.Equal(decimal.NewFromInt(6)) || !today.Pending.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("today = %s/%s, want 1.5/6", today.Pending, today.Verified)
	}

	weekly, err := svc.GetEarnings(ctx, "child-1", "fam", svc.Window(KindWeekly))
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if !weekly.Verified.Equal(decimal.NewFromInt(10)) {
		t.Errorf("weekly verified = %s, want 10", weekly.Verified)
	}

	data, err := json.Marshal(today)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"pending":"1.50","verified":"6.00"}` {
		t.Errorf("json = %s", data)
	}
}

func TestGetEarningsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	svc, _ := setupService(t, now)

	e, err := svc.GetEarnings(context.Background(), "child-1", "fam", svc.Window(KindWeekly))
	if err != nil {
		t.Fatalf("get earnings: %v", err)
	}
	if !e.Pending.IsZero() || !e.Verified.IsZero() {
		t.Errorf("empty = %s/%s, want 0/0", e.Pending, e.Verified)
	}
}
