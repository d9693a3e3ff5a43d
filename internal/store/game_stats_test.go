package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/model"
)

func TestGameStatsGetMissing(t *testing.T) {
	gs := NewGameStatsStore(setupTestDB(t))

	st, err := gs.Get(context.Background(), "child-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if st != nil {
		t.Error("expected nil stats for new user")
	}
}

func TestGameStatsApply(t *testing.T) {
	gs := NewGameStatsStore(setupTestDB(t))
	ctx := context.Background()

	bump := func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		st.TotalExperience += 5
		st.ExperiencePoints += 5
		d := model.Date{Year: 2026, Month: 3, Day: 14}
		st.LastActivityDate = &d
		st.TotalEarnings = st.TotalEarnings.Add(decimal.RequireFromString("1.25"))
		st.AddBadge("first_steps")
		return nil
	}

	st, applied, err := gs.Apply(ctx, "child-1", "log-1:log_created", bump)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatal("first apply should report true")
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1", st.Level)
	}

	_, applied, err = gs.Apply(ctx, "child-1", "log-1:log_created", bump)
	if err != nil {
		t.Fatalf("duplicate apply: %v", err)
	}
	if applied {
		t.Error("duplicate apply should report false")
	}

	got, err := gs.Get(ctx, "child-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if got.TotalActivitiesLogged != 1 {
		t.Errorf("total_activities_logged = %d, want 1", got.TotalActivitiesLogged)
	}
	if got.TotalExperience != 5 {
		t.Errorf("total_experience = %d, want 5", got.TotalExperience)
	}
	if got.LastActivityDate == nil || got.LastActivityDate.String() != "2026-03-14" {
		t.Errorf("last_activity_date = %v, want 2026-03-14", got.LastActivityDate)
	}
	if !got.TotalEarnings.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("total_earnings = %s, want 1.25", got.TotalEarnings)
	}
	if len(got.BadgesEarned) != 1 || got.BadgesEarned[0] != "first_steps" {
		t.Errorf("badges = %v, want [first_steps]", got.BadgesEarned)
	}
}

func TestGameStatsApplyErrorRollsBack(t *testing.T) {
	gs := NewGameStatsStore(setupTestDB(t))
	ctx := context.Background()

	boom := errors.New("boom")
	_, _, err := gs.Apply(ctx, "child-1", "log-1:log_created", func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	// The event key must not be recorded, so a retry applies.
	_, applied, err := gs.Apply(ctx, "child-1", "log-1:log_created", func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		return nil
	})
	if err != nil {
		t.Fatalf("retry apply: %v", err)
	}
	if !applied {
		t.Error("retry after failure should apply")
	}
}

func TestGameStatsStaleAndReplace(t *testing.T) {
	gs := NewGameStatsStore(setupTestDB(t))
	ctx := context.Background()

	if _, _, err := gs.Apply(ctx, "child-1", "log-1:log_created", func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := gs.MarkStale(ctx, "child-1"); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	if err := gs.MarkStale(ctx, "child-2"); err != nil {
		t.Fatalf("mark stale new user: %v", err)
	}

	stale, err := gs.ListStale(ctx)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("stale = %v, want 2 users", stale)
	}

	// Apply keeps the flag.
	if _, _, err := gs.Apply(ctx, "child-1", "log-2:log_created", func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ok, _ := gs.IsStale(ctx, "child-1"); !ok {
		t.Error("apply should not clear stale flag")
	}

	rebuilt := model.NewUserGameStats("child-1")
	rebuilt.TotalActivitiesLogged = 3
	keys := []string{"log-1:log_created", "log-2:log_created", "log-3:log_created"}
	if err := gs.Replace(ctx, &rebuilt, keys); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if ok, _ := gs.IsStale(ctx, "child-1"); ok {
		t.Error("replace should clear stale flag")
	}
	got, _ := gs.Get(ctx, "child-1")
	if got.TotalActivitiesLogged != 3 {
		t.Errorf("total_activities_logged = %d, want 3", got.TotalActivitiesLogged)
	}

	_, applied, err := gs.Apply(ctx, "child-1", "log-3:log_created", func(st *model.UserGameStats) error {
		st.TotalActivitiesLogged++
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Error("event recorded by replace should not apply again")
	}
}
