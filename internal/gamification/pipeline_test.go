package gamification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type results struct {
	mu  sync.Mutex
	got map[string]int
	wg  sync.WaitGroup
}

func newResults(expect int) *results {
	r := &results{got: map[string]int{}}
	r.wg.Add(expect)
	return r
}

func (r *results) hook(_ events.Type, result string) {
	r.mu.Lock()
	r.got[result]++
	r.mu.Unlock()
	r.wg.Done()
}

func (r *results) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pipeline")
	}
}

func (r *results) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[result]
}

type pipelineFixture struct {
	pipeline *Pipeline
	stats    *store.GameStatsStore
	logs     *store.LogStore
}

func newPipelineFixture(t *testing.T, hooks Hooks) *pipelineFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stats := store.NewGameStatsStore(db)
	logs := store.NewLogStore(db)
	p := NewPipeline(NewAccumulator(time.UTC), stats, logs, PipelineConfig{Workers: 3, QueueSize: 512, MaxRetries: 2, RetryBase: time.Millisecond}, hooks, testLogger())
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return &pipelineFixture{pipeline: p, stats: stats, logs: logs}
}

func createdEvent(userID, logID string, at time.Time) events.Event {
	return events.Event{Type: events.LogCreated, LogID: logID, UserID: userID, Units: 3, Amount: decimal.NewFromInt(6), LoggedAt: at, OccurredAt: at}
}

func TestPipelineScenario(t *testing.T) {
	r := newResults(2)
	f := newPipelineFixture(t, Hooks{Processed: r.hook})

	created := createdEvent("child-1", "log-1", day0)
	approved := created
	approved.Type = events.LogApproved

	f.pipeline.Handle(created)
	f.pipeline.Handle(approved)
	r.wait(t)

	st, err := f.stats.Get(context.Background(), "child-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if !st.TotalEarnings.Equal(decimal.NewFromInt(6)) {
		t.Errorf("total_earnings = %s, want 6", st.TotalEarnings)
	}
	if st.TotalExperience != XPPerLog+60 {
		t.Errorf("total_experience = %d, want %d", st.TotalExperience, XPPerLog+60)
	}
	if st.TotalActivitiesLogged != 1 {
		t.Errorf("total_activities_logged = %d, want 1", st.TotalActivitiesLogged)
	}
}

func TestPipelineDuplicateEventIsNoop(t *testing.T) {
	r := newResults(3)
	f := newPipelineFixture(t, Hooks{Processed: r.hook})

	e := createdEvent("child-1", "log-1", day0)
	f.pipeline.Handle(e)
	f.pipeline.Handle(e)
	f.pipeline.Handle(e)
	r.wait(t)

	if r.count(ResultApplied) != 1 || r.count(ResultDuplicate) != 2 {
		t.Errorf("results = %v, want 1 applied and 2 duplicates", r.got)
	}
	st, _ := f.stats.Get(context.Background(), "child-1")
	if st.TotalActivitiesLogged != 1 || st.TotalExperience != XPPerLog {
		t.Errorf("stats after duplicates = %+v", st)
	}
}

func TestPipelineIgnoresRejections(t *testing.T) {
	r := newResults(1)
	f := newPipelineFixture(t, Hooks{Processed: r.hook})

	f.pipeline.Handle(events.Event{Type: events.LogRejected, LogID: "log-1", UserID: "child-1", Amount: decimal.NewFromInt(5)})
	r.wait(t)

	if r.count(ResultIgnored) != 1 {
		t.Errorf("results = %v, want 1 ignored", r.got)
	}
	st, _ := f.stats.Get(context.Background(), "child-1")
	if st != nil {
		t.Errorf("rejection created stats: %+v", st)
	}
}

func TestPipelineManyUsersConcurrently(t *testing.T) {
	const users, perUser = 8, 25
	r := newResults(users * perUser)
	f := newPipelineFixture(t, Hooks{Processed: r.hook})

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := "child-" + string(rune('a'+u))
			for i := 0; i < perUser; i++ {
				f.pipeline.Handle(createdEvent(userID, uuid.NewString(), day0))
			}
		}(u)
	}
	wg.Wait()
	r.wait(t)

	for u := 0; u < users; u++ {
		st, err := f.stats.Get(context.Background(), "child-"+string(rune('a'+u)))
		if err != nil {
			t.Fatalf("get stats: %v", err)
		}
		if st.TotalActivitiesLogged != perUser {
			t.Errorf("user %d total_activities_logged = %d, want %d", u, st.TotalActivitiesLogged, perUser)
		}
	}
}

func TestPipelineUpdatedHook(t *testing.T) {
	r := newResults(1)
	var got []Outcome
	var mu sync.Mutex
	f := newPipelineFixture(t, Hooks{
		Processed: r.hook,
		Updated: func(st model.UserGameStats, e events.Event, out Outcome) {
			mu.Lock()
			got = append(got, out)
			mu.Unlock()
		},
	})

	f.pipeline.Handle(createdEvent("child-1", "log-1", day0))
	r.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].XPAwarded != XPPerLog || len(got[0].NewBadges) != 1 {
		t.Errorf("outcomes = %+v", got)
	}
}

func TestPipelineRebuild(t *testing.T) {
	f := newPipelineFixture(t, Hooks{})
	ctx := context.Background()

	for d := 0; d < 7; d++ {
		l := &model.LogEntry{
			ID:                 uuid.NewString(),
			ActivityID:         "dishes",
			UserID:             "child-1",
			FamilyID:           "fam",
			Units:              1,
			Rate:               decimal.NewFromInt(2),
			Timestamp:          day0.AddDate(0, 0, d),
			VerificationStatus: model.StatusPending,
		}
		if err := f.logs.Create(ctx, l); err != nil {
			t.Fatalf("create log: %v", err)
		}
		if d%2 == 0 {
			f.logs.TransitionFromPending(ctx, l.ID, model.StatusApproved, "parent-1", l.Timestamp.Add(time.Hour))
		}
	}
	if err := f.stats.MarkStale(ctx, "child-1"); err != nil {
		t.Fatalf("mark stale: %v", err)
	}

	if err := f.pipeline.Rebuild(ctx, "child-1"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	st, _ := f.stats.Get(ctx, "child-1")
	if st.TotalActivitiesLogged != 7 || st.CurrentStreak != 7 {
		t.Errorf("activities/streak = %d/%d, want 7/7", st.TotalActivitiesLogged, st.CurrentStreak)
	}
	if !st.TotalEarnings.Equal(decimal.NewFromInt(8)) {
		t.Errorf("total_earnings = %s, want 8", st.TotalEarnings)
	}
	// 7 logs, the day-7 bonus, and $8 approved.
	if st.TotalExperience != 7*XPPerLog+70+80 {
		t.Errorf("total_experience = %d, want %d", st.TotalExperience, 7*XPPerLog+70+80)
	}
	if stale, _ := f.stats.IsStale(ctx, "child-1"); stale {
		t.Error("rebuild should clear stale flag")
	}
}

type failingStats struct {
	StatsStore
	mu     sync.Mutex
	calls  int
	stale  []string
	failed chan struct{}
}

func (s *failingStats) Apply(context.Context, string, string, func(*model.UserGameStats) error) (*model.UserGameStats, bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil, false, errors.New("database is locked")
}

func (s *failingStats) MarkStale(_ context.Context, userID string) error {
	s.mu.Lock()
	s.stale = append(s.stale, userID)
	s.mu.Unlock()
	close(s.failed)
	return nil
}

func TestPipelineRetriesThenMarksStale(t *testing.T) {
	fs := &failingStats{failed: make(chan struct{})}
	p := NewPipeline(NewAccumulator(time.UTC), fs, nil, PipelineConfig{Workers: 1, MaxRetries: 3, RetryBase: time.Millisecond}, Hooks{}, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	p.Handle(createdEvent("child-1", "log-1", day0))

	select {
	case <-fs.failed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stale mark")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.calls != 4 {
		t.Errorf("apply calls = %d, want 4", fs.calls)
	}
	if len(fs.stale) != 1 || fs.stale[0] != "child-1" {
		t.Errorf("stale = %v, want [child-1]", fs.stale)
	}
}

func TestPipelineFullQueueMarksStale(t *testing.T) {
	fs := &failingStats{failed: make(chan struct{})}
	// Not started: the single one-slot queue fills immediately.
	p := NewPipeline(NewAccumulator(time.UTC), fs, nil, PipelineConfig{Workers: 1, QueueSize: 1}, Hooks{}, testLogger())

	p.Handle(createdEvent("child-1", "log-1", day0))
	p.Handle(createdEvent("child-1", "log-2", day0))

	select {
	case <-fs.failed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stale mark")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.calls != 0 {
		t.Errorf("apply calls = %d, want 0", fs.calls)
	}
}
