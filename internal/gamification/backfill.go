package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type StaleLister interface {
	ListStale(ctx context.Context) ([]string, error)
}

// Rebuilder replays one user's history into their stats.
type Rebuilder interface {
	Rebuild(ctx context.Context, userID string) error
}

// Backfill periodically rebuilds every user whose stats were marked stale.
type Backfill struct {
	stale     StaleLister
	rebuilder Rebuilder
	logger    *slog.Logger
	cron      *cron.Cron
	timeout   time.Duration
	observe   func(rebuilt int)
}

// NewBackfill schedules RunOnce on a standard five field cron spec or a
// descriptor such as "@every 5m".
func NewBackfill(stale StaleLister, rebuilder Rebuilder, schedule string, logger *slog.Logger) (*Backfill, error) {
	logger = logger.With("component", "backfill")
	b := &Backfill{
		stale:     stale,
		rebuilder: rebuilder,
		logger:    logger,
		timeout:   5 * time.Minute,
	}
	b.cron = cron.New(cron.WithLogger(cronLogger{logger}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := b.cron.AddFunc(schedule, b.tick); err != nil {
		return nil, fmt.Errorf("schedule backfill %q: %w", schedule, err)
	}
	return b, nil
}

// Observe registers fn to receive the rebuilt count of each scheduled run.
// Call before Start.
func (b *Backfill) Observe(fn func(rebuilt int)) {
	b.observe = fn
}

func (b *Backfill) Start() {
	b.cron.Start()
}

// Stop waits for a running backfill to finish.
func (b *Backfill) Stop() {
	<-b.cron.Stop().Done()
}

func (b *Backfill) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	n, err := b.RunOnce(ctx)
	if err != nil {
		b.logger.Error("backfill run", "error", err)
		return
	}
	if b.observe != nil {
		b.observe(n)
	}
	if n > 0 {
		b.logger.Info("backfill complete", "rebuilt", n)
	}
}

// RunOnce rebuilds every stale user and returns how many succeeded. A user
// whose rebuild fails stays stale for the next run.
func (b *Backfill) RunOnce(ctx context.Context) (int, error) {
	users, err := b.stale.ListStale(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stale users: %w", err)
	}

	rebuilt := 0
	for _, userID := range users {
		if err := b.rebuilder.Rebuild(ctx, userID); err != nil {
			b.logger.Warn("rebuild stale user", "user_id", userID, "error", err)
			continue
		}
		rebuilt++
	}
	return rebuilt, nil
}

// cronLogger routes cron's logr-style calls to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
