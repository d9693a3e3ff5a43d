package gamification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/model"
)

// Results reported to Hooks.Processed.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
	ResultIgnored   = "ignored"
)

var ErrStopped = errors.New("gamification pipeline stopped")

// StatsStore is the persistence the pipeline needs. Apply must record
// eventKey and the stats write atomically.
type StatsStore interface {
	StatsReplacer
	Apply(ctx context.Context, userID, eventKey string, fn func(*model.UserGameStats) error) (*model.UserGameStats, bool, error)
	MarkStale(ctx context.Context, userID string) error
}

type PipelineConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	RetryBase  time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
	return c
}

// Hooks observe the pipeline. Both are optional and are called from worker
// goroutines.
type Hooks struct {
	Processed func(t events.Type, result string)
	Updated   func(st model.UserGameStats, e events.Event, out Outcome)
}

type job struct {
	event   events.Event
	rebuild string
	result  chan error
}

// Pipeline consumes log events and applies them to stored stats. Users are
// sharded over a fixed set of workers by hash of their id, so each user's
// stats have a single writer.
type Pipeline struct {
	acc    *Accumulator
	stats  StatsStore
	logs   LogSource
	cfg    PipelineConfig
	hooks  Hooks
	logger *slog.Logger
	shards []chan job

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(acc *Accumulator, stats StatsStore, logs LogSource, cfg PipelineConfig, hooks Hooks, logger *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	shards := make([]chan job, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan job, cfg.QueueSize)
	}
	return &Pipeline{
		acc:    acc,
		stats:  stats,
		logs:   logs,
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.With("component", "gamification"),
		shards: shards,
	}
}

func (p *Pipeline) shard(userID string) chan job {
	return p.shards[xxhash.Sum64String(userID)%uint64(len(p.shards))]
}

// Start launches one worker per shard.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	for _, ch := range p.shards {
		p.wg.Add(1)
		go func(ch chan job) {
			defer p.wg.Done()
			p.run(ctx, ch)
		}(ch)
	}
	p.logger.Info("pipeline started", "workers", len(p.shards), "queue_size", p.cfg.QueueSize)
}

// Stop cancels the workers and waits for them to exit. Queued events that
// were not processed leave their users to be rebuilt from history.
func (p *Pipeline) Stop() {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context, ch chan job) {
	for {
		select {
		case <-ctx.Done():
			p.drain(ch)
			return
		case j := <-ch:
			p.process(ctx, j)
		}
	}
}

// drain marks the owners of unprocessed events stale and fails pending
// rebuild requests.
func (p *Pipeline) drain(ch chan job) {
	for {
		select {
		case j := <-ch:
			if j.result != nil {
				j.result <- ErrStopped
				continue
			}
			p.markStale(j.event.UserID, "shutdown")
		default:
			return
		}
	}
}

// Handle enqueues e on its user's shard without blocking. A full queue
// marks the user stale for the next backfill instead.
func (p *Pipeline) Handle(e events.Event) {
	if e.Type == events.LogRejected {
		p.processed(e.Type, ResultIgnored)
		return
	}
	select {
	case p.shard(e.UserID) <- job{event: e}:
	default:
		p.logger.Warn("queue full, dropping event", "user_id", e.UserID, "event", e.Key())
		p.processed(e.Type, ResultDropped)
		go p.markStale(e.UserID, "queue full")
	}
}

// Rebuild replays userID's history on the user's shard, so it cannot
// interleave with live events for the same user.
func (p *Pipeline) Rebuild(ctx context.Context, userID string) error {
	result := make(chan error, 1)
	select {
	case p.shard(userID) <- job{rebuild: userID, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	if j.rebuild != "" {
		st, err := Rebuild(ctx, p.acc, p.logs, p.stats, j.rebuild)
		if err != nil {
			p.logger.Warn("rebuild failed", "user_id", j.rebuild, "error", err)
		} else {
			p.logger.Info("stats rebuilt", "user_id", j.rebuild, "level", st.Level, "total_experience", st.TotalExperience)
		}
		j.result <- err
		return
	}
	p.apply(ctx, j.event)
}

func (p *Pipeline) apply(ctx context.Context, e events.Event) {
	var (
		st      *model.UserGameStats
		applied bool
		out     Outcome
	)

	backoff := retry.WithMaxRetries(p.cfg.MaxRetries, retry.NewExponential(p.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		st, applied, err = p.stats.Apply(ctx, e.UserID, e.Key(), func(s *model.UserGameStats) error {
			o, err := p.acc.Apply(s, e)
			if err != nil {
				return foldError{err}
			}
			out = o
			return nil
		})
		if err != nil && isStoreError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		p.logger.Warn("stats update failed", "user_id", e.UserID, "event", e.Key(), "error", err)
		p.processed(e.Type, ResultFailed)
		p.markStale(e.UserID, "apply failed")
		return
	}

	if !applied {
		p.logger.Debug("event already applied", "user_id", e.UserID, "event", e.Key())
		p.processed(e.Type, ResultDuplicate)
		return
	}

	attrs := []any{"user_id", e.UserID, "event", e.Key(), "xp", out.XPAwarded, "level", st.Level}
	if out.LevelsGained > 0 || len(out.NewBadges) > 0 || out.StreakBonus > 0 {
		p.logger.Info("stats milestone", append(attrs,
			"levels_gained", out.LevelsGained, "streak_bonus", out.StreakBonus, "new_badges", out.NewBadges)...)
	} else {
		p.logger.Debug("stats updated", attrs...)
	}
	p.processed(e.Type, ResultApplied)
	if p.hooks.Updated != nil {
		p.hooks.Updated(*st, e, out)
	}
}

// foldError marks failures of the pure fold, which retrying cannot fix.
type foldError struct{ err error }

func (f foldError) Error() string { return f.err.Error() }
func (f foldError) Unwrap() error { return f.err }

func isStoreError(err error) bool {
	var fe foldError
	return !errors.As(err, &fe)
}

func (p *Pipeline) markStale(userID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.stats.MarkStale(ctx, userID); err != nil {
		p.logger.Error("mark stale", "user_id", userID, "reason", reason, "error", err)
		return
	}
	p.logger.Warn("stats marked stale", "user_id", userID, "reason", reason)
}

func (p *Pipeline) processed(t events.Type, result string) {
	if p.hooks.Processed != nil {
		p.hooks.Processed(t, result)
	}
}
