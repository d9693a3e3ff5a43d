package gamification

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/model"
)

// LogSource lists every entry a user has logged.
type LogSource interface {
	ListByUser(ctx context.Context, userID string) ([]model.LogEntry, error)
}

// StatsReplacer overwrites a user's stats and processed-event set.
type StatsReplacer interface {
	Replace(ctx context.Context, st *model.UserGameStats, eventKeys []string) error
}

// HistoryEvents turns a user's logs into the events the pipeline would have
// seen: a creation per log and an approval per approved log, ordered by the
// instant each happened.
func HistoryEvents(logs []model.LogEntry) []events.Event {
	evs := make([]events.Event, 0, len(logs)*2)
	for i := range logs {
		l := &logs[i]
		created := events.FromLog(events.LogCreated, l)
		created.OccurredAt = l.Timestamp
		evs = append(evs, created)
		if l.VerificationStatus == model.StatusApproved && l.VerifiedAt != nil {
			evs = append(evs, events.FromLog(events.LogApproved, l))
		}
	}
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].OccurredAt.Equal(evs[j].OccurredAt) {
			return evs[i].OccurredAt.Before(evs[j].OccurredAt)
		}
		if evs[i].Type != evs[j].Type {
			return evs[i].Type == events.LogCreated
		}
		return evs[i].LogID < evs[j].LogID
	})
	return evs
}

// Replay folds a user's whole history from fresh stats and returns the
// result with the keys of every event it applied.
func Replay(acc *Accumulator, userID string, logs []model.LogEntry) (model.UserGameStats, []string, error) {
	st := model.NewUserGameStats(userID)
	var keys []string
	for _, e := range HistoryEvents(logs) {
		if e.UserID != userID {
			continue
		}
		if _, err := acc.Apply(&st, e); err != nil {
			return st, nil, fmt.Errorf("replay %s: %w", e.Key(), err)
		}
		keys = append(keys, e.Key())
	}
	return st, keys, nil
}

// Rebuild replays userID's logs and stores the result.
func Rebuild(ctx context.Context, acc *Accumulator, logs LogSource, stats StatsReplacer, userID string) (*model.UserGameStats, error) {
	history, err := logs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	st, keys, err := Replay(acc, userID, history)
	if err != nil {
		return nil, err
	}
	if err := stats.Replace(ctx, &st, keys); err != nil {
		return nil, fmt.Errorf("replace stats: %w", err)
	}
	return &st, nil
}
