// Package earnings derives pending and verified money totals from a set of
// log entries over a half-open time window.
package earnings

import (
	"strings"
	"time"

	"github.com/dukerupert/tallyup/internal/apperror"
)

type Kind string

const (
	KindToday  Kind = "today"
	KindWeekly Kind = "weekly"
)

func ParseWindowKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindToday, KindWeekly:
		return k, nil
	default:
		return "", apperror.Validation("window must be %q or %q", KindToday, KindWeekly)
	}
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Today runs from midnight of now's calendar day in loc up to now.
func Today(now time.Time, loc *time.Location) Window {
	return Window{Start: startOfDay(now.In(loc)), End: now}
}

// Weekly is the seven 24h days ending at now.
func Weekly(now time.Time) Window {
	return Window{Start: now.Add(-7 * 24 * time.Hour), End: now}
}

// Custom builds a window from caller supplied bounds.
func Custom(from, to time.Time) (Window, error) {
	if from.IsZero() || to.IsZero() {
		return Window{}, apperror.Validation("from and to are required")
	}
	if !from.Before(to) {
		return Window{}, apperror.Validation("from must be before to")
	}
	return Window{Start: from, End: to}, nil
}

// For returns the standard window of the given kind ending at now.
func For(kind Kind, now time.Time, loc *time.Location) Window {
	if kind == KindWeekly {
		return Weekly(now)
	}
	return Today(now, loc)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
