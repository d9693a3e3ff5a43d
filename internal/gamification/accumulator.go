// Package gamification derives XP, levels, streaks and badges from log
// events. The fold in this file is pure; the pipeline applies it to stored
// stats one user at a time.
package gamification

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/model"
)

const (
	XPPerLog          = 5
	XPPerDollar       = 10
	StreakMilestone   = 7
	StreakBonusPerDay = 10
)

// Outcome summarizes what one event changed.
type Outcome struct {
	XPAwarded    int      `json:"xp_awarded"`
	StreakBonus  int      `json:"streak_bonus"`
	LevelsGained int      `json:"levels_gained"`
	NewBadges    []string `json:"new_badges,omitempty"`
}

// Accumulator folds events into UserGameStats. Streak days are calendar
// days in loc.
type Accumulator struct {
	loc *time.Location
}

func NewAccumulator(loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{loc: loc}
}

// Apply dispatches e to the matching fold. Rejections change nothing.
func (a *Accumulator) Apply(st *model.UserGameStats, e events.Event) (Outcome, error) {
	switch e.Type {
	case events.LogCreated:
		return a.OnLogCreated(st, e.LoggedAt), nil
	case events.LogApproved:
		return a.OnLogApproved(st, e.Amount), nil
	case events.LogRejected:
		return Outcome{}, nil
	default:
		return Outcome{}, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// OnLogCreated counts the log, awards the flat per-log XP and advances the
// streak by the calendar date of loggedAt.
func (a *Accumulator) OnLogCreated(st *model.UserGameStats, loggedAt time.Time) Outcome {
	st.TotalActivitiesLogged++

	extended := a.advanceStreak(st, model.DateOf(loggedAt.In(a.loc)))
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}

	out := Outcome{XPAwarded: XPPerLog}
	if extended && st.CurrentStreak%StreakMilestone == 0 {
		out.StreakBonus = st.CurrentStreak * StreakBonusPerDay
		out.XPAwarded += out.StreakBonus
	}
	out.LevelsGained = awardXP(st, out.XPAwarded)
	out.NewBadges = evaluateBadges(st)
	return out
}

// advanceStreak reports whether the streak grew by a day. A log dated before
// the last activity date arrived out of order and leaves the streak alone.
func (a *Accumulator) advanceStreak(st *model.UserGameStats, day model.Date) bool {
	last := st.LastActivityDate
	switch {
	case last == nil:
		st.CurrentStreak = 1
	case *last == day:
		return false
	case day.Before(*last):
		return false
	case last.AddDays(1) == day:
		st.CurrentStreak++
		st.LastActivityDate = &day
		return true
	default:
		st.CurrentStreak = 1
	}
	st.LastActivityDate = &day
	return false
}

// OnLogApproved adds the approved amount to earnings and awards
// floor(amount × 10) XP.
func (a *Accumulator) OnLogApproved(st *model.UserGameStats, amount decimal.Decimal) Outcome {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	st.TotalEarnings = st.TotalEarnings.Add(amount)

	xp := int(amount.Mul(decimal.NewFromInt(XPPerDollar)).Floor().IntPart())
	out := Outcome{XPAwarded: xp}
	out.LevelsGained = awardXP(st, xp)
	out.NewBadges = evaluateBadges(st)
	return out
}
