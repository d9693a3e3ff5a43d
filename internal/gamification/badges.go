package gamification

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/model"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Badge is a named achievement unlocked by a predicate over stats.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Rarity      Rarity `json:"rarity"`

	earned func(model.UserGameStats) bool
}

func (b Badge) Earned(st model.UserGameStats) bool {
	return b.earned(st)
}

func activityCount(n int) func(model.UserGameStats) bool {
	return func(st model.UserGameStats) bool { return st.TotalActivitiesLogged >= n }
}

func totalEarnings(dollars int64) func(model.UserGameStats) bool {
	threshold := decimal.NewFromInt(dollars)
	return func(st model.UserGameStats) bool { return st.TotalEarnings.GreaterThanOrEqual(threshold) }
}

func currentStreak(days int) func(model.UserGameStats) bool {
	return func(st model.UserGameStats) bool { return st.CurrentStreak >= days }
}

var catalog = []Badge{
	{"first_steps", "First Steps", "Log your first activity", "🎯", "activity", RarityCommon, activityCount(1)},
	{"getting_started", "Getting Started", "Log 10 activities", "🌟", "activity", RarityCommon, activityCount(10)},
	{"dedicated", "Dedicated", "Log 50 activities", "💪", "activity", RarityRare, activityCount(50)},
	{"super_achiever", "Super Achiever", "Log 100 activities", "🏆", "activity", RarityEpic, activityCount(100)},
	{"legendary_worker", "Legendary Worker", "Log 500 activities", "👑", "activity", RarityLegendary, activityCount(500)},

	{"first_dollar", "First Dollar", "Earn your first dollar", "💵", "earnings", RarityCommon, totalEarnings(1)},
	{"money_maker", "Money Maker", "Earn $50", "💰", "earnings", RarityRare, totalEarnings(50)},
	{"big_earner", "Big Earner", "Earn $100", "💸", "earnings", RarityEpic, totalEarnings(100)},
	{"wealth_builder", "Wealth Builder", "Earn $500", "🏦", "earnings", RarityLegendary, totalEarnings(500)},

	{"on_fire", "On Fire", "Maintain a 7-day streak", "🔥", "streak", RarityRare, currentStreak(7)},
	{"unstoppable", "Unstoppable", "Maintain a 30-day streak", "⚡", "streak", RarityEpic, currentStreak(30)},
	{"streak_master", "Streak Master", "Maintain a 100-day streak", "🌠", "streak", RarityLegendary, currentStreak(100)},
}

// Catalog returns every badge definition.
func Catalog() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog)
	return out
}

func LookupBadge(id string) (Badge, bool) {
	for _, b := range catalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// evaluateBadges adds every badge whose predicate now holds and returns the
// ids that were new. Earned badges are never removed.
func evaluateBadges(st *model.UserGameStats) []string {
	snapshot := *st
	var added []string
	for _, b := range catalog {
		if b.Earned(snapshot) && st.AddBadge(b.ID) {
			added = append(added, b.ID)
		}
	}
	return added
}

// EarnedBadge pairs a definition with whether the user holds it.
type EarnedBadge struct {
	Badge
	Unlocked bool `json:"earned"`
}

// BadgesFor lists the full catalog marked with st's earned set.
func BadgesFor(st model.UserGameStats) []EarnedBadge {
	out := make([]EarnedBadge, 0, len(catalog))
	for _, b := range catalog {
		out = append(out, EarnedBadge{Badge: b, Unlocked: st.HasBadge(b.ID)})
	}
	return out
}
