package gamification

import (
	"math"

	"github.com/dukerupert/tallyup/internal/model"
)

// XPToNextLevel is the experience needed to leave level: floor(100 × level^1.5).
func XPToNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return int(100 * math.Pow(float64(level), 1.5))
}

// awardXP adds n experience and carries any overflow through as many level
// thresholds as it covers. It returns the number of levels gained.
func awardXP(st *model.UserGameStats, n int) int {
	if n <= 0 {
		return 0
	}
	st.ExperiencePoints += n
	st.TotalExperience += n

	gained := 0
	for need := XPToNextLevel(st.Level); st.ExperiencePoints >= need; need = XPToNextLevel(st.Level) {
		st.ExperiencePoints -= need
		st.Level++
		gained++
	}
	return gained
}

// StatsView is UserGameStats plus the values derived from it for display.
type StatsView struct {
	model.UserGameStats
	XPToNextLevel      int     `json:"xp_to_next_level"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// View derives the display values. Progress is rounded to one decimal.
func View(st model.UserGameStats) StatsView {
	next := XPToNextLevel(st.Level)
	progress := float64(st.ExperiencePoints) / float64(next) * 100
	return StatsView{
		UserGameStats:      st,
		XPToNextLevel:      next,
		ProgressPercentage: math.Round(progress*10) / 10,
	}
}
