package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// UserGameStats is the per-user summary derived from log history. It is a
// materialized view: replaying a user's logs from NewUserGameStats must
// reproduce it.
type UserGameStats struct {
	UserID                string          `json:"user_id"`
	Level                 int             `json:"level"`
	ExperiencePoints      int             `json:"experience_points"`
	TotalExperience       int             `json:"total_experience"`
	CurrentStreak         int             `json:"current_streak"`
	LongestStreak         int             `json:"longest_streak"`
	LastActivityDate      *Date           `json:"last_activity_date"`
	TotalActivitiesLogged int             `json:"total_activities_logged"`
	TotalEarnings         decimal.Decimal `json:"total_earnings"`
	BadgesEarned          []string        `json:"badges_earned"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func NewUserGameStats(userID string) UserGameStats {
	return UserGameStats{
		UserID:        userID,
		Level:         1,
		TotalEarnings: decimal.Zero,
		BadgesEarned:  []string{},
	}
}

func (s UserGameStats) HasBadge(id string) bool {
	_, found := slices.BinarySearch(s.BadgesEarned, id)
	return found
}

// AddBadge inserts id keeping BadgesEarned sorted. It reports whether the
// badge was new.
func (s *UserGameStats) AddBadge(id string) bool {
	i, found := slices.BinarySearch(s.BadgesEarned, id)
	if found {
		return false
	}
	s.BadgesEarned = slices.Insert(s.BadgesEarned, i, id)
	return true
}

// Date is a calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.time().Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.time().Before(o.time())
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
