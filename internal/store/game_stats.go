package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/tallyup/internal/model"
)

// GameStatsStore persists UserGameStats together with the set of events
// already folded into them, so applying the same event twice is a no-op.
type GameStatsStore struct {
	db *sql.DB
}

func NewGameStatsStore(db *sql.DB) *GameStatsStore {
	return &GameStatsStore{db: db}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const statsCols = `user_id, level, experience_points, total_experience, current_streak, longest_streak,
	last_activity_date, total_activities_logged, total_earnings, badges_earned, updated_at`

func getStats(ctx context.Context, q queryer, userID string) (*model.UserGameStats, error) {
	var st model.UserGameStats
	var lastDate sql.NullString
	var badges string

	err := q.QueryRowContext(ctx, `SELECT `+statsCols+` FROM user_game_stats WHERE user_id = ?`, userID).Scan(
		&st.UserID, &st.Level, &st.ExperiencePoints, &st.TotalExperience, &st.CurrentStreak, &st.LongestStreak,
		&lastDate, &st.TotalActivitiesLogged, &st.TotalEarnings, &badges, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastDate.Valid {
		d, err := model.ParseDate(lastDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_activity_date: %w", err)
		}
		st.LastActivityDate = &d
	}
	if err := json.Unmarshal([]byte(badges), &st.BadgesEarned); err != nil {
		return nil, fmt.Errorf("decode badges: %w", err)
	}
	if st.BadgesEarned == nil {
		st.BadgesEarned = []string{}
	}
	return &st, nil
}

// Get returns the stored stats for a user, or nil if none exist yet.
func (s *GameStatsStore) Get(ctx context.Context, userID string) (*model.UserGameStats, error) {
	st, err := getStats(ctx, s.db, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

func putStats(ctx context.Context, tx *sql.Tx, st *model.UserGameStats) error {
	badges, err := json.Marshal(st.BadgesEarned)
	if err != nil {
		return fmt.Errorf("encode badges: %w", err)
	}
	var lastDate sql.NullString
	if st.LastActivityDate != nil {
		lastDate = sql.NullString{String: st.LastActivityDate.String(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_game_stats (user_id, level, experience_points, total_experience, current_streak,
			longest_streak, last_activity_date, total_activities_logged, total_earnings, badges_earned, stale, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
			level = excluded.level,
			experience_points = excluded.experience_points,
			total_experience = excluded.total_experience,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			total_activities_logged = excluded.total_activities_logged,
			total_earnings = excluded.total_earnings,
			badges_earned = excluded.badges_earned,
			updated_at = excluded.updated_at`,
		st.UserID, st.Level, st.ExperiencePoints, st.TotalExperience, st.CurrentStreak,
		st.LongestStreak, lastDate, st.TotalActivitiesLogged, st.TotalEarnings.String(), string(badges),
	)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// Apply folds one event into a user's stats. The event key is recorded in
// the same transaction as the stats write; if the key was already recorded
// nothing happens and Apply reports false. fn receives the current stats
// (fresh defaults for a new user) and mutates them in place. The stale flag
// is left alone: only Replace clears it.
func (s *GameStatsStore) Apply(ctx context.Context, userID, eventKey string, fn func(*model.UserGameStats) error) (*model.UserGameStats, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (user_id, event_key) VALUES (?, ?)`,
		userID, eventKey,
	)
	if err != nil {
		return nil, false, fmt.Errorf("record event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, false, nil
	}

	st, err := getStats(ctx, tx, userID)
	if err == sql.ErrNoRows {
		fresh := model.NewUserGameStats(userID)
		st = &fresh
	} else if err != nil {
		return nil, false, fmt.Errorf("load stats: %w", err)
	}

	if err := fn(st); err != nil {
		return nil, false, err
	}
	if err := putStats(ctx, tx, st); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return st, true, nil
}

// Replace overwrites a user's stats and processed-event set with the result
// of a full replay, clearing the stale flag.
func (s *GameStatsStore) Replace(ctx context.Context, st *model.UserGameStats, eventKeys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_events WHERE user_id = ?`, st.UserID); err != nil {
		return fmt.Errorf("clear processed events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO processed_events (user_id, event_key) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, key := range eventKeys {
		if _, err := stmt.ExecContext(ctx, st.UserID, key); err != nil {
			return fmt.Errorf("record event %s: %w", key, err)
		}
	}

	if err := putStats(ctx, tx, st); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_game_stats SET stale = 0 WHERE user_id = ?`, st.UserID); err != nil {
		return fmt.Errorf("clear stale: %w", err)
	}
	return tx.Commit()
}

// MarkStale flags a user's stats as needing a rebuild from the log history.
func (s *GameStatsStore) MarkStale(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_game_stats (user_id, stale) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET stale = 1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	return nil
}

func (s *GameStatsStore) ListStale(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_game_stats WHERE stale = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *GameStatsStore) IsStale(ctx context.Context, userID string) (bool, error) {
	var stale bool
	err := s.db.QueryRowContext(ctx, `SELECT stale FROM user_game_stats WHERE user_id = ?`, userID).Scan(&stale)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check stale: %w", err)
	}
	return stale, nil
}
