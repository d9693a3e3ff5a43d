package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tallyup/internal/model"
)

// LogStore persists log entries. Instants are stored as unix nanoseconds.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// LogFilter narrows a log query. The zero value of a field means no
// constraint. From is inclusive and To exclusive.
type LogFilter struct {
	FamilyID string
	UserID   string
	Status   model.VerificationStatus
	From     time.Time
	To       time.Time
}

func scanLog(scanner interface{ Scan(...any) error }) (*model.LogEntry, error) {
	var l model.LogEntry
	var loggedAt int64
	var status string
	var verifiedBy sql.NullString
	var verifiedAt sql.NullInt64

	err := scanner.Scan(
		&l.ID, &l.ActivityID, &l.UserID, &l.FamilyID, &l.Units, &l.Rate,
		&loggedAt, &status, &verifiedBy, &verifiedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Timestamp = time.Unix(0, loggedAt).UTC()
	l.VerificationStatus = model.VerificationStatus(status)
	if verifiedBy.Valid {
		l.VerifiedBy = &verifiedBy.String
	}
	if verifiedAt.Valid {
		t := time.Unix(0, verifiedAt.Int64).UTC()
		l.VerifiedAt = &t
	}
	return &l, nil
}

const logCols = `id, activity_id, user_id, family_id, units, rate, logged_at, verification_status, verified_by, verified_at`

// Create inserts a new entry. The entry must be pending and unverified; the
// table constraints reject anything else.
func (s *LogStore) Create(ctx context.Context, l *model.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_entries (id, activity_id, user_id, family_id, units, rate, logged_at, verification_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ActivityID, l.UserID, l.FamilyID, l.Units, l.Rate.String(),
		l.Timestamp.UnixNano(), string(l.VerificationStatus),
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (s *LogStore) GetByID(ctx context.Context, id string) (*model.LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logCols+` FROM log_entries WHERE id = ?`, id)
	l, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return l, nil
}

// TransitionFromPending applies a verdict only if the entry is still
// pending, as a single conditional UPDATE. It reports false when another
// writer got there first (or the entry does not exist).
func (s *LogStore) TransitionFromPending(ctx context.Context, id string, status model.VerificationStatus, verifiedBy string, verifiedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE log_entries
		 SET verification_status = ?, verified_by = ?, verified_at = ?
		 WHERE id = ? AND verification_status = 'pending'`,
		string(status), verifiedBy, verifiedAt.UnixNano(), id,
	)
	if err != nil {
		return false, fmt.Errorf("transition log entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *LogStore) Query(ctx context.Context, f LogFilter) ([]model.LogEntry, error) {
	var where []string
	var args []any

	if f.FamilyID != "" {
		where = append(where, "family_id = ?")
		args = append(args, f.FamilyID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "verification_status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "logged_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "logged_at < ?")
		args = append(args, f.To.UnixNano())
	}

	query := `SELECT ` + logCols + ` FROM log_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY logged_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var logs []model.LogEntry
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// ListByUser returns every entry a user has logged, oldest first.
func (s *LogStore) ListByUser(ctx context.Context, userID string) ([]model.LogEntry, error) {
	return s.Query(ctx, LogFilter{UserID: userID})
}

// ListUserIDs returns the distinct ids of users with at least one entry.
func (s *LogStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM log_entries ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list log users: %w", err)
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
