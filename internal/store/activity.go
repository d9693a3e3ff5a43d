package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/model"
)

type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func scanActivity(scanner interface{ Scan(...any) error }) (*model.Activity, error) {
	var a model.Activity
	err := scanner.Scan(&a.ID, &a.FamilyID, &a.Name, &a.Unit, &a.Rate, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const activityCols = `id, family_id, name, unit, rate, created_by, created_at, updated_at`

func (s *ActivityStore) Create(ctx context.Context, familyID, name, unit string, rate decimal.Decimal, createdBy string) (*model.Activity, error) {
	name = strings.TrimSpace(name)
	unit = strings.TrimSpace(unit)
	if name == "" || unit == "" {
		return nil, apperror.Validation("activity name and unit are required")
	}
	if !rate.IsPositive() {
		return nil, apperror.Validation("rate must be a positive value")
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, family_id, name, unit, rate, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		id, familyID, name, unit, rate.String(), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ActivityStore) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityCols+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (s *ActivityStore) ListByFamily(ctx context.Context, familyID string) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityCols+` FROM activities WHERE family_id = ? ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// UpdateRate changes the live rate. Logs keep the rate they were created with.
func (s *ActivityStore) UpdateRate(ctx context.Context, id string, rate decimal.Decimal) (*model.Activity, error) {
	if !rate.IsPositive() {
		return nil, apperror.Validation("rate must be a positive value")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE activities SET rate = ? WHERE id = ?`, rate.String(), id)
	if err != nil {
		return nil, fmt.Errorf("update activity rate: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Rates returns the live rate of every activity in the family.
func (s *ActivityStore) Rates(ctx context.Context, familyID string) (map[string]decimal.Decimal, error) {
	activities, err := s.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	rates := make(map[string]decimal.Decimal, len(activities))
	for _, a := range activities {
		rates[a.ID] = a.Rate
	}
	return rates, nil
}
