package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/model"
)

// FamilyStore holds family membership. It answers the authorization
// questions the verification core asks: is this user a member, and does
// this user have parent privilege in this family.
type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO families (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id string) (*model.Family, error) {
	var f model.Family
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM families WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return &f, nil
}

// --- Member methods ---

func scanMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	err := scanner.Scan(&m.FamilyID, &m.UserID, &m.DisplayName, &m.Role, &m.HasPIN, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const memberCols = `family_id, user_id, display_name, role, pin_hash IS NOT NULL, created_at`

func (s *FamilyStore) AddMember(ctx context.Context, familyID, userID, displayName, role string) (*model.FamilyMember, error) {
	if role != model.RoleParent && role != model.RoleChild {
		return nil, apperror.Validation("role must be %q or %q", model.RoleParent, model.RoleChild)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (family_id, user_id, display_name, role) VALUES (?, ?, ?, ?)`,
		familyID, userID, displayName, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetMember(ctx, familyID, userID)
}

func (s *FamilyStore) GetMember(ctx context.Context, familyID, userID string) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+` FROM family_members WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) ListMembers(ctx context.Context, familyID string) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM family_members WHERE family_id = ? ORDER BY role DESC, display_name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyStore) IsMember(ctx context.Context, userID, familyID string) (bool, error) {
	m, err := s.GetMember(ctx, familyID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (s *FamilyStore) HasParentPrivilege(ctx context.Context, userID, familyID string) (bool, error) {
	m, err := s.GetMember(ctx, familyID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.IsParent(), nil
}

// --- PIN methods ---

// SetPIN stores a bcrypt hash of a 4 digit PIN for the member. Parents with
// a PIN must present it when verifying logs on a shared device.
func (s *FamilyStore) SetPIN(ctx context.Context, familyID, userID, pin string) error {
	if len(pin) != 4 || !isDigits(pin) {
		return apperror.Validation("PIN must be exactly 4 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE family_members SET pin_hash = ? WHERE family_id = ? AND user_id = ?`,
		string(hash), familyID, userID,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("family member not found")
	}
	return nil
}

func (s *FamilyStore) ClearPIN(ctx context.Context, familyID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_members SET pin_hash = NULL WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// CheckPIN reports whether pin is acceptable for the member. A member
// without a PIN accepts any value.
func (s *FamilyStore) CheckPIN(ctx context.Context, familyID, userID, pin string) (bool, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT pin_hash FROM family_members WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pin: %w", err)
	}
	if !hash.Valid {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(pin)) == nil, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
