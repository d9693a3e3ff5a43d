package model

import "time"

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type FamilyMember struct {
	FamilyID    string    `json:"family_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	HasPIN      bool      `json:"has_pin"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m FamilyMember) IsParent() bool {
	return m.Role == RoleParent
}
