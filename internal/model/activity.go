package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity is a family's rate card for one kind of trackable work.
type Activity struct {
	ID        string          `json:"id"`
	FamilyID  string          `json:"family_id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
