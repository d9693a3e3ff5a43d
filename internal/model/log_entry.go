package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
)

// LogEntry is one child's claim of completed units for an activity.
// Only VerificationStatus, VerifiedBy and VerifiedAt ever change, and only once.
type LogEntry struct {
	ID                 string             `json:"id"`
	ActivityID         string             `json:"activity_id"`
	UserID             string             `json:"user_id"`
	FamilyID           string             `json:"family_id"`
	Units              int                `json:"units"`
	Rate               decimal.Decimal    `json:"rate"`
	Timestamp          time.Time          `json:"timestamp"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedBy         *string            `json:"verified_by"`
	VerifiedAt         *time.Time         `json:"verified_at"`
}

// Amount is units × the rate snapshotted at creation. No rounding is applied.
func (l LogEntry) Amount() decimal.Decimal {
	return l.Rate.Mul(decimal.NewFromInt(int64(l.Units)))
}

// HasRate reports whether a rate was snapshotted onto the entry.
func (l LogEntry) HasRate() bool {
	return l.Rate.IsPositive()
}

func (l LogEntry) IsPending() bool {
	return l.VerificationStatus == StatusPending
}
