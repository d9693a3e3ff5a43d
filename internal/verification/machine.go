// Package verification implements the log entry lifecycle: a log is created
// pending and moves exactly once to approved or rejected, and only on the
// say-so of a parent of the log's family.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/model"
)

// ParseVerdict accepts only the two terminal states.
func ParseVerdict(s string) (model.VerificationStatus, error) {
	switch v := model.VerificationStatus(s); v {
	case model.StatusApproved, model.StatusRejected:
		return v, nil
	default:
		return "", apperror.Validation("verdict must be %q or %q", model.StatusApproved, model.StatusRejected)
	}
}

// CanTransition reports whether from -> to is a permitted move.
func CanTransition(from, to model.VerificationStatus) bool {
	return from == model.StatusPending && (to == model.StatusApproved || to == model.StatusRejected)
}

// Authorizer answers whether a user holds parent privilege in a family.
type Authorizer interface {
	HasParentPrivilege(ctx context.Context, userID, familyID string) (bool, error)
}

// Grant is proof that a verifier was checked for parent privilege in a
// family. The zero Grant authorizes nothing; the only way to get a usable
// one is AssertAuthority.
type Grant struct {
	verifierID string
	familyID   string
}

func (g Grant) VerifierID() string { return g.verifierID }
func (g Grant) FamilyID() string   { return g.familyID }

func (g Grant) valid() bool {
	return g.verifierID != "" && g.familyID != ""
}

// AssertAuthority asks the authorizer about verifierID and returns a Grant
// scoped to familyID, or an authorization error.
func AssertAuthority(ctx context.Context, a Authorizer, verifierID, familyID string) (Grant, error) {
	if verifierID == "" || familyID == "" {
		return Grant{}, apperror.Authorization("verifier and family are required")
	}
	ok, err := a.HasParentPrivilege(ctx, verifierID, familyID)
	if err != nil {
		return Grant{}, fmt.Errorf("check parent privilege: %w", err)
	}
	if !ok {
		return Grant{}, apperror.Authorization("user %s is not a parent in family %s", verifierID, familyID)
	}
	return Grant{verifierID: verifierID, familyID: familyID}, nil
}

// Transition applies verdict to entry under grant and returns the updated
// copy. entry itself is not modified.
func Transition(entry model.LogEntry, verdict model.VerificationStatus, g Grant, at time.Time) (model.LogEntry, error) {
	if !g.valid() {
		return entry, apperror.Authorization("transition requires a verifier authority grant")
	}
	if g.familyID != entry.FamilyID {
		return entry, apperror.Authorization("grant for family %s does not cover log in family %s", g.familyID, entry.FamilyID)
	}
	if _, err := ParseVerdict(string(verdict)); err != nil {
		return entry, err
	}
	if !CanTransition(entry.VerificationStatus, verdict) {
		return entry, apperror.InvalidState("log %s is already %s", entry.ID, entry.VerificationStatus)
	}

	verifiedBy := g.verifierID
	verifiedAt := at.UTC()
	entry.VerificationStatus = verdict
	entry.VerifiedBy = &verifiedBy
	entry.VerifiedAt = &verifiedAt
	return entry, nil
}
