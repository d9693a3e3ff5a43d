package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/model"
)

type parentSet map[string]bool

func (p parentSet) HasParentPrivilege(_ context.Context, userID, familyID string) (bool, error) {
	return p[familyID+"/"+userID], nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in      string
		want    model.VerificationStatus
		wantErr bool
	}{
		{"approved", model.StatusApproved, false},
		{"rejected", model.StatusRejected, false},
		{"pending", "", true},
		{"APPROVED", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVerdict(tt.in)
		if tt.wantErr {
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("ParseVerdict(%q) err = %v, want validation error", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseVerdict(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	statuses := []model.VerificationStatus{model.StatusPending, model.StatusApproved, model.StatusRejected}
	for _, from := range statuses {
		for _, to := range statuses {
			want := from == model.StatusPending && to != model.StatusPending
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAssertAuthority(t *testing.T) {
	parents := parentSet{"fam/parent-1": true}
	ctx := context.Background()

	g, err := AssertAuthority(ctx, parents, "parent-1", "fam")
	if err != nil {
		t.Fatalf("assert authority: %v", err)
	}
	if g.VerifierID() != "parent-1" || g.FamilyID() != "fam" {
		t.Errorf("grant = %+v, want parent-1/fam", g)
	}

	if _, err := AssertAuthority(ctx, parents, "child-1", "fam"); !errors.Is(err, apperror.ErrAuthorization) {
		t.Errorf("child err = %v, want authorization error", err)
	}
	if _, err := AssertAuthority(ctx, parents, "parent-1", "other"); !errors.Is(err, apperror.ErrAuthorization) {
		t.Errorf("other family err = %v, want authorization error", err)
	}
}

func pendingEntry() model.LogEntry {
	return model.LogEntry{ID: "log-1", FamilyID: "fam", UserID: "child-1", Units: 1, VerificationStatus: model.StatusPending}
}

func TestTransition(t *testing.T) {
	g, _ := AssertAuthority(context.Background(), parentSet{"fam/parent-1": true}, "parent-1", "fam")
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	entry := pendingEntry()

	got, err := Transition(entry, model.StatusApproved, g, at)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.VerificationStatus != model.StatusApproved {
		t.Errorf("status = %q, want approved", got.VerificationStatus)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != "parent-1" {
		t.Errorf("verified_by = %v, want parent-1", got.VerifiedBy)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(at) {
		t.Errorf("verified_at = %v, want %v", got.VerifiedAt, at)
	}
	if entry.VerificationStatus != model.StatusPending || entry.VerifiedBy != nil {
		t.Error("input entry was modified")
	}

	if _, err := Transition(got, model.StatusRejected, g, at); !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("re-verify err = %v, want invalid state", err)
	}
}

func TestTransitionRequiresGrant(t *testing.T) {
	at := time.Now()

	if _, err := Transition(pendingEntry(), model.StatusApproved, Grant{}, at); !errors.Is(err, apperror.ErrAuthorization) {
		t.Errorf("zero grant err = %v, want authorization error", err)
	}

	other, _ := AssertAuthority(context.Background(), parentSet{"other/parent-9": true}, "parent-9", "other")
	if _, err := Transition(pendingEntry(), model.StatusApproved, other, at); !errors.Is(err, apperror.ErrAuthorization) {
		t.Errorf("foreign grant err = %v, want authorization error", err)
	}
}

func TestTransitionRejectsPendingVerdict(t *testing.T) {
	g, _ := AssertAuthority(context.Background(), parentSet{"fam/parent-1": true}, "parent-1", "fam")

	if _, err := Transition(pendingEntry(), model.StatusPending, g, time.Now()); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
