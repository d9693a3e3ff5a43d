package handler

import (
	"context"
	"fmt"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
)

type MemberLookup interface {
	GetMember(ctx context.Context, familyID, userID string) (*model.FamilyMember, error)
}

// checkSubject allows reading a user's data to the user themself and to
// parents of the caller's family.
func checkSubject(ctx context.Context, members MemberLookup, userID string) error {
	ac, ok := auth.FromContext(ctx)
	if !ok {
		return apperror.Authorization("not authenticated")
	}
	if userID == ac.UserID {
		return nil
	}
	if !ac.IsParent() {
		return apperror.Authorization("only parents may view other members")
	}
	m, err := members.GetMember(ctx, ac.FamilyID, userID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return apperror.NotFound("user %s is not in this family", userID)
	}
	return nil
}
