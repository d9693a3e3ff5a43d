package auth

import (
	"context"

	"github.com/dukerupert/tallyup/internal/model"
)

type contextKey struct{}

// AuthContext is the authenticated caller. Role comes from family
// membership, not from the token.
type AuthContext struct {
	UserID   string
	FamilyID string
	Role     string
}

func (ac AuthContext) IsParent() bool {
	return ac.Role == model.RoleParent
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.FamilyID
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func IsParent(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsParent()
}
