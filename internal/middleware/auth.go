package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
)

// MemberLookup resolves a token's user to their family membership.
type MemberLookup interface {
	GetMember(ctx context.Context, familyID, userID string) (*model.FamilyMember, error)
}

// RequireAuth validates the bearer token (Authorization header, or the
// token query parameter for websocket clients) and populates AuthContext
// with the caller's role in the token's family.
func RequireAuth(tokens *auth.Tokens, members MemberLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing token")
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				logger.Debug("rejected token", "error", err, "remote", RealIP(r))
				unauthorized(w, "invalid token")
				return
			}

			member, err := members.GetMember(r.Context(), claims.FamilyID, claims.Subject)
			if err != nil {
				logger.Error("lookup member", "user_id", claims.Subject, "family_id", claims.FamilyID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if member == nil {
				logger.Warn("token for non-member", "audit", true, "user_id", claims.Subject, "family_id", claims.FamilyID)
				unauthorized(w, "not a member of this family")
				return
			}

			ac := auth.AuthContext{
				UserID:   member.UserID,
				FamilyID: member.FamilyID,
				Role:     member.Role,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent checks that the authenticated user is a parent in their family.
func RequireParent(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.IsParent(r.Context()) {
				logger.Warn("authorization denied", "audit", true, "op", r.Method+" "+r.URL.Path,
					"user_id", auth.UserID(r.Context()), "family_id", auth.FamilyID(r.Context()))
				writeError(w, http.StatusForbidden, "parent privilege required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserKey keys rate limits by authenticated user, falling back to client IP.
func UserKey(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + RealIP(r)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tallyup"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
