package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupAuthMiddleware(t *testing.T) (*auth.Tokens, *store.FamilyStore, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	families := store.NewFamilyStore(db)
	ctx := context.Background()
	fam, err := families.Create(ctx, "Rivera")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	families.AddMember(ctx, fam.ID, "parent-1", "Mom", model.RoleParent)
	families.AddMember(ctx, fam.ID, "child-1", "Sam", model.RoleChild)

	return auth.NewTokens([]byte("test-secret"), "tallyup"), families, fam.ID
}

func captureAuth(t *testing.T, got *auth.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected auth context")
		}
		*got = ac
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthNoToken(t *testing.T) {
	tokens, families, _ := setupAuthMiddleware(t)

	handler := RequireAuth(tokens, families, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	tokens, families, _ := setupAuthMiddleware(t)

	handler := RequireAuth(tokens, families, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthNonMember(t *testing.T) {
	tokens, families, famID := setupAuthMiddleware(t)
	raw, _ := tokens.Issue("stranger", famID, time.Hour)

	handler := RequireAuth(tokens, families, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	tokens, families, famID := setupAuthMiddleware(t)
	raw, _ := tokens.Issue("parent-1", famID, time.Hour)

	var got auth.AuthContext
	handler := RequireAuth(tokens, families, testLogger())(captureAuth(t, &got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.UserID != "parent-1" || got.FamilyID != famID || got.Role != model.RoleParent {
		t.Errorf("auth = %+v", got)
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	tokens, families, famID := setupAuthMiddleware(t)
	raw, _ := tokens.Issue("child-1", famID, time.Hour)

	var got auth.AuthContext
	handler := RequireAuth(tokens, families, testLogger())(captureAuth(t, &got))

	req := httptest.NewRequest("GET", "/ws?token="+raw, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.Role != model.RoleChild {
		t.Errorf("role = %q, want child", got.Role)
	}
}

func TestRequireParent(t *testing.T) {
	handler := RequireParent(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		role string
		want int
	}{
		{model.RoleParent, http.StatusOK},
		{model.RoleChild, http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/logs/pending", nil)
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: "u", FamilyID: "fam", Role: tt.role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.role, rec.Code, tt.want)
		}
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	handler := RequestLogger(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
