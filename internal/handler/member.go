package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
)

type MemberStore interface {
	ListMembers(ctx context.Context, familyID string) ([]model.FamilyMember, error)
	SetPIN(ctx context.Context, familyID, userID, pin string) error
	ClearPIN(ctx context.Context, familyID, userID string) error
}

type MemberHandler struct {
	store  MemberStore
	logger *slog.Logger
}

func NewMemberHandler(s MemberStore, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{store: s, logger: logger}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.ListMembers(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

// SetPIN sets the caller's own verification PIN.
func (h *MemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin" validate:"required,len=4,numeric"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if err := h.store.SetPIN(r.Context(), ac.FamilyID, ac.UserID, req.PIN); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *MemberHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.store.ClearPIN(r.Context(), ac.FamilyID, ac.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}
