package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
)

type ActivityStore interface {
	Create(ctx context.Context, familyID, name, unit string, rate decimal.Decimal, createdBy string) (*model.Activity, error)
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	ListByFamily(ctx context.Context, familyID string) ([]model.Activity, error)
	UpdateRate(ctx context.Context, id string, rate decimal.Decimal) (*model.Activity, error)
}

type ActivityHandler struct {
	store  ActivityStore
	logger *slog.Logger
}

func NewActivityHandler(s ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: s, logger: logger}
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	activities, err := h.store.ListByFamily(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if activities == nil {
		activities = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

type activityRequest struct {
	Name string          `json:"name" validate:"required,max=100"`
	Unit string          `json:"unit" validate:"required,max=30"`
	Rate decimal.Decimal `json:"rate"`
}

// Create adds an activity to the caller's family. Parent only.
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	activity, err := h.store.Create(r.Context(), ac.FamilyID, req.Name, req.Unit, req.Rate, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

// UpdateRate changes the rate for future logs. Existing logs keep the rate
// they were created with. Parent only.
func (h *ActivityHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := r.PathValue("id")
	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing == nil || existing.FamilyID != auth.FamilyID(r.Context()) {
		writeError(w, h.logger, apperror.NotFound("activity not found"))
		return
	}

	activity, err := h.store.UpdateRate(r.Context(), id, req.Rate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}
