package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
	"github.com/dukerupert/tallyup/internal/verification"
)

// PINChecker confirms a parent's PIN. Parents without a PIN always pass.
type PINChecker interface {
	CheckPIN(ctx context.Context, familyID, userID, pin string) (bool, error)
}

type LogHandler struct {
	svc    *verification.Service
	pins   PINChecker
	logger *slog.Logger
}

func NewLogHandler(svc *verification.Service, pins PINChecker, logger *slog.Logger) *LogHandler {
	return &LogHandler{svc: svc, pins: pins, logger: logger}
}

type createLogRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	Units      int    `json:"units" validate:"required,gt=0"`
}

// Create logs units of an activity for the caller.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLogRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	entry, err := h.svc.CreateLog(r.Context(), req.ActivityID, ac.UserID, ac.FamilyID, req.Units)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// List returns the family's logs, oldest first. Children only see their own.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	q := r.URL.Query()

	f := store.LogFilter{
		FamilyID: ac.FamilyID,
		UserID:   q.Get("user_id"),
		Status:   model.VerificationStatus(q.Get("status")),
	}
	switch f.Status {
	case "", model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		writeMessage(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if !ac.IsParent() {
		if f.UserID != "" && f.UserID != ac.UserID {
			writeMessage(w, http.StatusForbidden, "children may only view their own logs")
			return
		}
		f.UserID = ac.UserID
	}

	h.list(w, r, f)
}

// Pending is the parent's verification queue.
func (h *LogHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.LogFilter{
		FamilyID: auth.FamilyID(r.Context()),
		Status:   model.StatusPending,
	})
}

func (h *LogHandler) list(w http.ResponseWriter, r *http.Request, f store.LogFilter) {
	logs, err := h.svc.ListLogs(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	entry, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entry.FamilyID != ac.FamilyID || (!ac.IsParent() && entry.UserID != ac.UserID) {
		writeMessage(w, http.StatusNotFound, "log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type verifyRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// Verify approves or rejects a pending log. A parent who has set a PIN must
// send it in X-Parent-PIN.
func (h *LogHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	ok, err := h.pins.CheckPIN(r.Context(), ac.FamilyID, ac.UserID, r.Header.Get("X-Parent-PIN"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		h.logger.Warn("incorrect parent PIN", "audit", true, "user_id", ac.UserID, "log_id", r.PathValue("id"))
		writeMessage(w, http.StatusForbidden, "incorrect PIN")
		return
	}

	entry, err := h.svc.Verify(r.Context(), r.PathValue("id"), model.VerificationStatus(req.Status), ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
