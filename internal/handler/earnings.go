package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/earnings"
)

type EarningsHandler struct {
	svc     *earnings.Service
	members MemberLookup
	logger  *slog.Logger
}

func NewEarningsHandler(svc *earnings.Service, members MemberLookup, logger *slog.Logger) *EarningsHandler {
	return &EarningsHandler{svc: svc, members: members, logger: logger}
}

// Window serves GET /api/earnings/{user_id}/{window} for today and weekly.
func (h *EarningsHandler) Window(w http.ResponseWriter, r *http.Request) {
	kind, err := earnings.ParseWindowKind(r.PathValue("window"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.serve(w, r, h.svc.Window(kind))
}

// Range serves GET /api/earnings/{user_id}?from=&to= with RFC 3339 bounds.
func (h *EarningsHandler) Range(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"), "from")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	to, err := parseTime(q.Get("to"), "to")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	win, err := earnings.Custom(from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.serve(w, r, win)
}

func (h *EarningsHandler) serve(w http.ResponseWriter, r *http.Request, win earnings.Window) {
	userID := r.PathValue("user_id")
	if err := checkSubject(r.Context(), h.members, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	totals, err := h.svc.GetEarnings(r.Context(), userID, auth.FamilyID(r.Context()), win)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperror.Validation("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.Validation("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
