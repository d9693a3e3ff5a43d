package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tallyup/internal/gamification"
	"github.com/dukerupert/tallyup/internal/model"
)

type StatsReader interface {
	Get(ctx context.Context, userID string) (*model.UserGameStats, error)
}

type StatsHandler struct {
	stats   StatsReader
	members MemberLookup
	logger  *slog.Logger
}

func NewStatsHandler(stats StatsReader, members MemberLookup, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, members: members, logger: logger}
}

func (h *StatsHandler) load(w http.ResponseWriter, r *http.Request) (model.UserGameStats, bool) {
	userID := r.PathValue("user_id")
	if err := checkSubject(r.Context(), h.members, userID); err != nil {
		writeError(w, h.logger, err)
		return model.UserGameStats{}, false
	}

	st, err := h.stats.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return model.UserGameStats{}, false
	}
	if st == nil {
		return model.NewUserGameStats(userID), true
	}
	return *st, true
}

// Stats returns the user's level, XP progress, streaks and earned badges.
// A user with no history gets the initial stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, gamification.View(st))
}

// Catalog lists every badge.
func (h *StatsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gamification.Catalog())
}

// UserBadges lists the catalog marked with the user's earned set.
func (h *StatsHandler) UserBadges(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, gamification.BadgesFor(st))
}
