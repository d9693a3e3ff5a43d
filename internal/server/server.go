package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/earnings"
	"github.com/dukerupert/tallyup/internal/handler"
	"github.com/dukerupert/tallyup/internal/metrics"
	"github.com/dukerupert/tallyup/internal/middleware"
	"github.com/dukerupert/tallyup/internal/store"
	"github.com/dukerupert/tallyup/internal/verification"
	ws "github.com/dukerupert/tallyup/internal/websocket"
)

// Deps are the long-lived services the router serves. The caller owns their
// lifecycle.
type Deps struct {
	DB           *sql.DB
	Verification *verification.Service
	Earnings     *earnings.Service
	Families     *store.FamilyStore
	Activities   *store.ActivityStore
	Stats        *store.GameStatsStore
	Tokens       *auth.Tokens
	Hub          *ws.Hub
	Metrics      *metrics.Metrics

	// LogRateLimit caps log creations per user per LogRateWindow.
	LogRateLimit  int
	LogRateWindow time.Duration
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	metrics     *metrics.Metrics
	tokens      *auth.Tokens
	families    *store.FamilyStore
	logH        *handler.LogHandler
	earningsH   *handler.EarningsHandler
	statsH      *handler.StatsHandler
	activityH   *handler.ActivityHandler
	memberH     *handler.MemberHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Server {
	if d.LogRateLimit <= 0 {
		d.LogRateLimit = 30
	}
	if d.LogRateWindow <= 0 {
		d.LogRateWindow = time.Minute
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	d.Metrics.WatchClients(d.Hub.ClientCount)

	return &Server{
		db:          d.DB,
		hub:         d.Hub,
		metrics:     d.Metrics,
		tokens:      d.Tokens,
		families:    d.Families,
		logH:        handler.NewLogHandler(d.Verification, d.Families, logger.With("component", "log_handler")),
		earningsH:   handler.NewEarningsHandler(d.Earnings, d.Families, logger.With("component", "earnings")),
		statsH:      handler.NewStatsHandler(d.Stats, d.Families, logger.With("component", "stats")),
		activityH:   handler.NewActivityHandler(d.Activities, logger.With("component", "activity")),
		memberH:     handler.NewMemberHandler(d.Families, logger.With("component", "member")),
		rateLimiter: middleware.NewRateLimiter(d.LogRateLimit, d.LogRateWindow),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.families, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return s.metrics.Instrument(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	version, err := database.SchemaVersion(r.Context(), s.db)
	if err != nil {
		s.logger.Error("health: schema version", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "schema_version": version})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.UserKey)(h)
}

func (s *Server) parentOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(s.logger.With("component", "auth"))(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Activity logs
	mux.Handle("POST /api/logs", s.rateLimitedHandler(s.logH.Create))
	mux.HandleFunc("GET /api/logs", s.logH.List)
	mux.Handle("GET /api/logs/pending", s.parentOnly(s.logH.Pending))
	mux.HandleFunc("GET /api/logs/{id}", s.logH.Get)
	mux.Handle("PATCH /api/logs/{id}/verify", s.parentOnly(s.logH.Verify))

	// Earnings
	mux.HandleFunc("GET /api/earnings/{user_id}", s.earningsH.Range)
	mux.HandleFunc("GET /api/earnings/{user_id}/{window}", s.earningsH.Window)

	// Gamification
	mux.HandleFunc("GET /api/stats/{user_id}", s.statsH.Stats)
	mux.HandleFunc("GET /api/badges", s.statsH.Catalog)
	mux.HandleFunc("GET /api/badges/{user_id}", s.statsH.UserBadges)

	// Activities
	mux.HandleFunc("GET /api/activities", s.activityH.List)
	mux.Handle("POST /api/activities", s.parentOnly(s.activityH.Create))
	mux.Handle("PATCH /api/activities/{id}", s.parentOnly(s.activityH.UpdateRate))

	// Family members
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.Handle("PUT /api/members/me/pin", s.parentOnly(s.memberH.SetPIN))
	mux.Handle("DELETE /api/members/me/pin", s.parentOnly(s.memberH.ClearPIN))

	// Change feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
