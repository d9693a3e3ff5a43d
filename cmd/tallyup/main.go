package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/config"
	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/earnings"
	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/gamification"
	"github.com/dukerupert/tallyup/internal/logging"
	"github.com/dukerupert/tallyup/internal/metrics"
	"github.com/dukerupert/tallyup/internal/server"
	"github.com/dukerupert/tallyup/internal/store"
	"github.com/dukerupert/tallyup/internal/verification"
	ws "github.com/dukerupert/tallyup/internal/websocket"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	families := store.NewFamilyStore(db)
	activities := store.NewActivityStore(db)
	logs := store.NewLogStore(db)
	stats := store.NewGameStatsStore(db)

	m := metrics.New()
	hub := ws.NewHub(logger.With("component", "websocket"))
	notifier := ws.NewNotifier(hub)
	bus := events.NewBus(logger.With("component", "events"))

	pipeline := gamification.NewPipeline(
		gamification.NewAccumulator(cfg.Location),
		stats, logs,
		gamification.PipelineConfig{
			Workers:    cfg.Workers,
			QueueSize:  cfg.QueueSize,
			MaxRetries: cfg.MaxRetries,
		},
		gamification.Hooks{
			Processed: m.GamificationProcessed,
			Updated:   notifier.StatsUpdated,
		},
		logger,
	)

	bus.Subscribe(m)
	bus.Subscribe(notifier)
	bus.Subscribe(pipeline)

	backfill, err := gamification.NewBackfill(stats, pipeline, cfg.BackfillSchedule, logger)
	if err != nil {
		slog.Error("failed to schedule backfill", "error", err)
		os.Exit(1)
	}
	backfill.Observe(m.BackfillRebuilt)

	srv := server.New(server.Deps{
		DB:            db,
		Verification:  verification.NewService(logs, activities, families, bus, logger),
		Earnings:      earnings.NewService(logs, activities, cfg.Location),
		Families:      families,
		Activities:    activities,
		Stats:         stats,
		Tokens:        auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer),
		Hub:           hub,
		Metrics:       m,
		LogRateLimit:  cfg.LogRateLimit,
		LogRateWindow: cfg.LogRateWindow,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	pipeline.Start(bgCtx)

	// Users left stale by a previous shutdown are rebuilt before new events
	// pile onto them.
	if n, err := backfill.RunOnce(bgCtx); err != nil {
		slog.Error("startup backfill", "error", err)
	} else if n > 0 {
		slog.Info("rebuilt stale stats", "count", n)
	}
	backfill.Start()

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("tallyup starting", "addr", cfg.Addr, "timezone", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	backfill.Stop()
	pipeline.Stop()
	bgCancel()
}
