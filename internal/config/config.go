// Package config loads server settings from TALLYUP_* environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Addr      string
	DBPath    string
	LogLevel  string
	LogFormat string

	JWTSecret []byte
	JWTIssuer string

	// Location defines the calendar day for "today" earnings and streaks.
	Location *time.Location

	Workers          int
	QueueSize        int
	MaxRetries       uint64
	BackfillSchedule string

	LogRateLimit  int
	LogRateWindow time.Duration
}

// Load reads the given .env files (missing files are ignored) and then the
// process environment. Variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	intVar := func(key string, def int) int {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", key, raw))
			return def
		}
		return n
	}

	cfg := &Config{
		Addr:             get("TALLYUP_ADDR", ":8080"),
		DBPath:           get("TALLYUP_DB_PATH", "tallyup.db"),
		LogLevel:         get("TALLYUP_LOG_LEVEL", "info"),
		LogFormat:        get("TALLYUP_LOG_FORMAT", "text"),
		JWTSecret:        []byte(getenv("TALLYUP_JWT_SECRET")),
		JWTIssuer:        get("TALLYUP_JWT_ISSUER", "tallyup"),
		Workers:          intVar("TALLYUP_WORKERS", 4),
		QueueSize:        intVar("TALLYUP_QUEUE_SIZE", 256),
		MaxRetries:       uint64(intVar("TALLYUP_MAX_RETRIES", 3)),
		BackfillSchedule: get("TALLYUP_BACKFILL_SCHEDULE", "@every 5m"),
		LogRateLimit:     intVar("TALLYUP_LOG_RATE_LIMIT", 30),
	}

	if len(cfg.JWTSecret) == 0 {
		errs = append(errs, errors.New("TALLYUP_JWT_SECRET is required"))
	}

	loc, err := time.LoadLocation(get("TALLYUP_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TALLYUP_TIMEZONE: %w", err))
	}
	cfg.Location = loc

	window, err := time.ParseDuration(get("TALLYUP_LOG_RATE_WINDOW", "1m"))
	if err != nil || window <= 0 {
		errs = append(errs, fmt.Errorf("TALLYUP_LOG_RATE_WINDOW must be a positive duration"))
	}
	cfg.LogRateWindow = window

	if _, err := cron.ParseStandard(cfg.BackfillSchedule); err != nil {
		errs = append(errs, fmt.Errorf("TALLYUP_BACKFILL_SCHEDULE: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
