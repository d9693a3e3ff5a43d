package earnings

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

type LogQuerier interface {
	Query(ctx context.Context, f store.LogFilter) ([]model.LogEntry, error)
}

type RateSource interface {
	Rates(ctx context.Context, familyID string) (map[string]decimal.Decimal, error)
}

type Service struct {
	logs  LogQuerier
	rates RateSource
	loc   *time.Location
	now   func() time.Time
}

// NewService returns an aggregator whose "today" window follows loc.
func NewService(logs LogQuerier, rates RateSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{logs: logs, rates: rates, loc: loc, now: time.Now}
}

// Window returns the standard window of kind ending now.
func (s *Service) Window(kind Kind) Window {
	return For(kind, s.now(), s.loc)
}

// GetEarnings totals userID's logs in familyID over w.
func (s *Service) GetEarnings(ctx context.Context, userID, familyID string, w Window) (model.Earnings, error) {
	if userID == "" || familyID == "" {
		return model.Earnings{}, apperror.Validation("user and family are required")
	}

	logs, err := s.logs.Query(ctx, store.LogFilter{
		FamilyID: familyID,
		UserID:   userID,
		From:     w.Start,
		To:       w.End,
	})
	if err != nil {
		return model.Earnings{}, fmt.Errorf("query logs: %w", err)
	}

	var rates map[string]decimal.Decimal
	if needsRates(logs) {
		rates, err = s.rates.Rates(ctx, familyID)
		if err != nil {
			return model.Earnings{}, fmt.Errorf("load rates: %w", err)
		}
	}
	return Compute(logs, rates, w), nil
}
