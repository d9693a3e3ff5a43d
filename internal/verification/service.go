package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tallyup/internal/apperror"
	"github.com/dukerupert/tallyup/internal/events"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

type LogStore interface {
	Create(ctx context.Context, l *model.LogEntry) error
	GetByID(ctx context.Context, id string) (*model.LogEntry, error)
	TransitionFromPending(ctx context.Context, id string, status model.VerificationStatus, verifiedBy string, verifiedAt time.Time) (bool, error)
	Query(ctx context.Context, f store.LogFilter) ([]model.LogEntry, error)
}

type ActivityRegistry interface {
	GetByID(ctx context.Context, id string) (*model.Activity, error)
}

// Membership extends Authorizer with the plain membership check used when
// a child logs work.
type Membership interface {
	Authorizer
	IsMember(ctx context.Context, userID, familyID string) (bool, error)
}

type Publisher interface {
	Publish(events.Event)
}

// Service runs the create and verify operations against the stores and
// publishes an event for every committed change.
type Service struct {
	logs       LogStore
	activities ActivityRegistry
	members    Membership
	publisher  Publisher
	logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(logs LogStore, activities ActivityRegistry, members Membership, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		logs:       logs,
		activities: activities,
		members:    members,
		publisher:  publisher,
		logger:     logger.With("component", "verification"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// CreateLog records a pending claim of units of activityID by userID. The
// activity's current rate is copied onto the entry.
func (s *Service) CreateLog(ctx context.Context, activityID, userID, familyID string, units int) (*model.LogEntry, error) {
	activityID = strings.TrimSpace(activityID)
	if activityID == "" || userID == "" || familyID == "" {
		return nil, apperror.Validation("activity, user and family are required")
	}
	if units <= 0 {
		return nil, apperror.Validation("units must be a positive integer")
	}

	member, err := s.members.IsMember(ctx, userID, familyID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		err := apperror.Authorization("user %s is not a member of family %s", userID, familyID)
		s.audit("create_log", userID, familyID, "", err)
		return nil, err
	}

	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if activity == nil || activity.FamilyID != familyID {
		return nil, apperror.Validation("activity %s does not exist in this family", activityID)
	}

	entry := &model.LogEntry{
		ID:                 s.newID(),
		ActivityID:         activity.ID,
		UserID:             userID,
		FamilyID:           familyID,
		Units:              units,
		Rate:               activity.Rate,
		Timestamp:          s.now().UTC(),
		VerificationStatus: model.StatusPending,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("log created", "log_id", entry.ID, "user_id", userID, "activity_id", activity.ID, "units", units)
	s.publisher.Publish(events.FromLog(events.LogCreated, entry))
	return entry, nil
}

// Verify moves a pending log to verdict on behalf of verifierID. The write
// is a single conditional update, so of two concurrent verifiers exactly
// one succeeds and the other gets an invalid state error.
func (s *Service) Verify(ctx context.Context, logID string, verdict model.VerificationStatus, verifierID string) (*model.LogEntry, error) {
	if _, err := ParseVerdict(string(verdict)); err != nil {
		return nil, err
	}

	entry, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	if entry == nil {
		return nil, apperror.NotFound("log %s not found", logID)
	}

	grant, err := AssertAuthority(ctx, s.members, verifierID, entry.FamilyID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAuthorization {
			s.audit("verify", verifierID, entry.FamilyID, logID, err)
		}
		return nil, err
	}

	next, err := Transition(*entry, verdict, grant, s.now())
	if err != nil {
		return nil, err
	}

	ok, err := s.logs.TransitionFromPending(ctx, next.ID, next.VerificationStatus, *next.VerifiedBy, *next.VerifiedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.InvalidState("log %s was verified concurrently", logID)
	}

	s.logger.Info("log verified", "log_id", logID, "status", next.VerificationStatus, "verified_by", verifierID)

	eventType := events.LogRejected
	if next.VerificationStatus == model.StatusApproved {
		eventType = events.LogApproved
	}
	s.publisher.Publish(events.FromLog(eventType, &next))
	return &next, nil
}

// ListLogs returns the entries matching f, oldest first.
func (s *Service) ListLogs(ctx context.Context, f store.LogFilter) ([]model.LogEntry, error) {
	return s.logs.Query(ctx, f)
}

// Get returns a single entry or a not found error.
func (s *Service) Get(ctx context.Context, logID string) (*model.LogEntry, error) {
	entry, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	if entry == nil {
		return nil, apperror.NotFound("log %s not found", logID)
	}
	return entry, nil
}

func (s *Service) audit(op, userID, familyID, logID string, err error) {
	s.logger.Warn("authorization denied",
		"audit", true,
		"op", op,
		"user_id", userID,
		"family_id", familyID,
		"log_id", logID,
		"error", err,
	)
}
