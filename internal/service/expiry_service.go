package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/invoke"
)

// DefaultSweepSchedule runs the expiry sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// ExpiryService periodically moves overdue pending actions to expired and
// logs each expiry. An expired action can never be approved afterward; the
// requester must ask again.
type ExpiryService struct {
	pending  approval.Store
	recorder invoke.Recorder
	logger   *slog.Logger

	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// ExpiryOption configures an ExpiryService.
type ExpiryOption func(*ExpiryService)

// WithSweepSchedule overrides the sweep schedule (cron or @every syntax).
func WithSweepSchedule(schedule string) ExpiryOption {
	return func(s *ExpiryService) { s.schedule = schedule }
}

// NewExpiryService creates an ExpiryService.
func NewExpiryService(pending approval.Store, recorder invoke.Recorder, logger *slog.Logger, opts ...ExpiryOption) *ExpiryService {
	s := &ExpiryService{
		pending:  pending,
		recorder: recorder,
		logger:   logger,
		schedule: DefaultSweepSchedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the periodic sweep. An immediate sweep also runs so a
// restart does not wait a full interval to clear overdue actions.
func (s *ExpiryService) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	s.cron.Start()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("initial expiry sweep failed", "error", err)
	}
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *ExpiryService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep expires every pending action whose deadline has passed and records
// one expired entry per action.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC()
	expired, err := s.pending.ExpireBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending actions: %w", err)
	}

	for _, p := range expired {
		s.logger.Info("pending action expired",
			"pending_id", p.ID,
			"org_id", p.OrganizationID,
			"capability", p.CapabilityName,
			"expired_at", p.ExpiresAt,
		)
		s.recorder.Record(audit.Entry{
			ID:              uuid.New().String(),
			OrganizationID:  p.OrganizationID,
			CapabilityName:  p.CapabilityName,
			Category:        p.Category,
			Arguments:       audit.RedactArguments(p.Arguments),
			Outcome:         audit.OutcomeExpired,
			Reason:          "approval window elapsed without a decision",
			PendingActionID: p.ID,
			UserID:          p.UserID,
			SessionID:       p.SessionID,
			ConversationID:  p.ConversationID,
			AttemptKey:      audit.AttemptKey(p.ID, audit.OutcomeExpired),
			Timestamp:       cutoff,
		})
	}
	return len(expired), nil
}
