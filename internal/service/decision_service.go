package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/invoke"
)

// ErrInvalidDecision is returned when the decision verb is not approve or
// reject.
var ErrInvalidDecision = errors.New("invalid decision")

// maxResultSummaryLength bounds the human-readable result stored on the
// pending action record.
const maxResultSummaryLength = 200

// DecisionService applies owner decisions to pending actions and runs the
// approved ones. A decision is a conditional status transition: of any number
// of concurrent deciders exactly one wins, and only the winner executes the
// capability, so an approved action's side effect happens at most once.
type DecisionService struct {
	pending  approval.Store
	registry *capability.Registry
	recorder invoke.Recorder
	logger   *slog.Logger

	executionTimeout time.Duration
	now              func() time.Time
}

// DecisionOption configures a DecisionService.
type DecisionOption func(*DecisionService)

// WithDecisionExecutionTimeout bounds execution of an approved capability.
func WithDecisionExecutionTimeout(d time.Duration) DecisionOption {
	return func(s *DecisionService) { s.executionTimeout = d }
}

// NewDecisionService creates a DecisionService.
func NewDecisionService(
	pending approval.Store,
	registry *capability.Registry,
	recorder invoke.Recorder,
	logger *slog.Logger,
	opts ...DecisionOption,
) *DecisionService {
	s := &DecisionService{
		pending:          pending,
		registry:         registry,
		recorder:         recorder,
		logger:           logger,
		executionTimeout: invoke.DefaultExecutionTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one pending action by id.
func (s *DecisionService) Get(ctx context.Context, id string) (*approval.PendingAction, error) {
	return s.pending.Get(ctx, id)
}

// ListPending returns an organization's queue, oldest first.
func (s *DecisionService) ListPending(ctx context.Context, orgID string) ([]*approval.PendingAction, error) {
	return s.pending.ListPending(ctx, orgID)
}

// Decide applies an owner's verdict to a pending action. Approval executes
// the frozen invocation synchronously and the returned record carries the
// terminal status (executed or failed); rejection is terminal immediately.
// A second decision on the same action gets approval.ErrAlreadyDecided no
// matter how close the race: the store's conditional transition admits one
// winner.
func (s *DecisionService) Decide(ctx context.Context, id string, decision approval.Decision, decidedBy string) (*approval.PendingAction, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	to := approval.StatusRejected
	if decision == approval.DecisionApprove {
		to = approval.StatusApproved
	}

	now := s.now().UTC()
	p, err := s.pending.Transition(ctx, id, approval.StatusPending, to, approval.Update{
		DecidedBy: decidedBy,
		DecidedAt: &now,
	})
	if err != nil {
		if errors.Is(err, approval.ErrConflict) {
			return nil, s.alreadyDecided(ctx, id)
		}
		return nil, err
	}

	s.logger.Info("pending action decided",
		"pending_id", p.ID,
		"org_id", p.OrganizationID,
		"capability", p.CapabilityName,
		"decision", decision,
		"decided_by", decidedBy,
	)
	s.recordLifecycle(p, audit.Outcome(string(to)), "")

	if to == approval.StatusRejected {
		return p, nil
	}
	return s.executeApproved(ctx, p)
}

// alreadyDecided builds the conflict error from the record's current state.
func (s *DecisionService) alreadyDecided(ctx context.Context, id string) error {
	cur, err := s.pending.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", approval.ErrAlreadyDecided, cur.Status)
}

// executeApproved runs the frozen invocation of an approved action and moves
// the record to its terminal status. The action was persisted at queue time
// with the capability metadata of that moment; execution uses the stored
// arguments, never a fresh request.
func (s *DecisionService) executeApproved(ctx context.Context, p *approval.PendingAction) (*approval.PendingAction, error) {
	handler, err := s.registry.Handler(p.CapabilityName)
	if err != nil {
		// Catalogued at queue time but unbound now (e.g. capability removed
		// from the deployment). Fail rather than silently drop.
		return s.markFailed(ctx, p, fmt.Sprintf("capability %q is not available", p.CapabilityName))
	}

	start := s.now()
	result, execErr := invoke.ExecuteHandler(ctx, handler, p.Arguments, s.executionTimeout)
	if execErr != nil {
		s.logger.Warn("approved action execution failed",
			"pending_id", p.ID,
			"org_id", p.OrganizationID,
			"capability", p.CapabilityName,
			"duration", s.now().Sub(start),
			"error", execErr,
		)
		return s.markFailed(ctx, p, execErr.Error())
	}

	now := s.now().UTC()
	updated, err := s.pending.Transition(ctx, p.ID, approval.StatusApproved, approval.StatusExecuted, approval.Update{
		ExecutedAt:    &now,
		ResultSummary: summarizeResult(result),
	})
	if err != nil {
		// The side effect happened but the record could not be finalized;
		// surface the error so the caller knows the log is behind reality.
		return nil, fmt.Errorf("finalize executed action %s: %w", p.ID, err)
	}

	s.logger.Info("approved action executed",
		"pending_id", p.ID,
		"org_id", p.OrganizationID,
		"capability", p.CapabilityName,
		"duration", s.now().Sub(start),
	)
	s.recordTerminal(updated, audit.OutcomeExecuted, result, "")
	return updated, nil
}

// markFailed moves an approved action to failed and logs the reason.
func (s *DecisionService) markFailed(ctx context.Context, p *approval.PendingAction, reason string) (*approval.PendingAction, error) {
	updated, err := s.pending.Transition(ctx, p.ID, approval.StatusApproved, approval.StatusFailed, approval.Update{
		FailureReason: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("mark action %s failed: %w", p.ID, err)
	}
	s.recordTerminal(updated, audit.OutcomeFailed, nil, reason)
	return updated, nil
}

// RecoverInterrupted finalizes actions left in approved by a crash between
// the decision and the terminal transition. Whether the side effect happened
// is unknown, so the capability is never re-run; the record is marked failed
// and the requester can ask again. Called once at startup, before the server
// accepts decisions.
func (s *DecisionService) RecoverInterrupted(ctx context.Context) (int, error) {
	stuck, err := s.pending.ListApproved(ctx)
	if err != nil {
		return 0, fmt.Errorf("list approved actions: %w", err)
	}

	const reason = "execution interrupted by shutdown; outcome unknown"
	recovered := 0
	for _, p := range stuck {
		updated, err := s.pending.Transition(ctx, p.ID, approval.StatusApproved, approval.StatusFailed, approval.Update{
			FailureReason: reason,
		})
		if errors.Is(err, approval.ErrConflict) {
			// Another instance finalized it first.
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("recover action %s: %w", p.ID, err)
		}
		s.logger.Warn("recovered interrupted action",
			"pending_id", updated.ID,
			"org_id", updated.OrganizationID,
			"capability", updated.CapabilityName,
		)
		s.recordTerminal(updated, audit.OutcomeFailed, nil, reason)
		recovered++
	}
	return recovered, nil
}

// recordLifecycle logs an approved/rejected entry for a pending action.
func (s *DecisionService) recordLifecycle(p *approval.PendingAction, outcome audit.Outcome, reason string) {
	s.recorder.Record(audit.Entry{
		ID:              uuid.New().String(),
		OrganizationID:  p.OrganizationID,
		CapabilityName:  p.CapabilityName,
		Category:        p.Category,
		Arguments:       audit.RedactArguments(p.Arguments),
		Outcome:         outcome,
		Reason:          reason,
		PendingActionID: p.ID,
		UserID:          p.UserID,
		SessionID:       p.SessionID,
		ConversationID:  p.ConversationID,
		DecidedBy:       p.DecidedBy,
		AttemptKey:      audit.AttemptKey(p.ID, outcome),
		Timestamp:       s.now().UTC(),
	})
}

// recordTerminal logs the executed/failed entry for a decided action.
func (s *DecisionService) recordTerminal(p *approval.PendingAction, outcome audit.Outcome, result map[string]interface{}, reason string) {
	s.recorder.Record(audit.Entry{
		ID:              uuid.New().String(),
		OrganizationID:  p.OrganizationID,
		CapabilityName:  p.CapabilityName,
		Category:        p.Category,
		Arguments:       audit.RedactArguments(p.Arguments),
		Outcome:         outcome,
		Result:          result,
		Reason:          reason,
		PendingActionID: p.ID,
		UserID:          p.UserID,
		SessionID:       p.SessionID,
		ConversationID:  p.ConversationID,
		DecidedBy:       p.DecidedBy,
		AttemptKey:      audit.AttemptKey(p.ID, outcome),
		Timestamp:       s.now().UTC(),
	})
}

// summarizeResult renders a short human-readable summary of a capability
// result for the pending action record.
func summarizeResult(result map[string]interface{}) string {
	if len(result) == 0 {
		return "completed"
	}
	if s, ok := result["summary"].(string); ok && s != "" {
		return truncate(s, maxResultSummaryLength)
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "completed"
	}
	return truncate(string(b), maxResultSummaryLength)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
