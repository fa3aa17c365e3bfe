package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/policy"
)

// Interceptor mediates capability invocations against permission policy.
// It is stateless per request; any number of requests from any number of
// organizations may be handled concurrently.
type Interceptor struct {
	registry *capability.Registry
	policies policy.Store
	guards   policy.GuardEvaluator
	pending  approval.Store
	notifier approval.Notifier
	recorder Recorder
	logger   *slog.Logger

	executionTimeout time.Duration
	approvalWindow   time.Duration
	now              func() time.Time
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithExecutionTimeout bounds direct capability execution.
func WithExecutionTimeout(d time.Duration) Option {
	return func(i *Interceptor) { i.executionTimeout = d }
}

// WithApprovalWindow sets how long a queued action waits before the expiry
// sweep may mark it expired.
func WithApprovalWindow(d time.Duration) Option {
	return func(i *Interceptor) { i.approvalWindow = d }
}

// WithGuardEvaluator enables per-organization guard rules.
func WithGuardEvaluator(g policy.GuardEvaluator) Option {
	return func(i *Interceptor) { i.guards = g }
}

// WithNotifier sets the queued-action notification hook.
func WithNotifier(n approval.Notifier) Option {
	return func(i *Interceptor) { i.notifier = n }
}

// DefaultApprovalWindow is how long a queued action may await a decision.
const DefaultApprovalWindow = 24 * time.Hour

// NewInterceptor creates an Interceptor.
func NewInterceptor(
	registry *capability.Registry,
	policies policy.Store,
	pending approval.Store,
	recorder Recorder,
	logger *slog.Logger,
	opts ...Option,
) *Interceptor {
	i := &Interceptor{
		registry:         registry,
		policies:         policies,
		pending:          pending,
		recorder:         recorder,
		logger:           logger,
		executionTimeout: DefaultExecutionTimeout,
		approvalWindow:   DefaultApprovalWindow,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handle classifies one invocation request as execute-now, refuse, or
// queue-for-approval, performs the classified action, and records exactly
// one action log entry for the attempt.
func (i *Interceptor) Handle(ctx context.Context, req Request) (Outcome, error) {
	attemptID := uuid.New().String()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = i.now().UTC()
	}

	// 1. Unknown capability: fail closed, log, refuse. Not a system error.
	cap, err := i.registry.Get(req.CapabilityName)
	if err != nil {
		i.logger.Info("invocation refused: unknown capability",
			"capability", req.CapabilityName,
			"org_id", req.Actor.OrganizationID,
		)
		outcome := Refused(fmt.Sprintf("unknown capability %q", req.CapabilityName))
		i.record(attemptID, req, capability.Capability{Name: req.CapabilityName}, "", outcome, "")
		return outcome, nil
	}

	// 2. Policy resolution. Policy is re-read per request (bounded by the
	// injected TTL cache) because owners may change it at any time.
	pol, err := i.policies.GetPolicy(ctx, req.Actor.OrganizationID)
	if err != nil && !errors.Is(err, policy.ErrPolicyNotFound) {
		return Outcome{}, fmt.Errorf("load policy for %s: %w", req.Actor.OrganizationID, err)
	}
	res := policy.Resolve(pol, cap)
	if !res.Allowed {
		i.logger.Info("invocation refused by policy",
			"capability", cap.Name,
			"org_id", req.Actor.OrganizationID,
			"source", res.Source,
			"mode", res.EffectiveMode,
		)
		outcome := Refused(res.Reason)
		i.record(attemptID, req, cap, res.EffectiveMode, outcome, "")
		return outcome, nil
	}

	// 2b. Guard rules may tighten the resolution using the arguments.
	requiresApproval := res.RequiresApproval
	if i.guards != nil && pol != nil && len(pol.Guards) > 0 {
		verdict, err := i.guards.EvaluateGuards(ctx, pol.Guards, policy.GuardInput{
			CapabilityName: cap.Name,
			Category:       string(cap.Category),
			Destructive:    cap.Destructive,
			Arguments:      req.Arguments,
			OrganizationID: req.Actor.OrganizationID,
			UserID:         req.Actor.UserID,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("guard evaluation: %w", err)
		}
		if verdict.Matched {
			switch verdict.Action {
			case policy.GuardDeny:
				i.logger.Info("invocation refused by guard rule",
					"capability", cap.Name,
					"org_id", req.Actor.OrganizationID,
					"rule", verdict.RuleName,
				)
				outcome := Refused(fmt.Sprintf("blocked by rule %q", verdict.RuleName))
				i.record(attemptID, req, cap, res.EffectiveMode, outcome, "")
				return outcome, nil
			case policy.GuardRequireApproval:
				requiresApproval = true
			}
		}
	}

	// 3. Safe to run now: non-destructive, or the mode grants autonomy.
	if !cap.Destructive || !requiresApproval {
		return i.executeNow(ctx, attemptID, req, cap, res)
	}

	// 4. Destructive and the mode wants a human: queue for approval.
	return i.enqueue(ctx, attemptID, req, cap, res)
}

// executeNow invokes the capability directly and logs the outcome inline.
func (i *Interceptor) executeNow(ctx context.Context, attemptID string, req Request, cap capability.Capability, res policy.Resolution) (Outcome, error) {
	handler, err := i.registry.Handler(cap.Name)
	if err != nil {
		// Catalogued but unbound: fail closed rather than pretend success.
		outcome := Refused(fmt.Sprintf("capability %q is not available", cap.Name))
		i.record(attemptID, req, cap, res.EffectiveMode, outcome, "")
		return outcome, nil
	}

	start := i.now()
	result, execErr := ExecuteHandler(ctx, handler, req.Arguments, i.executionTimeout)
	if execErr != nil {
		i.logger.Warn("capability execution failed",
			"capability", cap.Name,
			"org_id", req.Actor.OrganizationID,
			"duration", i.now().Sub(start),
			"error", execErr,
		)
		outcome := Failed(execErr.Error())
		i.record(attemptID, req, cap, res.EffectiveMode, outcome, "")
		return outcome, nil
	}

	i.logger.Info("capability executed",
		"capability", cap.Name,
		"org_id", req.Actor.OrganizationID,
		"duration", i.now().Sub(start),
	)
	outcome := Executed(result)
	i.record(attemptID, req, cap, res.EffectiveMode, outcome, "")
	return outcome, nil
}

// enqueue persists a pending action and returns the queued outcome. The
// pending-reference is not an error and not a result: the agent presents it
// as "awaiting approval". If persistence fails nothing executes.
func (i *Interceptor) enqueue(ctx context.Context, attemptID string, req Request, cap capability.Capability, res policy.Resolution) (Outcome, error) {
	now := i.now().UTC()
	pendingAction := &approval.PendingAction{
		ID:                 uuid.New().String(),
		CapabilityName:     cap.Name,
		Arguments:          req.Arguments,
		OrganizationID:     req.Actor.OrganizationID,
		UserID:             req.Actor.UserID,
		SessionID:          req.Actor.SessionID,
		ConversationID:     req.Actor.ConversationID,
		RequestedAt:        req.RequestedAt,
		RiskLevel:          cap.RiskLevel,
		Description:        cap.Description,
		Category:           cap.Category,
		AffectedEntityType: cap.AffectedEntityType,
		Status:             approval.StatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(i.approvalWindow),
	}

	if err := i.pending.Create(ctx, pendingAction); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	i.logger.Info("invocation queued for approval",
		"capability", cap.Name,
		"org_id", req.Actor.OrganizationID,
		"pending_id", pendingAction.ID,
		"risk", cap.RiskLevel,
		"expires_at", pendingAction.ExpiresAt,
	)

	outcome := Queued(pendingAction.ID, pendingAction.Summary())
	i.record(attemptID, req, cap, res.EffectiveMode, outcome, pendingAction.ID)

	if i.notifier != nil {
		i.notifier.Notify(ctx, approval.Event{
			PendingActionID: pendingAction.ID,
			OrganizationID:  req.Actor.OrganizationID,
			RiskLevel:       cap.RiskLevel,
			Capability:      cap.Name,
		})
	}
	return outcome, nil
}

// record emits the single action log entry for this attempt.
func (i *Interceptor) record(attemptID string, req Request, cap capability.Capability, mode policy.Mode, outcome Outcome, pendingID string) {
	auditOutcome := audit.Outcome(outcome.Kind)
	entry := audit.Entry{
		ID:              attemptID,
		OrganizationID:  req.Actor.OrganizationID,
		CapabilityName:  req.CapabilityName,
		Category:        cap.Category,
		Arguments:       audit.RedactArguments(req.Arguments),
		PolicyMode:      mode,
		Outcome:         auditOutcome,
		Result:          outcome.Result,
		Reason:          outcome.Reason,
		PendingActionID: pendingID,
		UserID:          req.Actor.UserID,
		SessionID:       req.Actor.SessionID,
		ConversationID:  req.Actor.ConversationID,
		AttemptKey:      audit.AttemptKey(attemptID, auditOutcome),
		Timestamp:       i.now().UTC(),
	}
	i.recorder.Record(entry)
}
