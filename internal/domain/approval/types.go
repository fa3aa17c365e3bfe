// Package approval contains the durable pending-action queue: records of
// destructive invocations awaiting a human decision, and their lifecycle.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/actiongate/actiongate/internal/domain/capability"
)

// Sentinel errors for queue operations.
var (
	// ErrNotFound is returned when no pending action exists for an id.
	ErrNotFound = errors.New("pending action not found")
	// ErrAlreadyDecided is returned when decide is called on an action that
	// is no longer pending. Surfaced distinctly so UIs can explain that
	// someone already acted on it.
	ErrAlreadyDecided = errors.New("pending action already decided")
	// ErrConflict is returned when a conditional transition loses a race:
	// the record was not in the expected state at update time.
	ErrConflict = errors.New("pending action state conflict")
)

// Status is a pending action's lifecycle state.
type Status string

const (
	// StatusPending awaits a human decision.
	StatusPending Status = "pending"
	// StatusApproved was approved; execution has been or is being attempted.
	StatusApproved Status = "approved"
	// StatusRejected is terminal; no execution occurred.
	StatusRejected Status = "rejected"
	// StatusExecuted is terminal; the capability ran exactly once.
	StatusExecuted Status = "executed"
	// StatusFailed is terminal; the capability was attempted after approval
	// and failed. Not retried automatically.
	StatusFailed Status = "failed"
	// StatusExpired is terminal; no decision arrived within the window.
	StatusExpired Status = "expired"
)

// legalTransitions is the state machine. Executed records are immutable.
var legalTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from → to is a legal lifecycle transition.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// InvalidTransitionError reports a from → to pair the state machine does not
// permit. Distinct from ErrConflict, which means the pair is legal but the
// record was not in 'from' at update time.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s to %s", e.From, e.To)
}

// Decision is an owner's verdict on a pending action.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// PendingAction is a durably stored destructive invocation awaiting (or past)
// a human decision. RiskLevel and Description are copied from the capability
// at enqueue time so later catalog changes do not retroactively alter the
// queued item. Records are retained indefinitely and never hard-deleted.
type PendingAction struct {
	ID string `json:"id"`

	// Original invocation request.
	CapabilityName string                 `json:"capability_name"`
	Arguments      map[string]interface{} `json:"arguments,omitempty"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	SessionID      string                 `json:"session_id"`
	ConversationID string                 `json:"conversation_id"`
	RequestedAt    time.Time              `json:"requested_at"`

	// Capability metadata frozen at enqueue time.
	RiskLevel          capability.RiskLevel `json:"risk_level"`
	Description        string               `json:"description"`
	Category           capability.Category  `json:"category"`
	AffectedEntityType string               `json:"affected_entity_type"`

	// Lifecycle.
	Status        Status     `json:"status"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Summary is the human-readable rendering of a queued action, built from the
// capability metadata frozen at enqueue time. Downstream consumers (chat UI,
// notification text) depend on its shape, so it is part of the contract.
type Summary struct {
	Capability         string               `json:"capability"`
	Description        string               `json:"description"`
	RiskLevel          capability.RiskLevel `json:"risk_level"`
	AffectedEntityType string               `json:"affected_entity_type"`
}

// Summary renders the pending action's owner-facing summary.
func (p *PendingAction) Summary() Summary {
	return Summary{
		Capability:         p.CapabilityName,
		Description:        p.Description,
		RiskLevel:          p.RiskLevel,
		AffectedEntityType: p.AffectedEntityType,
	}
}

// String returns a one-line rendering for logs and notification text.
func (s Summary) String() string {
	return fmt.Sprintf("%s (%s risk, affects %s): %s",
		s.Capability, s.RiskLevel, s.AffectedEntityType, s.Description)
}
