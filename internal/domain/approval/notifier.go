package approval

import (
	"context"

	"github.com/actiongate/actiongate/internal/domain/capability"
)

// Event tells an external notifier that a decision is pending. Delivery
// (email/SMS/push) and its success or failure are not this layer's concern.
type Event struct {
	PendingActionID string               `json:"pending_action_id"`
	OrganizationID  string               `json:"organization_id"`
	RiskLevel       capability.RiskLevel `json:"risk_level"`
	Capability      string               `json:"capability"`
}

// Notifier receives queued-action events. Implementations must not block the
// interceptor; errors are logged by the caller and never propagated to the
// requesting agent.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Compile-time check that NotifierFunc implements Notifier.
var _ Notifier = NotifierFunc(nil)
