// Package policy contains domain types for permission policy evaluation.
package policy

import (
	"context"
	"errors"

	"github.com/actiongate/actiongate/internal/domain/capability"
)

// ErrPolicyNotFound is returned when no policy exists for an organization.
// Callers fail closed: a missing policy denies every capability.
var ErrPolicyNotFound = errors.New("policy not found")

// Mode is an organization's operating mode for agent-initiated capabilities.
type Mode string

const (
	// ModeAutonomous lets the agent execute any allowed capability directly,
	// including destructive ones.
	ModeAutonomous Mode = "autonomous"
	// ModeAskPermission allows invocations but queues destructive ones for
	// human approval before they run.
	ModeAskPermission Mode = "ask_permission"
	// ModeManualOnly blocks all agent-initiated invocations; owners act
	// through their own tools instead.
	ModeManualOnly Mode = "manual_only"
	// ModeDisabled denies every capability.
	ModeDisabled Mode = "disabled"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAutonomous, ModeAskPermission, ModeManualOnly, ModeDisabled:
		return true
	}
	return false
}

// GuardAction is what a matching guard rule does. Guards can only tighten a
// decision; there is no allow action.
type GuardAction string

const (
	// GuardDeny refuses the invocation outright.
	GuardDeny GuardAction = "deny"
	// GuardRequireApproval forces the invocation into the approval queue
	// even when the mode would have executed it directly.
	GuardRequireApproval GuardAction = "require_approval"
)

// GuardRule is an optional per-organization condition evaluated against the
// invocation's arguments and actor after the toggle chain allows the call.
// Condition is a CEL expression; Capability is a glob over capability names.
type GuardRule struct {
	// Name identifies the rule in logs and refusal reasons.
	Name string `yaml:"name" mapstructure:"name"`
	// Capability is a glob pattern matching capability names (e.g. "create*").
	Capability string `yaml:"capability" mapstructure:"capability"`
	// Condition is a CEL expression over args.*, capability.*, actor.*.
	Condition string `yaml:"condition" mapstructure:"condition"`
	// Action is deny or require_approval.
	Action GuardAction `yaml:"action" mapstructure:"action"`
}

// PermissionPolicy is an organization's permission configuration. It is
// written by a settings subsystem outside this layer; this layer only reads
// it, and re-reads it per request because it may change at any time.
type PermissionPolicy struct {
	// OrganizationID identifies the owning organization.
	OrganizationID string
	// Mode is the global operating mode.
	Mode Mode
	// CategoryOverrides maps a capability category to a mode that beats the
	// global mode for capabilities in that category.
	CategoryOverrides map[capability.Category]Mode
	// Toggles maps a capability name to an explicit allow/deny that beats
	// both the category override and the global mode.
	Toggles map[string]bool
	// Guards are optional tightening rules evaluated against arguments.
	Guards []GuardRule
}

// Source records which level of the policy produced a resolution.
type Source string

const (
	SourceToggle   Source = "toggle"
	SourceCategory Source = "category_override"
	SourceMode     Source = "mode"
	SourceGuard    Source = "guard"
)

// Resolution is the outcome of resolving a policy against one capability.
type Resolution struct {
	// Allowed is true when the agent may invoke the capability at all.
	Allowed bool
	// RequiresApproval is true when the invocation must be queued for a
	// human decision before execution. Only meaningful when Allowed.
	RequiresApproval bool
	// Source is the policy level that decided (toggle, category, mode, guard).
	Source Source
	// EffectiveMode is the mode that applied after override resolution.
	EffectiveMode Mode
	// Reason is a human-readable explanation, safe to surface to the
	// requesting agent (it never references another organization's config).
	Reason string
}

// Store provides read access to permission policies. Writes are owned by the
// settings subsystem outside this layer.
type Store interface {
	// GetPolicy returns the current policy for an organization.
	// Returns ErrPolicyNotFound when the organization has no policy.
	GetPolicy(ctx context.Context, orgID string) (*PermissionPolicy, error)
}
