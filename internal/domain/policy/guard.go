package policy

import (
	"context"
	"path"
)

// GuardInput carries the request data a guard condition can inspect.
type GuardInput struct {
	// CapabilityName is the requested capability.
	CapabilityName string
	// Category is the capability's category.
	Category string
	// Destructive is the capability's destructive flag.
	Destructive bool
	// Arguments is the invocation payload.
	Arguments map[string]interface{}
	// OrganizationID, UserID identify the actor.
	OrganizationID string
	UserID         string
}

// GuardVerdict is the result of evaluating the guard rules for one invocation.
type GuardVerdict struct {
	// Matched is true when any rule's condition held.
	Matched bool
	// Action is the matched rule's action (deny or require_approval).
	Action GuardAction
	// RuleName names the matched rule for logs and refusal reasons.
	RuleName string
}

// GuardEvaluator evaluates guard rule conditions against an invocation.
// The CEL-backed implementation lives in the outbound cel adapter; a nil
// evaluator means guards are ignored.
type GuardEvaluator interface {
	// EvaluateGuards runs each rule whose capability glob matches the input,
	// in order, and returns the first match. Rules that fail to compile or
	// evaluate are treated as matched with GuardDeny — fail closed.
	EvaluateGuards(ctx context.Context, rules []GuardRule, input GuardInput) (GuardVerdict, error)
}

// GuardMatchesCapability reports whether a rule's capability glob matches the
// given capability name. An empty pattern matches everything.
func GuardMatchesCapability(rule GuardRule, capabilityName string) bool {
	if rule.Capability == "" {
		return true
	}
	ok, err := path.Match(rule.Capability, capabilityName)
	return err == nil && ok
}
