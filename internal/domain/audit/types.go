// Package audit contains domain types for the append-only action log.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/policy"
)

// Outcome classifies an action log entry.
type Outcome string

const (
	// OutcomeExecuted records a capability that ran and succeeded.
	OutcomeExecuted Outcome = "executed"
	// OutcomeQueued records an invocation parked for human approval.
	OutcomeQueued Outcome = "queued"
	// OutcomeRefused records a refusal (policy denial or unknown capability).
	OutcomeRefused Outcome = "refused"
	// OutcomeFailed records a capability that ran and failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeApproved records an owner approving a pending action.
	OutcomeApproved Outcome = "approved"
	// OutcomeRejected records an owner rejecting a pending action.
	OutcomeRejected Outcome = "rejected"
	// OutcomeExpired records a pending action timed out without a decision.
	OutcomeExpired Outcome = "expired"
)

// Entry is one append-only audit record. Entries are created once per
// terminal outcome of an invocation attempt and never mutated or deleted;
// this is the audit trail of record.
type Entry struct {
	// ID is the entry's unique identifier.
	ID string `json:"id"`
	// OrganizationID scopes the entry for queries and export.
	OrganizationID string `json:"organization_id"`
	// CapabilityName is the requested capability.
	CapabilityName string `json:"capability_name"`
	// Category is the capability's category at the time of the attempt.
	Category capability.Category `json:"category"`
	// Arguments is the redacted argument snapshot.
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// PolicyMode is the effective policy mode at the time of the attempt.
	PolicyMode policy.Mode `json:"policy_mode"`
	// Outcome classifies the attempt.
	Outcome Outcome `json:"outcome"`
	// Result is a snapshot of the capability result, when one exists.
	Result map[string]interface{} `json:"result,omitempty"`
	// Reason explains refusals and failures.
	Reason string `json:"reason,omitempty"`
	// PendingActionID links queue lifecycle entries to their pending action.
	PendingActionID string `json:"pending_action_id,omitempty"`

	// Actor context.
	UserID         string `json:"user_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	// DecidedBy is set on approved/rejected entries.
	DecidedBy string `json:"decided_by,omitempty"`

	// AttemptKey deduplicates double-appends for the same logical attempt.
	AttemptKey uint64 `json:"attempt_key"`
	// Timestamp is when the outcome was recorded (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// AttemptKey derives the idempotency key for one logical attempt outcome.
// Appending twice with the same key is a no-op in conforming stores.
func AttemptKey(attemptID string, outcome Outcome) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s|%s", attemptID, outcome))
}

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
	"card_number", "cvv", "iban",
}

// RedactArguments returns a copy of args with sensitive values masked.
// A key is sensitive when it contains any of the sensitiveKeywords.
func RedactArguments(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
