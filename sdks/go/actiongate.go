// Package actiongate provides a Go SDK for the actiongate governance API.
//
// actiongate mediates capability invocations made by autonomous agents on
// behalf of an organization. This SDK lets Go programs submit invocations,
// follow queued actions through the approval lifecycle, and read the action
// log. It uses only the Go standard library (net/http) with zero external
// dependencies.
//
// Quick start:
//
//	// Set ACTIONGATE_SERVER_ADDR and ACTIONGATE_API_KEY env vars, then:
//	client := actiongate.NewClient()
//
//	resp, err := client.Invoke(ctx, actiongate.InvokeRequest{
//	    CapabilityName: "createInvoice",
//	    Arguments:      map[string]any{"customer_id": "cus-17", "amount": 250.0},
//	    UserID:         "user-3",
//	})
//	if err != nil {
//	    var refused *actiongate.RefusedError
//	    if errors.As(err, &refused) {
//	        fmt.Printf("Refused: %s\n", refused.Reason)
//	    }
//	}
package actiongate

import "time"

// Outcome is the result class of an invocation attempt.
type Outcome string

const (
	// OutcomeExecuted indicates the capability ran and completed.
	OutcomeExecuted Outcome = "executed"

	// OutcomeRefused indicates policy refused the invocation.
	OutcomeRefused Outcome = "refused"

	// OutcomeQueued indicates the action awaits a human decision.
	OutcomeQueued Outcome = "queued"

	// OutcomeFailed indicates the capability ran and failed.
	OutcomeFailed Outcome = "failed"
)

// InvokeRequest is one capability invocation attempt.
type InvokeRequest struct {
	// CapabilityName identifies the capability to invoke.
	CapabilityName string `json:"capability_name"`

	// Arguments are the capability-specific parameters.
	Arguments map[string]any `json:"arguments,omitempty"`

	// OrganizationID scopes the invocation. With an authenticated client the
	// server derives this from the API key; the field is for open servers.
	OrganizationID string `json:"organization_id,omitempty"`

	// UserID is the user the agent acts on behalf of.
	UserID string `json:"user_id,omitempty"`

	// SessionID identifies the agent session.
	SessionID string `json:"session_id,omitempty"`

	// ConversationID identifies the conversation the request came from.
	ConversationID string `json:"conversation_id,omitempty"`
}

// InvokeResponse is the server's answer to an invocation attempt.
type InvokeResponse struct {
	// Outcome is executed, refused, queued, or failed.
	Outcome Outcome `json:"outcome"`

	// Result is the capability result when Outcome is executed.
	Result map[string]any `json:"result,omitempty"`

	// Reason explains a refusal or failure.
	Reason string `json:"reason,omitempty"`

	// PendingActionID references the queued action when Outcome is queued.
	PendingActionID string `json:"pending_action_id,omitempty"`

	// Summary is the owner-facing description of a queued action.
	Summary *ActionSummary `json:"summary,omitempty"`
}

// ActionSummary is the owner-facing description of a queued action.
type ActionSummary struct {
	Capability         string `json:"capability"`
	Description        string `json:"description"`
	RiskLevel          string `json:"risk_level"`
	AffectedEntityType string `json:"affected_entity_type"`
}

// PendingAction is one action in the approval queue, in whatever lifecycle
// status it currently holds.
type PendingAction struct {
	ID             string         `json:"id"`
	CapabilityName string         `json:"capability_name"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	ConversationID string         `json:"conversation_id"`
	RequestedAt    time.Time      `json:"requested_at"`

	RiskLevel          string `json:"risk_level"`
	Description        string `json:"description"`
	Category           string `json:"category"`
	AffectedEntityType string `json:"affected_entity_type"`

	// Status is pending, approved, rejected, executed, failed, or expired.
	Status        string     `json:"status"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Terminal reports whether the action has reached a final status.
func (p *PendingAction) Terminal() bool {
	switch p.Status {
	case "rejected", "executed", "failed", "expired":
		return true
	}
	return false
}

// AuditEntry is one action log record.
type AuditEntry struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	CapabilityName  string         `json:"capability_name"`
	Category        string         `json:"category"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	PolicyMode      string         `json:"policy_mode"`
	Outcome         string         `json:"outcome"`
	Result          map[string]any `json:"result,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	PendingActionID string         `json:"pending_action_id,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// AuditFilter narrows an action log query. Zero fields are ignored.
type AuditFilter struct {
	// OrganizationID is required on open servers; authenticated clients are
	// scoped to their key's organization regardless.
	OrganizationID string

	// CapabilityName filters to one capability.
	CapabilityName string

	// Outcome filters to one outcome.
	Outcome string

	// From and To bound the time range.
	From time.Time
	To   time.Time

	// Limit caps the page size.
	Limit int

	// Cursor resumes a previous page.
	Cursor string
}

// AuditPage is one page of action log entries, newest first.
type AuditPage struct {
	Entries    []AuditEntry `json:"entries"`
	Count      int          `json:"count"`
	NextCursor string       `json:"next_cursor"`
}
