// Package invoke contains the interception decision: classifying a requested
// capability invocation as execute-now, refuse, or queue-for-approval.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

// ErrStoreUnavailable wraps pending-store failures. The interceptor must
// never execute a destructive capability when it cannot durably record the
// decision first: persistence precedes execution, never the reverse.
var ErrStoreUnavailable = errors.New("pending action store unavailable")

// DefaultExecutionTimeout bounds a single capability execution. A hang in
// one capability must not block other organizations' requests.
const DefaultExecutionTimeout = 30 * time.Second

// Actor identifies who is asking on whose behalf.
type Actor struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
}

// Request is one invocation attempt. It exists only on the call stack.
type Request struct {
	CapabilityName string                 `json:"capability_name"`
	Arguments      map[string]interface{} `json:"arguments,omitempty"`
	Actor          Actor                  `json:"actor"`
	RequestedAt    time.Time              `json:"requested_at"`
}

// OutcomeKind classifies the result of handling a request.
type OutcomeKind string

const (
	// KindExecuted means the capability ran and succeeded.
	KindExecuted OutcomeKind = "executed"
	// KindRefused means the invocation was not permitted. This is normal
	// control flow, not a system error.
	KindRefused OutcomeKind = "refused"
	// KindQueued means the invocation awaits human approval. Callers must
	// present this as "awaiting approval", not as task failure.
	KindQueued OutcomeKind = "queued"
	// KindFailed means the capability ran and failed.
	KindFailed OutcomeKind = "failed"
)

// Outcome is the value returned to the agent loop. Refusals and queuing are
// values, never errors; only infrastructure failures surface as errors.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Result holds the capability result for KindExecuted.
	Result map[string]interface{} `json:"result,omitempty"`
	// Reason explains KindRefused and KindFailed without leaking other
	// organizations' configuration.
	Reason string `json:"reason,omitempty"`
	// PendingActionID and Summary are set for KindQueued.
	PendingActionID string           `json:"pending_action_id,omitempty"`
	Summary         approval.Summary `json:"summary,omitempty"`
}

// Executed builds an executed outcome.
func Executed(result map[string]interface{}) Outcome {
	return Outcome{Kind: KindExecuted, Result: result}
}

// Refused builds a refusal outcome.
func Refused(reason string) Outcome {
	return Outcome{Kind: KindRefused, Reason: reason}
}

// Queued builds a queued outcome with the owner-facing summary.
func Queued(pendingID string, summary approval.Summary) Outcome {
	return Outcome{Kind: KindQueued, PendingActionID: pendingID, Summary: summary}
}

// Failed builds a failed-execution outcome.
func Failed(reason string) Outcome {
	return Outcome{Kind: KindFailed, Reason: reason}
}

// Recorder receives action log entries. Implemented by the audit service;
// ordering of Record calls is preserved in the stored log.
type Recorder interface {
	Record(entry audit.Entry)
}

// ExecuteHandler runs a capability handler with a bounded timeout. A timeout
// or handler error is a capability failure, never a panic of the layer.
func ExecuteHandler(ctx context.Context, h capability.Handler, args map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type handlerResult struct {
		result map[string]interface{}
		err    error
	}
	done := make(chan handlerResult, 1)
	go func() {
		result, err := h(execCtx, args)
		done <- handlerResult{result: result, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-execCtx.Done():
		// The goroutine keeps the buffered channel from leaking; there is no
		// cancellation of the side effect itself once started.
		return nil, fmt.Errorf("capability execution timed out after %s: %w", timeout, execCtx.Err())
	}
}
