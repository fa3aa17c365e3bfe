package actiongate

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRefused is returned when policy refuses an invocation.
	ErrRefused = errors.New("invocation refused")

	// ErrDecisionTimeout is returned when waiting for a decision exceeds the
	// maximum wait time.
	ErrDecisionTimeout = errors.New("decision timeout")

	// ErrServerUnreachable is returned when the actiongate server cannot be
	// contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is the base error type for server-reported errors.
type APIError struct {
	// StatusCode is the HTTP status the server returned.
	StatusCode int
	// Message is the server's error message.
	Message string
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("actiongate [HTTP %d]: %s", e.StatusCode, e.Message)
}

// RefusedError is returned when policy refuses an invocation. It carries the
// refusal reason the server supplied.
type RefusedError struct {
	// CapabilityName is the capability that was refused.
	CapabilityName string
	// Reason explains why the invocation was refused.
	Reason string
}

// Error returns a human-readable description of the refusal.
func (e *RefusedError) Error() string {
	return fmt.Sprintf("capability %q refused: %s", e.CapabilityName, e.Reason)
}

// Is supports errors.Is(err, ErrRefused).
func (e *RefusedError) Is(target error) bool {
	return target == ErrRefused
}

// DecisionTimeoutError is returned when waiting on a queued action exceeds
// the maximum wait time. The action remains in the queue; the caller can
// resume waiting with WaitForDecision.
type DecisionTimeoutError struct {
	// PendingActionID is the queued action that has not been decided yet.
	PendingActionID string
}

// Error returns a human-readable description of the timeout.
func (e *DecisionTimeoutError) Error() string {
	return fmt.Sprintf("no decision on pending action %s within the wait window", e.PendingActionID)
}

// Is supports errors.Is(err, ErrDecisionTimeout).
func (e *DecisionTimeoutError) Is(target error) bool {
	return target == ErrDecisionTimeout
}

// ServerUnreachableError is returned when the actiongate server cannot be
// contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
