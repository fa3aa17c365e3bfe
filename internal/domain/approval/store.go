package approval

import (
	"context"
	"time"
)

// Update carries the fields a transition may set alongside the status change.
// Nil time pointers and empty strings leave the stored value untouched.
type Update struct {
	DecidedBy     string
	DecidedAt     *time.Time
	ExecutedAt    *time.Time
	ResultSummary string
	FailureReason string
}

// Store persists pending actions. All status changes go through Transition,
// a conditional update that only succeeds when the record is currently in
// the expected state — two near-simultaneous decisions on the same id cannot
// both win. Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new pending action in StatusPending.
	Create(ctx context.Context, p *PendingAction) error

	// Get returns the pending action for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*PendingAction, error)

	// ListPending returns an organization's pending actions, oldest first.
	ListPending(ctx context.Context, orgID string) ([]*PendingAction, error)

	// ListApproved returns every action stuck in StatusApproved across all
	// organizations, oldest first. Used by startup recovery: an approved
	// record whose execution never reached a terminal status.
	ListApproved(ctx context.Context) ([]*PendingAction, error)

	// Transition atomically moves the record from 'from' to 'to' and applies
	// the update, returning the record as stored afterward.
	// Returns ErrNotFound when the id does not exist, ErrConflict when the
	// record is not currently in 'from', and a plain error when from → to is
	// not a legal lifecycle transition.
	Transition(ctx context.Context, id string, from, to Status, update Update) (*PendingAction, error)

	// ExpireBefore moves every pending action whose ExpiresAt is at or
	// before the cutoff to StatusExpired, returning the records it changed
	// so each expiry can be logged.
	ExpireBefore(ctx context.Context, cutoff time.Time) ([]*PendingAction, error)
}
