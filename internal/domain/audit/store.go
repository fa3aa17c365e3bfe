package audit

import (
	"context"
	"time"

	"github.com/actiongate/actiongate/internal/domain/capability"
)

// Store persists action log entries.
// Interface owned by the domain per hexagonal architecture.
// Append must drop entries whose AttemptKey has already been stored, so a
// retried caller cannot double-record the same logical attempt.
type Store interface {
	// Append stores entries. Implementations handle batching; writes for a
	// single pending action preserve append order.
	Append(ctx context.Context, entries ...Entry) error

	// Flush forces pending entries to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Filter specifies query parameters for action log queries.
type Filter struct {
	// OrganizationID scopes the query (required).
	OrganizationID string
	// CapabilityName filters by capability (optional).
	CapabilityName string
	// Category filters by capability category (optional).
	Category capability.Category
	// Outcome filters by outcome (optional).
	Outcome Outcome
	// StartTime / EndTime bound the time range (optional).
	StartTime time.Time
	EndTime   time.Time
	// Limit is the maximum number of entries to return (default 100).
	Limit int
	// Cursor is the pagination cursor for the next page (optional).
	Cursor string
}

// QueryStore provides read access to the action log for audit and reporting.
// Separate from Store, which handles writes.
type QueryStore interface {
	// Query returns entries matching the filter, newest first, plus the next
	// cursor (empty when no more pages).
	Query(ctx context.Context, filter Filter) ([]Entry, string, error)
}
