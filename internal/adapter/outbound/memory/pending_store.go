package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/actiongate/actiongate/internal/domain/approval"
)

// PendingStore implements approval.Store with an in-memory map.
// Thread-safe for concurrent access. For development/testing only; durable
// deployments use the sqlite store.
type PendingStore struct {
	actions map[string]*approval.PendingAction // ID -> PendingAction
	mu      sync.Mutex
}

// NewPendingStore creates a new in-memory pending action store.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		actions: make(map[string]*approval.PendingAction),
	}
}

// Create stores a new pending action.
func (s *PendingStore) Create(ctx context.Context, p *approval.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation.
	s.actions[p.ID] = copyPendingAction(p)
	return nil
}

// Get returns a pending action by ID.
// Returns approval.ErrNotFound if it doesn't exist.
func (s *PendingStore) Get(ctx context.Context, id string) (*approval.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.actions[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return copyPendingAction(p), nil
}

// ListPending returns an organization's pending actions, oldest first.
func (s *PendingStore) ListPending(ctx context.Context, orgID string) ([]*approval.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*approval.PendingAction
	for _, p := range s.actions {
		if p.OrganizationID == orgID && p.Status == approval.StatusPending {
			result = append(result, copyPendingAction(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListApproved returns every approved action across organizations, oldest
// first.
func (s *PendingStore) ListApproved(ctx context.Context) ([]*approval.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*approval.PendingAction
	for _, p := range s.actions {
		if p.Status == approval.StatusApproved {
			result = append(result, copyPendingAction(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Transition atomically moves an action from one status to another. The read,
// the status check, and the write happen under a single lock so two
// concurrent deciders cannot both win: the second caller observes the new
// status and gets approval.ErrConflict.
func (s *PendingStore) Transition(ctx context.Context, id string, from, to approval.Status, update approval.Update) (*approval.PendingAction, error) {
	if !approval.CanTransition(from, to) {
		return nil, &approval.InvalidTransitionError{From: from, To: to}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.actions[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	if p.Status != from {
		return nil, approval.ErrConflict
	}

	p.Status = to
	applyUpdate(p, update)
	return copyPendingAction(p), nil
}

// ExpireBefore marks every pending action whose deadline is at or before the
// cutoff as expired, and returns the records it moved.
func (s *PendingStore) ExpireBefore(ctx context.Context, cutoff time.Time) ([]*approval.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*approval.PendingAction
	for _, p := range s.actions {
		if p.Status == approval.StatusPending && !p.ExpiresAt.After(cutoff) {
			p.Status = approval.StatusExpired
			p.DecidedAt = &cutoff
			expired = append(expired, copyPendingAction(p))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired, nil
}

func applyUpdate(p *approval.PendingAction, update approval.Update) {
	if update.DecidedBy != "" {
		p.DecidedBy = update.DecidedBy
	}
	if update.DecidedAt != nil {
		p.DecidedAt = update.DecidedAt
	}
	if update.ExecutedAt != nil {
		p.ExecutedAt = update.ExecutedAt
	}
	if update.ResultSummary != "" {
		p.ResultSummary = update.ResultSummary
	}
	if update.FailureReason != "" {
		p.FailureReason = update.FailureReason
	}
}

// copyPendingAction creates a deep copy of a pending action.
func copyPendingAction(p *approval.PendingAction) *approval.PendingAction {
	cp := *p
	if p.Arguments != nil {
		cp.Arguments = make(map[string]interface{}, len(p.Arguments))
		for k, v := range p.Arguments {
			cp.Arguments[k] = v
		}
	}
	if p.DecidedAt != nil {
		t := *p.DecidedAt
		cp.DecidedAt = &t
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		cp.ExecutedAt = &t
	}
	return &cp
}

// Compile-time interface verification.
var _ approval.Store = (*PendingStore)(nil)
