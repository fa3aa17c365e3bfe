package memory

import (
	"context"
	"sync"

	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/policy"
)

// PolicyStore implements policy.Store with an in-memory map keyed by
// organization id. Thread-safe for concurrent access. Policies are seeded
// from configuration at startup and may be replaced at runtime.
type PolicyStore struct {
	policies map[string]*policy.PermissionPolicy // OrganizationID -> policy
	mu       sync.RWMutex
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies: make(map[string]*policy.PermissionPolicy),
	}
}

// GetPolicy returns the organization's permission policy.
// Returns policy.ErrPolicyNotFound if none exists.
func (s *PolicyStore) GetPolicy(ctx context.Context, orgID string) (*policy.PermissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[orgID]
	if !ok {
		return nil, policy.ErrPolicyNotFound
	}
	return copyPermissionPolicy(p), nil
}

// SavePolicy creates or replaces an organization's policy.
func (s *PolicyStore) SavePolicy(ctx context.Context, p *policy.PermissionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[p.OrganizationID] = copyPermissionPolicy(p)
	return nil
}

// Seed adds a policy without a context (for startup seeding and tests).
func (s *PolicyStore) Seed(p *policy.PermissionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[p.OrganizationID] = copyPermissionPolicy(p)
}

// copyPermissionPolicy creates a deep copy so callers cannot mutate the
// stored policy through the returned pointer.
func copyPermissionPolicy(p *policy.PermissionPolicy) *policy.PermissionPolicy {
	cp := &policy.PermissionPolicy{
		OrganizationID: p.OrganizationID,
		Mode:           p.Mode,
	}
	if p.CategoryOverrides != nil {
		cp.CategoryOverrides = make(map[capability.Category]policy.Mode, len(p.CategoryOverrides))
		for k, v := range p.CategoryOverrides {
			cp.CategoryOverrides[k] = v
		}
	}
	if p.Toggles != nil {
		cp.Toggles = make(map[string]bool, len(p.Toggles))
		for k, v := range p.Toggles {
			cp.Toggles[k] = v
		}
	}
	if p.Guards != nil {
		cp.Guards = make([]policy.GuardRule, len(p.Guards))
		copy(cp.Guards, p.Guards)
	}
	return cp
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
