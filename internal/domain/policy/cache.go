package policy

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached policy may be. Policy can change
// between a request and its approval, so the TTL stays short; the decision
// path re-reads policy regardless.
const DefaultCacheTTL = 5 * time.Second

// CachingStore wraps a Store with a per-organization TTL cache. It is an
// explicit injected object, not a package-level singleton, so eviction and
// multi-process behavior stay testable.
type CachingStore struct {
	inner Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	policy    *PermissionPolicy
	fetchedAt time.Time
}

// NewCachingStore creates a CachingStore with the given TTL.
// A non-positive TTL falls back to DefaultCacheTTL.
func NewCachingStore(inner Store, ttl time.Duration) *CachingStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingStore{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetPolicy returns the cached policy when fresh, otherwise re-fetches.
// Fetch errors are never cached; a missing policy stays a per-call miss.
func (c *CachingStore) GetPolicy(ctx context.Context, orgID string) (*PermissionPolicy, error) {
	c.mu.RLock()
	entry, ok := c.entries[orgID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.policy, nil
	}

	p, err := c.inner.GetPolicy(ctx, orgID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[orgID] = cacheEntry{policy: p, fetchedAt: c.now()}
	c.mu.Unlock()
	return p, nil
}

// Invalidate drops the cached entry for an organization.
func (c *CachingStore) Invalidate(orgID string) {
	c.mu.Lock()
	delete(c.entries, orgID)
	c.mu.Unlock()
}

// Compile-time check that CachingStore implements Store.
var _ Store = (*CachingStore)(nil)
