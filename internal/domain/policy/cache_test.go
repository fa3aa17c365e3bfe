package policy

import (
	"context"
	"testing"
	"time"
)

// countingStore counts GetPolicy calls.
type countingStore struct {
	calls  int
	policy *PermissionPolicy
	err    error
}

func (s *countingStore) GetPolicy(ctx context.Context, orgID string) (*PermissionPolicy, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.policy, nil
}

func TestCachingStore_ServesFreshEntry(t *testing.T) {
	inner := &countingStore{policy: &PermissionPolicy{OrganizationID: "org-1", Mode: ModeAutonomous}}
	cache := NewCachingStore(inner, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cache.GetPolicy(context.Background(), "org-1"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCachingStore_RefetchesAfterTTL(t *testing.T) {
	inner := &countingStore{policy: &PermissionPolicy{OrganizationID: "org-1", Mode: ModeAutonomous}}
	cache := NewCachingStore(inner, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	if _, err := cache.GetPolicy(context.Background(), "org-1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	// Advance beyond the TTL.
	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := cache.GetPolicy(context.Background(), "org-1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCachingStore_ErrorsAreNotCached(t *testing.T) {
	inner := &countingStore{err: ErrPolicyNotFound}
	cache := NewCachingStore(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetPolicy(context.Background(), "org-1"); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2 (errors must not be cached)", inner.calls)
	}
}

func TestCachingStore_Invalidate(t *testing.T) {
	inner := &countingStore{policy: &PermissionPolicy{OrganizationID: "org-1", Mode: ModeAutonomous}}
	cache := NewCachingStore(inner, time.Minute)

	_, _ = cache.GetPolicy(context.Background(), "org-1")
	cache.Invalidate("org-1")
	_, _ = cache.GetPolicy(context.Background(), "org-1")

	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2 after invalidate", inner.calls)
	}
}
