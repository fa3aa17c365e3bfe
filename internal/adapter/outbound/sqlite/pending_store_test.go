package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "actiongate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testAction(id, orgID string, createdAt time.Time) *approval.PendingAction {
	return &approval.PendingAction{
		ID:                 id,
		CapabilityName:     "recordPayment",
		Arguments:          map[string]interface{}{"invoice_id": "inv-7", "amount": 125.0},
		OrganizationID:     orgID,
		UserID:             "user-1",
		SessionID:          "sess-1",
		ConversationID:     "conv-1",
		RequestedAt:        createdAt,
		RiskLevel:          capability.RiskHigh,
		Description:        "Record a payment against an invoice",
		Category:           capability.CategoryFinancial,
		AffectedEntityType: "payment",
		Status:             approval.StatusPending,
		CreatedAt:          createdAt,
		ExpiresAt:          createdAt.Add(24 * time.Hour),
	}
}

func TestPendingStore_RoundTrip(t *testing.T) {
	store := NewPendingStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Create(ctx, testAction("pa-1", "org-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "pa-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CapabilityName != "recordPayment" || got.Status != approval.StatusPending {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Arguments["invoice_id"] != "inv-7" || got.Arguments["amount"] != 125.0 {
		t.Errorf("arguments lost in round trip: %+v", got.Arguments)
	}
	if got.RiskLevel != capability.RiskHigh || got.Category != capability.CategoryFinancial {
		t.Errorf("capability metadata lost: %+v", got)
	}
	if !got.ExpiresAt.After(got.CreatedAt) {
		t.Error("expiry deadline lost")
	}
}

func TestPendingStore_ListPendingOldestFirst(t *testing.T) {
	store := NewPendingStore(openTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for _, pa := range []*approval.PendingAction{
		testAction("pa-newer", "org-1", base.Add(time.Minute)),
		testAction("pa-older", "org-1", base),
		testAction("pa-other-org", "org-2", base),
	} {
		if err := store.Create(ctx, pa); err != nil {
			t.Fatalf("create %s: %v", pa.ID, err)
		}
	}

	list, err := store.ListPending(ctx, "org-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "pa-older" || list[1].ID != "pa-newer" {
		t.Errorf("expected oldest first, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestPendingStore_TransitionSingleWinner(t *testing.T) {
	store := NewPendingStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := store.Create(ctx, testAction("pa-1", "org-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	decidedAt := now.Add(time.Minute)
	got, err := store.Transition(ctx, "pa-1", approval.StatusPending, approval.StatusApproved,
		approval.Update{DecidedBy: "owner-1", DecidedAt: &decidedAt})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != approval.StatusApproved || got.DecidedBy != "owner-1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.DecidedAt == nil {
		t.Error("decided_at not stored")
	}

	// Competing rejection arrives after the approval won.
	_, err = store.Transition(ctx, "pa-1", approval.StatusPending, approval.StatusRejected,
		approval.Update{DecidedBy: "owner-2"})
	if !errors.Is(err, approval.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Resumer claims the approved action for execution.
	executedAt := now.Add(2 * time.Minute)
	got, err = store.Transition(ctx, "pa-1", approval.StatusApproved, approval.StatusExecuted,
		approval.Update{ExecutedAt: &executedAt, ResultSummary: "payment recorded"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Status != approval.StatusExecuted || got.ResultSummary != "payment recorded" {
		t.Errorf("unexpected record after execution: %+v", got)
	}
	// The approval decision fields survive the second transition.
	if got.DecidedBy != "owner-1" {
		t.Errorf("decided_by overwritten: %q", got.DecidedBy)
	}
}

func TestPendingStore_TransitionErrors(t *testing.T) {
	store := NewPendingStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.Transition(ctx, "missing", approval.StatusPending, approval.StatusApproved, approval.Update{})
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = store.Transition(ctx, "missing", approval.StatusExecuted, approval.StatusPending, approval.Update{})
	var invalid *approval.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestPendingStore_ExpireBefore(t *testing.T) {
	store := NewPendingStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	overdue := testAction("pa-overdue", "org-1", now.Add(-48*time.Hour))
	overdue.ExpiresAt = now.Add(-24 * time.Hour)
	fresh := testAction("pa-fresh", "org-1", now)

	for _, pa := range []*approval.PendingAction{overdue, fresh} {
		if err := store.Create(ctx, pa); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	expired, err := store.ExpireBefore(ctx, now)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "pa-overdue" {
		t.Fatalf("expired = %v, want [pa-overdue]", expired)
	}
	if expired[0].Status != approval.StatusExpired {
		t.Errorf("returned record status = %s, want expired", expired[0].Status)
	}

	got, _ := store.Get(ctx, "pa-overdue")
	if got.Status != approval.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	got, _ = store.Get(ctx, "pa-fresh")
	if got.Status != approval.StatusPending {
		t.Errorf("fresh action must stay pending, got %s", got.Status)
	}
}
