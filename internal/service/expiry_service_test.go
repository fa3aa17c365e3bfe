package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/actiongate/actiongate/internal/adapter/outbound/memory"
	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
)

func TestExpiryService_Sweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	svc := NewExpiryService(store, sink, discardLogger())

	overdue := queuedAction("pa-overdue")
	overdue.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	fresh := queuedAction("pa-fresh")
	for _, p := range []*approval.PendingAction{overdue, fresh} {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}

	got, _ := store.Get(ctx, "pa-overdue")
	if got.Status != approval.StatusExpired {
		t.Errorf("overdue status = %s, want expired", got.Status)
	}
	got, _ = store.Get(ctx, "pa-fresh")
	if got.Status != approval.StatusPending {
		t.Errorf("fresh status = %s, want pending", got.Status)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Outcome != audit.OutcomeExpired || e.PendingActionID != "pa-overdue" {
		t.Errorf("unexpected entry: %+v", e)
	}

	// An expired action cannot be approved afterward.
	if _, err := store.Transition(ctx, "pa-overdue", approval.StatusPending, approval.StatusApproved, approval.Update{}); err == nil {
		t.Error("expired action must not be approvable")
	}
}

func TestExpiryService_SweepIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	svc := NewExpiryService(store, sink, discardLogger())

	overdue := queuedAction("pa-overdue")
	overdue.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if err := store.Create(ctx, overdue); err != nil {
		t.Fatalf("create: %v", err)
	}

	if n, err := svc.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("first sweep = (%d, %v), want (1, nil)", n, err)
	}
	if n, err := svc.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep = (%d, %v), want (0, nil)", n, err)
	}
	if len(sink.entries) != 1 {
		t.Errorf("recorded %d entries, want 1", len(sink.entries))
	}
}

func TestExpiryService_StartRunsInitialSweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	// Long interval so only the startup sweep runs within the test.
	svc := NewExpiryService(store, sink, discardLogger(), WithSweepSchedule("@every 1h"))

	overdue := queuedAction("pa-overdue")
	overdue.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if err := store.Create(ctx, overdue); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Stop()

	got, _ := store.Get(ctx, "pa-overdue")
	if got.Status != approval.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

func TestExpiryService_BadSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewExpiryService(memory.NewPendingStore(), &recordingSink{}, discardLogger(), WithSweepSchedule("not a schedule"))
	if err := svc.Start(context.Background()); err == nil {
		t.Error("expected schedule parse error")
		svc.Stop()
	}
}
