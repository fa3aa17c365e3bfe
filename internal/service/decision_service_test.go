package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/actiongate/actiongate/internal/adapter/outbound/memory"
	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

// recordingSink captures audit entries synchronously.
type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingSink) Record(entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingSink) outcomes() []audit.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Outcome, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Outcome
	}
	return out
}

func decisionRegistry(t *testing.T, calls *atomic.Int64, handlerErr error) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	if err := reg.Register(capability.Capability{
		Name:               "createInvoice",
		Description:        "Create a draft invoice for a customer",
		Category:           capability.CategoryFinancial,
		Destructive:        true,
		RiskLevel:          capability.RiskHigh,
		AffectedEntityType: "invoice",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Bind("createInvoice", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		calls.Add(1)
		if handlerErr != nil {
			return nil, handlerErr
		}
		return map[string]interface{}{"invoice_id": "inv-42", "summary": "invoice inv-42 created"}, nil
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return reg
}

func queuedAction(id string) *approval.PendingAction {
	now := time.Now().UTC().Truncate(time.Second)
	return &approval.PendingAction{
		ID:                 id,
		CapabilityName:     "createInvoice",
		Arguments:          map[string]interface{}{"customer_id": "cust-1", "amount": 250.0},
		OrganizationID:     "org-1",
		UserID:             "user-1",
		RequestedAt:        now,
		RiskLevel:          capability.RiskHigh,
		Description:        "Create a draft invoice for a customer",
		Category:           capability.CategoryFinancial,
		AffectedEntityType: "invoice",
		Status:             approval.StatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(24 * time.Hour),
	}
}

func TestDecisionService_ApproveExecutes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	var calls atomic.Int64
	svc := NewDecisionService(store, decisionRegistry(t, &calls, nil), sink, discardLogger())

	if err := store.Create(ctx, queuedAction("pa-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Decide(ctx, "pa-1", approval.DecisionApprove, "owner-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Status != approval.StatusExecuted {
		t.Errorf("status = %s, want executed", got.Status)
	}
	if got.DecidedBy != "owner-1" {
		t.Errorf("decided_by = %q, want owner-1", got.DecidedBy)
	}
	if got.ExecutedAt == nil {
		t.Error("executed_at not set")
	}
	if got.ResultSummary != "invoice inv-42 created" {
		t.Errorf("result summary = %q", got.ResultSummary)
	}
	if calls.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", calls.Load())
	}

	want := []audit.Outcome{audit.OutcomeApproved, audit.OutcomeExecuted}
	if got := sink.outcomes(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("audit outcomes = %v, want %v", got, want)
	}
	for _, e := range sink.entries {
		if e.PendingActionID != "pa-1" || e.DecidedBy != "owner-1" {
			t.Errorf("entry missing linkage: %+v", e)
		}
	}
}

func TestDecisionService_RejectIsTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	var calls atomic.Int64
	svc := NewDecisionService(store, decisionRegistry(t, &calls, nil), sink, discardLogger())

	if err := store.Create(ctx, queuedAction("pa-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Decide(ctx, "pa-1", approval.DecisionReject, "owner-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Status != approval.StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if calls.Load() != 0 {
		t.Error("rejected action must never execute")
	}
	if outcomes := sink.outcomes(); len(outcomes) != 1 || outcomes[0] != audit.OutcomeRejected {
		t.Errorf("audit outcomes = %v, want [rejected]", outcomes)
	}

	// A later approval of the same action must not resurrect it.
	if _, err := svc.Decide(ctx, "pa-1", approval.DecisionApprove, "owner-2"); !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("decided action must never execute")
	}
}

func TestDecisionService_ExecutionFailureIsFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	var calls atomic.Int64
	svc := NewDecisionService(store, decisionRegistry(t, &calls, errors.New("ledger write refused")), sink, discardLogger())

	if err := store.Create(ctx, queuedAction("pa-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Decide(ctx, "pa-1", approval.DecisionApprove, "owner-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Status != approval.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FailureReason != "ledger write refused" {
		t.Errorf("failure reason = %q", got.FailureReason)
	}

	want := []audit.Outcome{audit.OutcomeApproved, audit.OutcomeFailed}
	if got := sink.outcomes(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("audit outcomes = %v, want %v", got, want)
	}
}

func TestDecisionService_ConcurrentDecidersSingleExecution(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	var calls atomic.Int64
	svc := NewDecisionService(store, decisionRegistry(t, &calls, nil), sink, discardLogger())

	if err := store.Create(ctx, queuedAction("pa-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const deciders = 16
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int64
	for i := 0; i < deciders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			decision := approval.DecisionApprove
			if n%2 == 1 {
				decision = approval.DecisionReject
			}
			_, err := svc.Decide(ctx, "pa-1", decision, fmt.Sprintf("owner-%d", n))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, approval.ErrAlreadyDecided):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("wins = %d, want exactly 1", wins.Load())
	}
	if conflicts.Load() != deciders-1 {
		t.Errorf("conflicts = %d, want %d", conflicts.Load(), deciders-1)
	}
	if calls.Load() > 1 {
		t.Errorf("handler ran %d times, want at most 1", calls.Load())
	}
}

func TestDecisionService_InvalidDecision(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewDecisionService(memory.NewPendingStore(), capability.NewRegistry(), &recordingSink{}, discardLogger())
	if _, err := svc.Decide(context.Background(), "pa-1", approval.Decision("maybe"), "owner-1"); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestDecisionService_UnknownAction(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewDecisionService(memory.NewPendingStore(), capability.NewRegistry(), &recordingSink{}, discardLogger())
	if _, err := svc.Decide(context.Background(), "missing", approval.DecisionApprove, "owner-1"); !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecisionService_UnboundCapabilityFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}

	// Catalogued but no handler bound.
	reg := capability.NewRegistry()
	if err := reg.Register(capability.Capability{
		Name:        "createInvoice",
		Category:    capability.CategoryFinancial,
		Destructive: true,
		RiskLevel:   capability.RiskHigh,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := NewDecisionService(store, reg, sink, discardLogger())

	if err := store.Create(ctx, queuedAction("pa-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Decide(ctx, "pa-1", approval.DecisionApprove, "owner-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Status != approval.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestDecisionService_RecoverInterrupted(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewPendingStore()
	sink := &recordingSink{}
	var calls atomic.Int64
	svc := NewDecisionService(store, decisionRegistry(t, &calls, nil), sink, discardLogger())

	// One action stuck in approved (crash between decision and execution),
	// one still pending.
	stuck := queuedAction("pa-stuck")
	if err := store.Create(ctx, stuck); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Now().UTC()
	if _, err := store.Transition(ctx, "pa-stuck", approval.StatusPending, approval.StatusApproved, approval.Update{
		DecidedBy: "owner-1", DecidedAt: &now,
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.Create(ctx, queuedAction("pa-waiting")); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := svc.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}
	if calls.Load() != 0 {
		t.Error("recovery must never re-run the capability")
	}

	got, _ := store.Get(ctx, "pa-stuck")
	if got.Status != approval.StatusFailed {
		t.Errorf("stuck action status = %s, want failed", got.Status)
	}
	got, _ = store.Get(ctx, "pa-waiting")
	if got.Status != approval.StatusPending {
		t.Errorf("waiting action status = %s, want pending", got.Status)
	}
	if outcomes := sink.outcomes(); len(outcomes) != 1 || outcomes[0] != audit.OutcomeFailed {
		t.Errorf("audit outcomes = %v, want [failed]", outcomes)
	}
}
