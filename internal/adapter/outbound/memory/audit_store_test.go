package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

func entry(id, orgID string, outcome audit.Outcome, ts time.Time) audit.Entry {
	return audit.Entry{
		ID:             id,
		OrganizationID: orgID,
		CapabilityName: "createInvoice",
		Category:       capability.CategoryFinancial,
		Outcome:        outcome,
		AttemptKey:     audit.AttemptKey(id, outcome),
		Timestamp:      ts,
	}
}

func TestAuditStore_AppendAndQuery(t *testing.T) {
	var buf bytes.Buffer
	store := NewAuditStoreWithWriter(&buf)
	ctx := context.Background()
	base := time.Now()

	for i, e := range []audit.Entry{
		entry("e-1", "org-1", audit.OutcomeQueued, base),
		entry("e-2", "org-1", audit.OutcomeExecuted, base.Add(time.Second)),
		entry("e-3", "org-2", audit.OutcomeRefused, base.Add(2*time.Second)),
	} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, cursor, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty on last page", cursor)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "e-2" || got[1].ID != "e-1" {
		t.Errorf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}

	// Each appended entry is one JSON line on the writer.
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 3 {
		t.Errorf("writer lines = %d, want 3", lines)
	}
}

func TestAuditStore_DuplicateAttemptKeyDropped(t *testing.T) {
	store := NewAuditStoreWithWriter(&bytes.Buffer{})
	ctx := context.Background()

	e := entry("e-1", "org-1", audit.OutcomeQueued, time.Now())
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Same logical attempt retried.
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("retry append: %v", err)
	}
	// Same attempt, different outcome: a distinct logical record.
	if err := store.Append(ctx, entry("e-1", "org-1", audit.OutcomeApproved, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, _, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (duplicate dropped, distinct outcome kept)", len(got))
	}
}

func TestAuditStore_QueryFilters(t *testing.T) {
	store := NewAuditStoreWithWriter(&bytes.Buffer{})
	ctx := context.Background()
	base := time.Now()

	report := entry("e-report", "org-1", audit.OutcomeExecuted, base)
	report.CapabilityName = "getJobCostingReport"
	report.Category = capability.CategoryReporting

	if err := store.Append(ctx,
		entry("e-old", "org-1", audit.OutcomeExecuted, base.Add(-2*time.Hour)),
		entry("e-refused", "org-1", audit.OutcomeRefused, base),
		report,
	); err != nil {
		t.Fatalf("append: %v", err)
	}

	tests := []struct {
		name   string
		filter audit.Filter
		want   []string
	}{
		{"by outcome", audit.Filter{OrganizationID: "org-1", Outcome: audit.OutcomeRefused}, []string{"e-refused"}},
		{"by capability", audit.Filter{OrganizationID: "org-1", CapabilityName: "getJobCostingReport"}, []string{"e-report"}},
		{"by category", audit.Filter{OrganizationID: "org-1", Category: capability.CategoryReporting}, []string{"e-report"}},
		{"by time range", audit.Filter{OrganizationID: "org-1", StartTime: base.Add(-time.Minute)}, []string{"e-report", "e-refused"}},
		{"wrong org", audit.Filter{OrganizationID: "org-9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("entry %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestAuditStore_Pagination(t *testing.T) {
	store := NewAuditStoreWithWriter(&bytes.Buffer{})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		e := entry("e-"+string(rune('a'+i)), "org-1", audit.OutcomeExecuted, base.Add(time.Duration(i)*time.Second))
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page1, cursor, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1", Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("page 1: len = %d, cursor = %q", len(page1), cursor)
	}

	page2, cursor2, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1", Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page 2: len = %d", len(page2))
	}
	if page2[0].ID == page1[1].ID {
		t.Error("pages must not overlap")
	}

	page3, cursor3, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1", Limit: 2, Cursor: cursor2})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || cursor3 != "" {
		t.Errorf("page 3: len = %d, cursor = %q, want final page of 1", len(page3), cursor3)
	}
}

func TestAuditStore_RingBufferBounded(t *testing.T) {
	store := NewAuditStoreWithWriter(&bytes.Buffer{}, 3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		e := entry("e-"+string(rune('a'+i)), "org-1", audit.OutcomeExecuted, base.Add(time.Duration(i)*time.Second))
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, _, err := store.Query(ctx, audit.Filter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (oldest evicted)", len(got))
	}
	if got[0].ID != "e-e" || got[2].ID != "e-c" {
		t.Errorf("unexpected retained window: %s .. %s", got[0].ID, got[2].ID)
	}
}
