package actiongate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(
		WithServerAddr(srv.URL),
		WithAPIKey("test-key"),
		WithOrganizationID("org-1"),
		WithPollInterval(10*time.Millisecond),
	)
	return srv, client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestInvoke_Executed(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/actions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req InvokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.CapabilityName != "createInvoice" {
			t.Errorf("capability = %q", req.CapabilityName)
		}
		if req.OrganizationID != "org-1" {
			t.Errorf("org not defaulted: %q", req.OrganizationID)
		}

		writeJSON(w, http.StatusOK, InvokeResponse{
			Outcome: OutcomeExecuted,
			Result:  map[string]any{"invoice_id": "inv-42"},
		})
	})

	resp, err := client.Invoke(context.Background(), InvokeRequest{CapabilityName: "createInvoice"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Outcome != OutcomeExecuted {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if resp.Result["invoice_id"] != "inv-42" {
		t.Errorf("result = %v", resp.Result)
	}
}

func TestInvoke_Refused(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, InvokeResponse{
			Outcome: OutcomeRefused,
			Reason:  "agent-initiated actions are disabled for this organization",
		})
	})

	_, err := client.Invoke(context.Background(), InvokeRequest{CapabilityName: "sendCustomerEmail"})
	if err == nil {
		t.Fatal("expected refusal error")
	}
	if !errors.Is(err, ErrRefused) {
		t.Errorf("errors.Is(ErrRefused) = false for %v", err)
	}
	var refused *RefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("not a RefusedError: %v", err)
	}
	if refused.CapabilityName != "sendCustomerEmail" {
		t.Errorf("capability = %q", refused.CapabilityName)
	}
}

func TestInvoke_QueuedReturnsWithoutWaiting(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, InvokeResponse{
			Outcome:         OutcomeQueued,
			PendingActionID: "pa-1",
			Summary:         &ActionSummary{Capability: "createInvoice", RiskLevel: "high"},
		})
	})

	resp, err := client.Invoke(context.Background(), InvokeRequest{CapabilityName: "createInvoice"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Outcome != OutcomeQueued || resp.PendingActionID != "pa-1" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Summary == nil || resp.Summary.RiskLevel != "high" {
		t.Errorf("summary = %+v", resp.Summary)
	}
}

func TestInvokeAndWait_ApprovedAfterPolling(t *testing.T) {
	var polls atomic.Int64
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/actions":
			writeJSON(w, http.StatusAccepted, InvokeResponse{Outcome: OutcomeQueued, PendingActionID: "pa-7"})
		case r.URL.Path == "/api/v1/approvals/pa-7":
			if polls.Add(1) < 3 {
				writeJSON(w, http.StatusOK, PendingAction{ID: "pa-7", Status: "pending"})
				return
			}
			writeJSON(w, http.StatusOK, PendingAction{
				ID: "pa-7", Status: "executed", DecidedBy: "owner-1",
				ResultSummary: "invoice inv-42 created",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	resp, err := client.InvokeAndWait(context.Background(), InvokeRequest{CapabilityName: "createInvoice"}, time.Second)
	if err != nil {
		t.Fatalf("InvokeAndWait: %v", err)
	}
	if resp.Outcome != OutcomeExecuted {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if resp.Result["summary"] != "invoice inv-42 created" {
		t.Errorf("result = %v", resp.Result)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want >= 3", polls.Load())
	}
}

func TestInvokeAndWait_Rejected(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/actions":
			writeJSON(w, http.StatusAccepted, InvokeResponse{Outcome: OutcomeQueued, PendingActionID: "pa-8"})
		case "/api/v1/approvals/pa-8":
			writeJSON(w, http.StatusOK, PendingAction{ID: "pa-8", Status: "rejected", DecidedBy: "owner-2"})
		}
	})

	resp, err := client.InvokeAndWait(context.Background(), InvokeRequest{CapabilityName: "recordPayment"}, time.Second)
	if err != nil {
		t.Fatalf("InvokeAndWait: %v", err)
	}
	if resp.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if resp.Reason != "rejected by owner-2" {
		t.Errorf("reason = %q", resp.Reason)
	}
}

func TestWaitForDecision_Timeout(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, PendingAction{ID: "pa-9", Status: "pending"})
	})

	_, err := client.WaitForDecision(context.Background(), "pa-9", 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, ErrDecisionTimeout) {
		t.Errorf("errors.Is(ErrDecisionTimeout) = false for %v", err)
	}
}

func TestApproveAndReject(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/api/v1/approvals/pa-1/approve":
			writeJSON(w, http.StatusOK, PendingAction{ID: "pa-1", Status: "executed"})
		case "/api/v1/approvals/pa-2/reject":
			writeJSON(w, http.StatusOK, PendingAction{ID: "pa-2", Status: "rejected"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	approved, err := client.Approve(context.Background(), "pa-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != "executed" {
		t.Errorf("status = %q", approved.Status)
	}

	rejected, err := client.Reject(context.Background(), "pa-2")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != "rejected" {
		t.Errorf("status = %q", rejected.Status)
	}
}

func TestListPendingActions(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("org"); got != "org-1" {
			t.Errorf("org = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pending_actions": []PendingAction{
				{ID: "pa-1", Status: "pending"},
				{ID: "pa-2", Status: "pending"},
			},
			"count": 2,
		})
	})

	pending, err := client.ListPendingActions(context.Background(), "")
	if err != nil {
		t.Fatalf("ListPendingActions: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "pa-1" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestQueryAuditLog(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("org") != "org-1" || q.Get("capability") != "createInvoice" || q.Get("limit") != "10" {
			t.Errorf("query = %v", q)
		}
		writeJSON(w, http.StatusOK, AuditPage{
			Entries:    []AuditEntry{{ID: "e-1", Outcome: "executed"}},
			Count:      1,
			NextCursor: "cursor-2",
		})
	})

	page, err := client.QueryAuditLog(context.Background(), AuditFilter{
		CapabilityName: "createInvoice",
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("QueryAuditLog: %v", err)
	}
	if page.Count != 1 || page.NextCursor != "cursor-2" {
		t.Errorf("page = %+v", page)
	}
}

func TestAPIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "pending action not found"})
	})

	_, err := client.GetPendingAction(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("not an APIError: %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "pending action not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestServerUnreachable(t *testing.T) {
	client := NewClient(
		WithServerAddr("http://127.0.0.1:1"),
		WithTimeout(100*time.Millisecond),
	)

	_, err := client.Invoke(context.Background(), InvokeRequest{CapabilityName: "searchCustomers"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("errors.Is(ErrServerUnreachable) = false for %v", err)
	}
}

func TestPendingAction_Terminal(t *testing.T) {
	for status, want := range map[string]bool{
		"pending":  false,
		"approved": false,
		"rejected": true,
		"executed": true,
		"failed":   true,
		"expired":  true,
	} {
		p := PendingAction{Status: status}
		if got := p.Terminal(); got != want {
			t.Errorf("Terminal(%q) = %v, want %v", status, got, want)
		}
	}
}
