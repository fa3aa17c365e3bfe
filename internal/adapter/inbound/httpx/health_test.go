package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/actiongate/actiongate/internal/adapter/outbound/memory"
)

func TestHealthChecker_Healthy(t *testing.T) {
	checker := NewHealthChecker(memory.NewPendingStore(), nil, "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	checker.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.Checks["pending_store"] != "ok" {
		t.Errorf("pending_store check = %q, want ok", resp.Checks["pending_store"])
	}
}

func TestHealthChecker_NotConfigured(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	checker.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["pending_store"] != "not configured" {
		t.Errorf("pending_store check = %q", resp.Checks["pending_store"])
	}
	if resp.Checks["action_log"] != "not configured" {
		t.Errorf("action_log check = %q", resp.Checks["action_log"])
	}
}
