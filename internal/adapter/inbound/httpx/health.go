package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/service"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health.
type HealthChecker struct {
	pending      approval.Store
	auditService *service.AuditService
	version      string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(pending approval.Store, auditService *service.AuditService, version string) *HealthChecker {
	return &HealthChecker{
		pending:      pending,
		auditService: auditService,
		version:      version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.pending != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := h.pending.Get(probeCtx, "healthcheck-probe")
		cancel()
		// ErrNotFound means the store answered; anything else is a real
		// failure, and a dead pending store blocks enqueue and decide.
		if err != nil && !errors.Is(err, approval.ErrNotFound) {
			checks["pending_store"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["pending_store"] = "ok"
		}
	} else {
		checks["pending_store"] = "not configured"
	}

	if h.auditService != nil {
		depth := h.auditService.ChannelDepth()
		capacity := h.auditService.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			// Sustained backpressure on the action log is unhealthy.
			checks["action_log"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["action_log"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.auditService.DroppedEntries(); drops > 0 {
			checks["action_log_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["action_log"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
