// Package api provides the JSON HTTP API for invocations, approvals, and the
// action log.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/actiongate/actiongate/internal/adapter/inbound/httpx"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/auth"
	"github.com/actiongate/actiongate/internal/domain/invoke"
	"github.com/actiongate/actiongate/internal/service"
)

// Handler provides the JSON API endpoints. Invocation requests need an agent
// or owner key; decisions and audit reads need an owner (or auditor, for
// reads) key. Without an APIKeyService the handler runs open, for local
// development only.
type Handler struct {
	interceptor *invoke.Interceptor
	decisions   *service.DecisionService
	auditQuery  audit.QueryStore
	keys        *auth.APIKeyService
	metrics     *httpx.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// HandlerOption configures a Handler dependency.
type HandlerOption func(*Handler)

// WithAuditQuery sets the action log read store.
func WithAuditQuery(q audit.QueryStore) HandlerOption {
	return func(h *Handler) { h.auditQuery = q }
}

// WithAPIKeys enables API key authentication.
func WithAPIKeys(s *auth.APIKeyService) HandlerOption {
	return func(h *Handler) { h.keys = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *httpx.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithTracer sets the tracer for invoke and decide spans.
func WithTracer(t trace.Tracer) HandlerOption {
	return func(h *Handler) { h.tracer = t }
}

// NewHandler creates the API handler.
func NewHandler(interceptor *invoke.Interceptor, decisions *service.DecisionService, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		interceptor: interceptor,
		decisions:   decisions,
		tracer:      nooptrace.NewTracerProvider().Tracer("actiongate"),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all API routes.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/actions", h.requireRole(h.handleInvoke, auth.RoleAgent, auth.RoleOwner))

	mux.HandleFunc("GET /api/v1/approvals", h.requireRole(h.handleListApprovals, auth.RoleOwner))
	mux.HandleFunc("GET /api/v1/approvals/{id}", h.requireRole(h.handleGetApproval, auth.RoleOwner))
	mux.HandleFunc("POST /api/v1/approvals/{id}/approve", h.requireRole(h.handleApprove, auth.RoleOwner))
	mux.HandleFunc("POST /api/v1/approvals/{id}/reject", h.requireRole(h.handleReject, auth.RoleOwner))

	mux.HandleFunc("GET /api/v1/audit", h.requireRole(h.handleAuditQuery, auth.RoleOwner, auth.RoleAuditor))
	mux.HandleFunc("GET /api/v1/audit/export", h.requireRole(h.handleAuditExport, auth.RoleOwner, auth.RoleAuditor))

	return mux
}

// requireRole authenticates the request and checks the identity holds one of
// the roles. With no key service configured every request passes through
// unauthenticated.
func (h *Handler) requireRole(next http.HandlerFunc, roles ...auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.keys == nil {
			next(w, r)
			return
		}

		rawKey := extractAPIKey(r)
		if rawKey == "" {
			h.respondError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		identity, err := h.keys.Validate(r.Context(), rawKey)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidKey) {
				h.respondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			h.logger.Error("API key validation failed", "error", err)
			h.respondError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		if !identity.HasAnyRole(roles...) {
			h.respondError(w, http.StatusForbidden, "insufficient role")
			return
		}

		ctx := identityInto(r.Context(), identity)
		next(w, r.WithContext(ctx))
	}
}

// extractAPIKey reads the key from the Authorization bearer header or the
// X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if key, ok := strings.CutPrefix(h, "Bearer "); ok {
			return key
		}
	}
	return r.Header.Get("X-API-Key")
}

// respondJSON writes a JSON response with the given status code and data.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
