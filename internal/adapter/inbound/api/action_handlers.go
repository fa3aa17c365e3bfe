package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/invoke"
)

// invokeRequest is the JSON body for POST /api/v1/actions.
type invokeRequest struct {
	CapabilityName string                 `json:"capability_name"`
	Arguments      map[string]interface{} `json:"arguments,omitempty"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	SessionID      string                 `json:"session_id"`
	ConversationID string                 `json:"conversation_id"`
}

// invokeResponse is the JSON response for an invocation attempt. Outcome is
// one of executed, refused, queued, failed; queued responses carry the
// pending action reference and its owner-facing summary.
type invokeResponse struct {
	Outcome         string                 `json:"outcome"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	PendingActionID string                 `json:"pending_action_id,omitempty"`
	Summary         *approval.Summary      `json:"summary,omitempty"`
}

// handleInvoke mediates one capability invocation.
func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CapabilityName == "" {
		h.respondError(w, http.StatusBadRequest, "capability_name is required")
		return
	}

	orgID := scopeOrganization(r.Context(), req.OrganizationID)
	if orgID == "" {
		h.respondError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "actiongate.invoke")
	span.SetAttributes(
		attribute.String("capability.name", req.CapabilityName),
		attribute.String("organization.id", orgID),
	)
	defer span.End()

	started := time.Now()
	outcome, err := h.interceptor.Handle(ctx, invoke.Request{
		CapabilityName: req.CapabilityName,
		Arguments:      req.Arguments,
		Actor: invoke.Actor{
			OrganizationID: orgID,
			UserID:         req.UserID,
			SessionID:      req.SessionID,
			ConversationID: req.ConversationID,
		},
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, invoke.ErrStoreUnavailable) {
			h.respondError(w, http.StatusServiceUnavailable, "approval queue unavailable")
			return
		}
		h.logger.Error("invocation handling failed", "error", err, "capability", req.CapabilityName)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(attribute.String("invoke.outcome", string(outcome.Kind)))
	if h.metrics != nil {
		h.metrics.InvocationsTotal.WithLabelValues(string(outcome.Kind)).Inc()
		if outcome.Kind == invoke.KindExecuted || outcome.Kind == invoke.KindFailed {
			h.metrics.ExecutionDuration.WithLabelValues(req.CapabilityName).Observe(time.Since(started).Seconds())
		}
	}

	resp := invokeResponse{
		Outcome:         string(outcome.Kind),
		Result:          outcome.Result,
		Reason:          outcome.Reason,
		PendingActionID: outcome.PendingActionID,
	}
	status := http.StatusOK
	if outcome.Kind == invoke.KindQueued {
		// 202: accepted, awaiting approval — distinguishable from both
		// success and failure.
		status = http.StatusAccepted
		summary := outcome.Summary
		resp.Summary = &summary
	}
	h.respondJSON(w, status, resp)
}
