package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/service"
)

// handleListApprovals returns an organization's pending queue, oldest first.
func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	orgID := scopeOrganization(r.Context(), r.URL.Query().Get("org"))
	if orgID == "" {
		h.respondError(w, http.StatusBadRequest, "org is required")
		return
	}

	pending, err := h.decisions.ListPending(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to list pending actions", "error", err, "org_id", orgID)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if h.metrics != nil {
		h.metrics.PendingActions.Set(float64(len(pending)))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"pending_actions": pending,
		"count":           len(pending),
	})
}

// handleGetApproval returns one pending action. An action belonging to a
// different organization than the caller's reads as not found.
func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	p, ok := h.fetchScoped(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// decideRequest is the optional JSON body for decision endpoints. decided_by
// is only honored when the handler runs unauthenticated; with API keys the
// identity is authoritative.
type decideRequest struct {
	DecidedBy string `json:"decided_by"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionApprove)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionReject)
}

// decide applies one owner verdict and returns the record in its resulting
// status (rejected, executed, or failed).
func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision approval.Decision) {
	p, ok := h.fetchScoped(w, r)
	if !ok {
		return
	}

	decidedBy := ""
	if identity := identityFrom(r.Context()); identity != nil {
		decidedBy = identity.ID
	} else {
		var req decideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			decidedBy = req.DecidedBy
		}
		if decidedBy == "" {
			decidedBy = "owner"
		}
	}

	ctx, span := h.tracer.Start(r.Context(), "actiongate.decide")
	span.SetAttributes(
		attribute.String("pending.id", p.ID),
		attribute.String("decision", string(decision)),
	)
	defer span.End()

	updated, err := h.decisions.Decide(ctx, p.ID, decision, decidedBy)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrAlreadyDecided):
			// 409 so UIs can explain "someone already acted on this".
			current, getErr := h.decisions.Get(r.Context(), p.ID)
			body := map[string]interface{}{"error": "already decided"}
			if getErr == nil {
				body["status"] = current.Status
				body["decided_by"] = current.DecidedBy
			}
			h.respondJSON(w, http.StatusConflict, body)
		case errors.Is(err, approval.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "pending action not found")
		case errors.Is(err, service.ErrInvalidDecision):
			h.respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("decision failed", "error", err, "pending_id", p.ID, "decision", decision)
			h.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	}
	h.respondJSON(w, http.StatusOK, updated)
}

// fetchScoped loads the pending action from the path id and enforces the
// caller's organization scope. Cross-organization ids read as not found so
// existence is not leaked.
func (h *Handler) fetchScoped(w http.ResponseWriter, r *http.Request) (*approval.PendingAction, bool) {
	id := r.PathValue("id")
	p, err := h.decisions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "pending action not found")
		} else {
			h.logger.Error("failed to load pending action", "error", err, "pending_id", id)
			h.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}

	if identity := identityFrom(r.Context()); identity != nil &&
		identity.OrganizationID != "" && identity.OrganizationID != p.OrganizationID {
		h.respondError(w, http.StatusNotFound, "pending action not found")
		return nil, false
	}
	return p, true
}
