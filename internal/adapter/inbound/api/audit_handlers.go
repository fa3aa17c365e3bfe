package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

// exportPageSize is the page size used when streaming the full log.
const exportPageSize = 500

// parseAuditFilter builds an audit filter from query parameters. The
// organization comes from the caller's scope; time bounds are RFC 3339.
func (h *Handler) parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		OrganizationID: scopeOrganization(r.Context(), q.Get("org")),
		CapabilityName: q.Get("capability"),
		Category:       capability.Category(q.Get("category")),
		Outcome:        audit.Outcome(q.Get("outcome")),
		Cursor:         q.Get("cursor"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.StartTime = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.EndTime = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = n
	}
	return filter, nil
}

// handleAuditQuery returns one page of action log entries, newest first.
func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if h.auditQuery == nil {
		h.respondError(w, http.StatusNotImplemented, "action log queries not configured")
		return
	}

	filter, err := h.parseAuditFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	if filter.OrganizationID == "" {
		h.respondError(w, http.StatusBadRequest, "org is required")
		return
	}

	entries, cursor, err := h.auditQuery.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("action log query failed", "error", err, "org_id", filter.OrganizationID)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     entries,
		"count":       len(entries),
		"next_cursor": cursor,
	})
}

// handleAuditExport streams every matching entry as JSON lines, paging
// through the store until exhausted.
func (h *Handler) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if h.auditQuery == nil {
		h.respondError(w, http.StatusNotImplemented, "action log queries not configured")
		return
	}

	filter, err := h.parseAuditFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	if filter.OrganizationID == "" {
		h.respondError(w, http.StatusBadRequest, "org is required")
		return
	}
	filter.Limit = exportPageSize
	filter.Cursor = ""

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	for {
		entries, cursor, err := h.auditQuery.Query(r.Context(), filter)
		if err != nil {
			// Headers are gone; the truncated stream is the best signal left.
			h.logger.Error("action log export failed", "error", err, "org_id", filter.OrganizationID)
			return
		}
		for _, entry := range entries {
			if err := enc.Encode(entry); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		if cursor == "" {
			return
		}
		filter.Cursor = cursor
	}
}
