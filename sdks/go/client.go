package actiongate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the actiongate SDK client.
type Client struct {
	serverAddr     string
	apiKey         string
	organizationID string
	timeout        time.Duration
	pollInterval   time.Duration
	httpClient     *http.Client
}

// NewClient creates a new actiongate SDK client.
// It reads configuration from ACTIONGATE_* environment variables by default;
// options override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:     os.Getenv("ACTIONGATE_SERVER_ADDR"),
		apiKey:         os.Getenv("ACTIONGATE_API_KEY"),
		organizationID: os.Getenv("ACTIONGATE_ORG_ID"),
		timeout:        parseDurationEnv("ACTIONGATE_TIMEOUT", 30*time.Second),
		pollInterval:   parseDurationEnv("ACTIONGATE_POLL_INTERVAL", 2*time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Invoke submits one capability invocation. Executed invocations return the
// capability result; refused invocations return a *RefusedError; queued
// invocations return the response with OutcomeQueued and the pending action
// reference, without waiting for the decision.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	if req.OrganizationID == "" {
		req.OrganizationID = c.organizationID
	}

	var resp InvokeResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/actions", req, &resp); err != nil {
		return nil, err
	}

	if resp.Outcome == OutcomeRefused {
		return nil, &RefusedError{
			CapabilityName: req.CapabilityName,
			Reason:         resp.Reason,
		}
	}
	return &resp, nil
}

// InvokeAndWait submits an invocation and, when it queues for approval,
// waits up to maxWait for the owner's decision. The returned response
// reflects the terminal outcome: executed with the action's result summary,
// or failed with the rejection/failure/expiry reason.
func (c *Client) InvokeAndWait(ctx context.Context, req InvokeRequest, maxWait time.Duration) (*InvokeResponse, error) {
	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Outcome != OutcomeQueued {
		return resp, nil
	}

	final, err := c.WaitForDecision(ctx, resp.PendingActionID, maxWait)
	if err != nil {
		return nil, err
	}

	switch final.Status {
	case "executed":
		return &InvokeResponse{
			Outcome: OutcomeExecuted,
			Result:  map[string]any{"summary": final.ResultSummary},
		}, nil
	case "failed":
		return &InvokeResponse{Outcome: OutcomeFailed, Reason: final.FailureReason}, nil
	case "rejected":
		return &InvokeResponse{Outcome: OutcomeFailed, Reason: "rejected by " + final.DecidedBy}, nil
	default: // expired
		return &InvokeResponse{Outcome: OutcomeFailed, Reason: "approval window elapsed"}, nil
	}
}

// WaitForDecision polls a queued action until it reaches a terminal status
// or maxWait elapses. On timeout it returns a *DecisionTimeoutError; the
// action stays queued and the caller may wait again.
func (c *Client) WaitForDecision(ctx context.Context, pendingActionID string, maxWait time.Duration) (*PendingAction, error) {
	deadline := time.Now().Add(maxWait)

	for {
		p, err := c.GetPendingAction(ctx, pendingActionID)
		if err != nil {
			return nil, err
		}
		if p.Terminal() {
			return p, nil
		}

		if time.Now().After(deadline) {
			return nil, &DecisionTimeoutError{PendingActionID: pendingActionID}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// ListPendingActions returns the organization's pending queue, oldest first.
// The org parameter may be empty for authenticated clients.
func (c *Client) ListPendingActions(ctx context.Context, org string) ([]PendingAction, error) {
	if org == "" {
		org = c.organizationID
	}
	var out struct {
		PendingActions []PendingAction `json:"pending_actions"`
	}
	path := "/api/v1/approvals?org=" + url.QueryEscape(org)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.PendingActions, nil
}

// GetPendingAction returns one queued action by id.
func (c *Client) GetPendingAction(ctx context.Context, id string) (*PendingAction, error) {
	var p PendingAction
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/approvals/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Approve approves a queued action. The call returns after the capability
// has executed (or failed); the returned record carries the final status.
func (c *Client) Approve(ctx context.Context, id string) (*PendingAction, error) {
	return c.decide(ctx, id, "approve")
}

// Reject rejects a queued action.
func (c *Client) Reject(ctx context.Context, id string) (*PendingAction, error) {
	return c.decide(ctx, id, "reject")
}

func (c *Client) decide(ctx context.Context, id, verdict string) (*PendingAction, error) {
	var p PendingAction
	path := fmt.Sprintf("/api/v1/approvals/%s/%s", url.PathEscape(id), verdict)
	if err := c.doRequest(ctx, http.MethodPost, path, struct{}{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// QueryAuditLog returns one page of action log entries, newest first.
func (c *Client) QueryAuditLog(ctx context.Context, filter AuditFilter) (*AuditPage, error) {
	q := url.Values{}
	org := filter.OrganizationID
	if org == "" {
		org = c.organizationID
	}
	if org != "" {
		q.Set("org", org)
	}
	if filter.CapabilityName != "" {
		q.Set("capability", filter.CapabilityName)
	}
	if filter.Outcome != "" {
		q.Set("outcome", filter.Outcome)
	}
	if !filter.From.IsZero() {
		q.Set("from", filter.From.Format(time.RFC3339))
	}
	if !filter.To.IsZero() {
		q.Set("to", filter.To.Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Cursor != "" {
		q.Set("cursor", filter.Cursor)
	}

	var page AuditPage
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/audit?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// doRequest performs an HTTP request against the actiongate server.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	reqURL := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &APIError{
			StatusCode: httpResp.StatusCode,
			Message:    extractErrorMessage(respBody),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// extractErrorMessage pulls the "error" field out of a JSON error body,
// falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
