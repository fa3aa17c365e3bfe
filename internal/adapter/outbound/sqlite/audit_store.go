package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/policy"
)

// AuditStore implements audit.Store and audit.QueryStore on SQLite. The
// action_log table is append-only; INSERT OR IGNORE against the unique
// attempt_key column drops retried entries for an already-recorded attempt.
// The monotonically increasing seq column preserves append order and serves
// as the pagination cursor.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an audit store on the shared database.
func NewAuditStore(d *DB) *AuditStore {
	return &AuditStore{db: d.db}
}

// Append stores entries in arrival order. Duplicate attempt keys are
// silently dropped.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	for _, e := range entries {
		args, err := json.Marshal(e.Arguments)
		if err != nil {
			return fmt.Errorf("marshal arguments: %w", err)
		}
		result, err := json.Marshal(e.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}

		// attempt_key is a uint64; SQLite INTEGER holds an int64, so the
		// value is stored with the sign bit reinterpreted and converted back
		// on read.
		_, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO action_log (
				id, organization_id, capability_name, category, arguments,
				policy_mode, outcome, result, reason, pending_action_id,
				user_id, session_id, conversation_id, decided_by, attempt_key, ts
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
		`,
			e.ID, e.OrganizationID, e.CapabilityName, string(e.Category), string(args),
			string(e.PolicyMode), string(e.Outcome), string(result), e.Reason, e.PendingActionID,
			e.UserID, e.SessionID, e.ConversationID, e.DecidedBy, int64(e.AttemptKey), e.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert action log entry: %w", err)
		}
	}
	return nil
}

// Flush forces pending entries to storage.
// No-op: each Append is committed by SQLite directly.
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources. The shared DB handle is closed by its owner.
func (s *AuditStore) Close() error {
	return nil
}

// Query retrieves entries matching the filter, newest first. The returned
// cursor is the seq of the last entry; pass it back to fetch the next page.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var conds []string
	var args []any
	conds = append(conds, "organization_id = ?")
	args = append(args, filter.OrganizationID)

	if filter.CapabilityName != "" {
		conds = append(conds, "capability_name = ?")
		args = append(args, filter.CapabilityName)
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if !filter.StartTime.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, filter.StartTime.UTC())
	}
	if !filter.EndTime.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, filter.EndTime.UTC())
	}
	if filter.Cursor != "" {
		seq, err := strconv.ParseInt(filter.Cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q", filter.Cursor)
		}
		conds = append(conds, "seq < ?")
		args = append(args, seq)
	}

	query := `
		SELECT seq, id, organization_id, capability_name, category, arguments,
			policy_mode, outcome, result, reason, pending_action_id,
			user_id, session_id, conversation_id, decided_by, attempt_key, ts
		FROM action_log
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY seq DESC
		LIMIT ?;`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	var lastSeq int64
	for rows.Next() {
		var (
			e          audit.Entry
			seq        int64
			category   string
			argsJSON   string
			mode       string
			outcome    string
			resultJSON string
			attemptKey int64
		)
		if err := rows.Scan(
			&seq, &e.ID, &e.OrganizationID, &e.CapabilityName, &category, &argsJSON,
			&mode, &outcome, &resultJSON, &e.Reason, &e.PendingActionID,
			&e.UserID, &e.SessionID, &e.ConversationID, &e.DecidedBy, &attemptKey, &e.Timestamp,
		); err != nil {
			return nil, "", fmt.Errorf("scan action log entry: %w", err)
		}
		e.Category = capability.Category(category)
		e.PolicyMode = policy.Mode(mode)
		e.Outcome = audit.Outcome(outcome)
		e.AttemptKey = uint64(attemptKey)
		if argsJSON != "" && argsJSON != "null" {
			if err := json.Unmarshal([]byte(argsJSON), &e.Arguments); err != nil {
				return nil, "", fmt.Errorf("unmarshal arguments: %w", err)
			}
		}
		if resultJSON != "" && resultJSON != "null" {
			if err := json.Unmarshal([]byte(resultJSON), &e.Result); err != nil {
				return nil, "", fmt.Errorf("unmarshal result: %w", err)
			}
		}
		if len(out) == limit {
			// The extra row only proves another page exists.
			return out, strconv.FormatInt(lastSeq, 10), nil
		}
		out = append(out, e)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("action log rows: %w", err)
	}
	return out, "", nil
}

// Compile-time interface verification.
var (
	_ audit.Store      = (*AuditStore)(nil)
	_ audit.QueryStore = (*AuditStore)(nil)
)
