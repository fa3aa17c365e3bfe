package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/capability"
)

// PendingStore implements approval.Store on SQLite. Status changes use a
// conditional UPDATE (WHERE id = ? AND status = ?) so a transition only
// succeeds when the record is still in the expected state; the loser of a
// decision race sees zero rows affected and gets approval.ErrConflict.
type PendingStore struct {
	db *sql.DB
}

// NewPendingStore creates a pending action store on the shared database.
func NewPendingStore(d *DB) *PendingStore {
	return &PendingStore{db: d.db}
}

// Create persists a new pending action.
func (s *PendingStore) Create(ctx context.Context, p *approval.PendingAction) error {
	args, err := json.Marshal(p.Arguments)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (
			id, capability_name, arguments, organization_id, user_id,
			session_id, conversation_id, requested_at, risk_level, description,
			category, affected_entity_type, status, created_at, expires_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		p.ID, p.CapabilityName, string(args), p.OrganizationID, p.UserID,
		p.SessionID, p.ConversationID, p.RequestedAt.UTC(), string(p.RiskLevel), p.Description,
		string(p.Category), p.AffectedEntityType, string(p.Status), p.CreatedAt.UTC(), p.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert pending action: %w", err)
	}
	return nil
}

const pendingColumns = `id, capability_name, arguments, organization_id, user_id,
	session_id, conversation_id, requested_at, risk_level, description,
	category, affected_entity_type, status, decided_by, decided_at,
	executed_at, result_summary, failure_reason, created_at, expires_at`

// Get returns the pending action for id, or approval.ErrNotFound.
func (s *PendingStore) Get(ctx context.Context, id string) (*approval.PendingAction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_actions
		WHERE id = ?;
	`, id)

	p, err := scanPendingAction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, approval.ErrNotFound
		}
		return nil, fmt.Errorf("select pending action: %w", err)
	}
	return p, nil
}

// ListPending returns an organization's pending actions, oldest first.
func (s *PendingStore) ListPending(ctx context.Context, orgID string) ([]*approval.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_actions
		WHERE organization_id = ? AND status = 'pending'
		ORDER BY created_at ASC;
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query pending actions: %w", err)
	}
	defer rows.Close()

	var out []*approval.PendingAction
	for rows.Next() {
		p, err := scanPendingAction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending action rows: %w", err)
	}
	return out, nil
}

// ListApproved returns every approved action across organizations, oldest
// first.
func (s *PendingStore) ListApproved(ctx context.Context) ([]*approval.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_actions
		WHERE status = 'approved'
		ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("query approved actions: %w", err)
	}
	defer rows.Close()

	var out []*approval.PendingAction
	for rows.Next() {
		p, err := scanPendingAction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan approved action: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("approved action rows: %w", err)
	}
	return out, nil
}

// Transition atomically moves the record from 'from' to 'to' and applies the
// update. Zero rows affected on a record that exists means another caller
// changed the status first.
func (s *PendingStore) Transition(ctx context.Context, id string, from, to approval.Status, update approval.Update) (*approval.PendingAction, error) {
	if !approval.CanTransition(from, to) {
		return nil, &approval.InvalidTransitionError{From: from, To: to}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = ?,
			decided_by = CASE WHEN ? != '' THEN ? ELSE decided_by END,
			decided_at = COALESCE(?, decided_at),
			executed_at = COALESCE(?, executed_at),
			result_summary = CASE WHEN ? != '' THEN ? ELSE result_summary END,
			failure_reason = CASE WHEN ? != '' THEN ? ELSE failure_reason END
		WHERE id = ? AND status = ?;
	`,
		string(to),
		update.DecidedBy, update.DecidedBy,
		nullableTime(update.DecidedAt),
		nullableTime(update.ExecutedAt),
		update.ResultSummary, update.ResultSummary,
		update.FailureReason, update.FailureReason,
		id, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("update pending action: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		// Either the id is unknown or the record left 'from' already.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, approval.ErrConflict
	}
	return s.Get(ctx, id)
}

// ExpireBefore moves every overdue pending action to expired and returns the
// records it changed, oldest first.
func (s *PendingStore) ExpireBefore(ctx context.Context, cutoff time.Time) ([]*approval.PendingAction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin expire transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM pending_actions
		WHERE status = 'pending' AND expires_at <= ?
		ORDER BY created_at ASC;
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query overdue actions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("overdue rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = 'expired', decided_at = ?
		WHERE status = 'pending' AND expires_at <= ?;
	`, cutoff.UTC(), cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("expire pending actions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expire transaction: %w", err)
	}

	expired := make([]*approval.PendingAction, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expired = append(expired, p)
	}
	return expired, nil
}

func scanPendingAction(scanFn func(dest ...any) error) (*approval.PendingAction, error) {
	var (
		p          approval.PendingAction
		argsJSON   string
		riskLevel  string
		category   string
		status     string
		decidedAt  sql.NullTime
		executedAt sql.NullTime
	)
	if err := scanFn(
		&p.ID, &p.CapabilityName, &argsJSON, &p.OrganizationID, &p.UserID,
		&p.SessionID, &p.ConversationID, &p.RequestedAt, &riskLevel, &p.Description,
		&category, &p.AffectedEntityType, &status, &p.DecidedBy, &decidedAt,
		&executedAt, &p.ResultSummary, &p.FailureReason, &p.CreatedAt, &p.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &p.Arguments); err != nil {
			return nil, fmt.Errorf("unmarshal arguments: %w", err)
		}
	}
	p.RiskLevel = capability.RiskLevel(riskLevel)
	p.Category = capability.Category(category)
	p.Status = approval.Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		p.ExecutedAt = &t
	}
	return &p, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Compile-time interface verification.
var _ approval.Store = (*PendingStore)(nil)
