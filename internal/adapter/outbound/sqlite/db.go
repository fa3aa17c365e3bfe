// Package sqlite provides durable implementations of outbound ports backed
// by a local SQLite database. This is the default persistence for
// single-node deployments; the memory package covers tests and dev.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the shared database handle. Both stores in this package are
// created from one DB so they share the connection and its pragmas.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. A single writer connection keeps SQLite's locking simple.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	ctx := context.Background()
	if err := d.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := d.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, q := range pragmas {
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (d *DB) initSchema(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS pending_actions (
			id TEXT PRIMARY KEY,
			capability_name TEXT NOT NULL,
			arguments TEXT NOT NULL DEFAULT '{}',
			organization_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			requested_at DATETIME NOT NULL,
			risk_level TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			affected_entity_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('pending', 'approved', 'rejected', 'executed', 'failed', 'expired')),
			decided_by TEXT NOT NULL DEFAULT '',
			decided_at DATETIME,
			executed_at DATETIME,
			result_summary TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS action_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			capability_name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			arguments TEXT NOT NULL DEFAULT '{}',
			policy_mode TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			pending_action_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			decided_by TEXT NOT NULL DEFAULT '',
			attempt_key INTEGER NOT NULL UNIQUE,
			ts DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_org_status ON pending_actions(organization_id, status, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_expiry ON pending_actions(status, expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_org ON action_log(organization_id, seq);`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
