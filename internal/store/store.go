// Package store is the one concrete adapter implementing the document-store
// interface described in §6.2. The interface boundary (Repository) is the
// spec's actual contract; a reactive document database could stand in for
// this adapter without any phase/component code changing. Grounded on
// internal/db/store.go's tx.Begin/Commit claim pattern and GetConfigValue
// idiom, adapted from ticket/board entities to the spec's Project/Task/
// Signal/Session/etc. entities.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed Repository implementation.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the SQLite database at path and ensures the
// schema exists. Mirrors internal/db/sqlite.go's Open/migrate split, folded
// into one file since this schema is smaller than the teacher's.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, same as the teacher's store.

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			color TEXT,
			repo_url TEXT,
			local_path TEXT,
			github_repo TEXT,
			chat_layout TEXT NOT NULL DEFAULT 'slack',
			work_loop_enabled INTEGER NOT NULL DEFAULT 0,
			work_loop_max_agents INTEGER,
			work_loop_schedule TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			role TEXT,
			assignee TEXT,
			requires_human_review INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			session_id TEXT,
			agent_session_key TEXT,
			agent_model TEXT,
			agent_started_at INTEGER,
			agent_last_active_at INTEGER,
			agent_retry_count INTEGER NOT NULL DEFAULT 0,
			branch TEXT,
			pr_number INTEGER,
			escalated INTEGER NOT NULL DEFAULT 0,
			escalated_at INTEGER,
			triage_sent_at INTEGER,
			triage_acked_at INTEGER,
			resolution TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_by_project_status ON tasks(project_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_by_assignee ON tasks(assignee)`,
		`CREATE TABLE IF NOT EXISTS task_dependencies (
			task_id TEXT NOT NULL,
			depends_on_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (task_id, depends_on_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_by_task ON task_dependencies(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_by_depends_on ON task_dependencies(depends_on_id)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			author TEXT,
			author_type TEXT NOT NULL,
			content TEXT,
			type TEXT NOT NULL,
			responded_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_by_task ON comments(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_by_type ON comments(type)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			session_key TEXT,
			agent_id TEXT,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			blocking INTEGER NOT NULL,
			responded_at INTEGER,
			response TEXT,
			delivered_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_by_blocking ON signals(blocking, responded_at)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			model TEXT,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			last_active_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			task_id TEXT,
			project_id TEXT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT,
			message TEXT,
			agent TEXT,
			read INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_by_read ON notifications(read)`,
		`CREATE TABLE IF NOT EXISTS task_events (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			project_id TEXT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			actor TEXT,
			data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_by_task_ts ON task_events(task_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_by_project ON task_events(project_id)`,
		`CREATE TABLE IF NOT EXISTS prompt_versions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			content TEXT,
			active INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(role, model, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_by_role ON prompt_versions(role)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_by_role_model ON prompt_versions(role, model)`,
		// Only one active row per (role, model) -- enforced by a partial
		// unique index the same way the teacher relies on SQLite's own
		// constraint machinery rather than re-checking in Go wherever
		// possible.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_prompts_by_role_active
			ON prompt_versions(role, model) WHERE active = 1`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullableMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func scanNullableTime(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromMillis(ns.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error -- the same tx.Begin/Commit/Rollback shape as
// internal/db/store.go's UpdateTicketStatus.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op if already committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
