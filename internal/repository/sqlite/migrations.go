package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		action_type TEXT NOT NULL,
		outcome TEXT NOT NULL,
		estimated_tokens INTEGER NOT NULL,
		estimated_cost REAL NOT NULL,
		user_id TEXT,
		project_id TEXT,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_user_created_at ON usage_records(user_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_job_id ON usage_records(job_id);`,

	`CREATE TABLE IF NOT EXISTS job_attempts (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		model TEXT NOT NULL,
		provider TEXT,
		has_assets INTEGER NOT NULL,
		operation_name TEXT,
		poll_count INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		classification TEXT,
		decision TEXT,
		error TEXT,
		started_at TEXT NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_attempts_job_attempt ON job_attempts(job_id, attempt_number);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range migrationStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if isSQLiteDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isSQLiteDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
