package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "usage_and_attempts",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS usage_records (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL DEFAULT '',
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				action_type TEXT NOT NULL,
				outcome TEXT NOT NULL,
				estimated_tokens INTEGER NOT NULL,
				estimated_cost DOUBLE PRECISION NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				project_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_records_user_created_at ON usage_records(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_records_job_id ON usage_records(job_id)`,

			`CREATE TABLE IF NOT EXISTS job_attempts (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				attempt_number INTEGER NOT NULL,
				model TEXT NOT NULL,
				provider TEXT NOT NULL DEFAULT '',
				has_assets BOOLEAN NOT NULL,
				operation_name TEXT NOT NULL DEFAULT '',
				poll_count INTEGER NOT NULL,
				latency_ms BIGINT NOT NULL,
				classification TEXT NOT NULL DEFAULT '',
				decision TEXT NOT NULL DEFAULT '',
				error TEXT,
				started_at TIMESTAMPTZ NOT NULL,
				UNIQUE (job_id, attempt_number)
			)`,
		},
	},
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "postgres pool is nil", nil)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "begin migration transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "create schema_migrations", err)
	}

	applied := map[int]bool{}
	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "list applied migrations", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return internalerrors.New(internalerrors.ErrDatabaseError, "scan applied migrations", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "iterate applied migrations", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		for i, stmt := range m.statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return internalerrors.New(internalerrors.ErrDatabaseError, fmt.Sprintf("apply migration %d (%s) statement %d", m.version, m.name, i+1), err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
			return internalerrors.New(internalerrors.ErrDatabaseError, fmt.Sprintf("record migration %d (%s)", m.version, m.name), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "commit migrations", err)
	}
	return nil
}
