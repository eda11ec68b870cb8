package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/repository"
)

type DB struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*DB)(nil)

func Open(ctx context.Context, databaseURL string) (*DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, internalerrors.New(internalerrors.ErrValidationFailed, "databaseURL is required", nil)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "parse DATABASE_URL", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 512

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "create postgres pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "ping postgres", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	if db == nil || db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "ping postgres", err)
	}
	return nil
}

func (db *DB) UsageRecords() repository.UsageRecordRepository {
	return &usageRecordRepository{pool: db.pool}
}

func (db *DB) JobAttempts() repository.JobAttemptRepository {
	return &jobAttemptRepository{pool: db.pool}
}

type usageRecordRepository struct {
	pool *pgxpool.Pool
}

func (r *usageRecordRepository) Create(ctx context.Context, rec models.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return internalerrors.New(internalerrors.ErrValidationFailed, "validate usage record", err)
	}

	_, err := r.pool.Exec(ctx, `INSERT INTO usage_records (
		id, job_id, provider, model, action_type, outcome, estimated_tokens, estimated_cost, user_id, project_id, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID,
		rec.JobID,
		rec.Provider,
		rec.Model,
		string(rec.ActionType),
		string(rec.Outcome),
		rec.EstimatedTokens,
		rec.EstimatedCost,
		rec.UserID,
		rec.ProjectID,
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "insert usage record", err)
	}
	return nil
}

func (r *usageRecordRepository) List(ctx context.Context, filter repository.UsageFilter) ([]models.UsageRecord, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.JobID != "" {
		add("job_id = $%d", filter.JobID)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since.UTC())
	}

	query := `SELECT id, job_id, provider, model, action_type, outcome, estimated_tokens, estimated_cost, user_id, project_id, created_at
		FROM usage_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "list usage records", err)
	}
	defer rows.Close()

	out := make([]models.UsageRecord, 0)
	for rows.Next() {
		var rec models.UsageRecord
		var actionType, outcome string
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Provider,
			&rec.Model,
			&actionType,
			&outcome,
			&rec.EstimatedTokens,
			&rec.EstimatedCost,
			&rec.UserID,
			&rec.ProjectID,
			&rec.Timestamp,
		); err != nil {
			return nil, internalerrors.New(internalerrors.ErrDatabaseError, "scan usage record", err)
		}
		rec.ActionType = models.ActionType(actionType)
		rec.Outcome = models.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "iterate usage records", err)
	}
	return out, nil
}

type jobAttemptRepository struct {
	pool *pgxpool.Pool
}

func (r *jobAttemptRepository) Create(ctx context.Context, a models.JobAttempt) error {
	if err := a.Validate(); err != nil {
		return internalerrors.New(internalerrors.ErrValidationFailed, "validate job attempt", err)
	}

	_, err := r.pool.Exec(ctx, `INSERT INTO job_attempts (
		id, job_id, attempt_number, model, provider, has_assets, operation_name, poll_count, latency_ms, classification, decision, error, started_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID,
		a.JobID,
		a.AttemptNumber,
		a.Model,
		a.Provider,
		a.HasAssets,
		a.OperationName,
		a.PollCount,
		a.LatencyMs,
		a.Classification,
		a.Decision,
		a.Error,
		a.StartedAt.UTC(),
	)
	if err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "insert job attempt", err)
	}
	return nil
}

func (r *jobAttemptRepository) ListByJobID(ctx context.Context, jobID string) ([]models.JobAttempt, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, internalerrors.New(internalerrors.ErrValidationFailed, "jobID is required", nil)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, job_id, attempt_number, model, provider, has_assets,
		operation_name, poll_count, latency_ms, classification, decision, error, started_at
		FROM job_attempts WHERE job_id = $1 ORDER BY attempt_number ASC`, jobID)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "list job attempts", err)
	}
	defer rows.Close()

	attempts := make([]models.JobAttempt, 0)
	for rows.Next() {
		var a models.JobAttempt
		if err := rows.Scan(
			&a.ID,
			&a.JobID,
			&a.AttemptNumber,
			&a.Model,
			&a.Provider,
			&a.HasAssets,
			&a.OperationName,
			&a.PollCount,
			&a.LatencyMs,
			&a.Classification,
			&a.Decision,
			&a.Error,
			&a.StartedAt,
		); err != nil {
			return nil, internalerrors.New(internalerrors.ErrDatabaseError, "scan job attempt", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, internalerrors.New(internalerrors.ErrDatabaseError, "iterate job attempts", err)
	}
	if len(attempts) == 0 {
		return nil, repository.ErrNotFound
	}
	return attempts, nil
}
