package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/repository"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB *sql.DB

	usage    *UsageRecordRepo
	attempts *JobAttemptRepo
}

var _ repository.Store = (*Repositories)(nil)

func Open(ctx context.Context, dsn string) (*Repositories, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

func New(db *sql.DB) *Repositories {
	return &Repositories{
		DB:       db,
		usage:    &UsageRecordRepo{db: db},
		attempts: &JobAttemptRepo{db: db},
	}
}

func (r *Repositories) UsageRecords() repository.UsageRecordRepository { return r.usage }

func (r *Repositories) JobAttempts() repository.JobAttemptRepository { return r.attempts }

func (r *Repositories) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *Repositories) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

type UsageRecordRepo struct{ db *sql.DB }

var _ repository.UsageRecordRepository = (*UsageRecordRepo)(nil)

func (r *UsageRecordRepo) Create(ctx context.Context, rec models.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_records (
			id, job_id, provider, model, action_type, outcome,
			estimated_tokens, estimated_cost, user_id, project_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID,
		nullableString(rec.JobID),
		rec.Provider,
		rec.Model,
		string(rec.ActionType),
		string(rec.Outcome),
		rec.EstimatedTokens,
		rec.EstimatedCost,
		nullableString(rec.UserID),
		nullableString(rec.ProjectID),
		formatTime(rec.Timestamp),
	)
	return err
}

func (r *UsageRecordRepo) List(ctx context.Context, filter repository.UsageFilter) ([]models.UsageRecord, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `SELECT id, job_id, provider, model, action_type, outcome, estimated_tokens, estimated_cost, user_id, project_id, created_at
		 FROM usage_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		var jobID, userID, projectID sql.NullString
		var actionType, outcome, createdAt string
		if err := rows.Scan(
			&rec.ID,
			&jobID,
			&rec.Provider,
			&rec.Model,
			&actionType,
			&outcome,
			&rec.EstimatedTokens,
			&rec.EstimatedCost,
			&userID,
			&projectID,
			&createdAt,
		); err != nil {
			return nil, err
		}
		rec.JobID = jobID.String
		rec.UserID = userID.String
		rec.ProjectID = projectID.String
		rec.ActionType = models.ActionType(actionType)
		rec.Outcome = models.Outcome(outcome)
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type JobAttemptRepo struct{ db *sql.DB }

var _ repository.JobAttemptRepository = (*JobAttemptRepo)(nil)

func (r *JobAttemptRepo) Create(ctx context.Context, a models.JobAttempt) error {
	if err := a.Validate(); err != nil {
		return err
	}

	hasAssets := 0
	if a.HasAssets {
		hasAssets = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_attempts (
			id, job_id, attempt_number, model, provider, has_assets,
			operation_name, poll_count, latency_ms, classification, decision, error, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID,
		a.JobID,
		a.AttemptNumber,
		a.Model,
		nullableString(a.Provider),
		hasAssets,
		nullableString(a.OperationName),
		a.PollCount,
		a.LatencyMs,
		nullableString(a.Classification),
		nullableString(a.Decision),
		nullableStringPtr(a.Error),
		formatTime(a.StartedAt),
	)
	return err
}

func (r *JobAttemptRepo) ListByJobID(ctx context.Context, jobID string) ([]models.JobAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, attempt_number, model, provider, has_assets, operation_name, poll_count, latency_ms, classification, decision, error, started_at
		 FROM job_attempts
		 WHERE job_id = ?
		 ORDER BY attempt_number ASC;`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.JobAttempt
	for rows.Next() {
		var a models.JobAttempt
		var provider, operation, classification, decision, errStr sql.NullString
		var hasAssets int
		var startedAt string
		if err := rows.Scan(
			&a.ID,
			&a.JobID,
			&a.AttemptNumber,
			&a.Model,
			&provider,
			&hasAssets,
			&operation,
			&a.PollCount,
			&a.LatencyMs,
			&classification,
			&decision,
			&errStr,
			&startedAt,
		); err != nil {
			return nil, err
		}
		a.Provider = provider.String
		a.HasAssets = hasAssets != 0
		a.OperationName = operation.String
		a.Classification = classification.String
		a.Decision = decision.String
		a.Error = parseNullableStringPtr(errStr)
		ts, err := parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		a.StartedAt = ts
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

// timeLayout keeps a fixed number of fractional digits so stored values
// sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err == nil {
		return t, nil
	}
	t, err2 := time.Parse(time.RFC3339, v)
	if err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return *v
}

func parseNullableStringPtr(v sql.NullString) *string {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	s := v.String
	return &s
}
