package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/models"
)

var ErrNotFound = errors.New("not found")

// UsageFilter narrows a usage listing. Zero fields match everything.
type UsageFilter struct {
	UserID    string
	ProjectID string
	JobID     string
	Since     time.Time
	Limit     int
}

type UsageRecordRepository interface {
	Create(ctx context.Context, rec models.UsageRecord) error
	List(ctx context.Context, filter UsageFilter) ([]models.UsageRecord, error)
}

type JobAttemptRepository interface {
	Create(ctx context.Context, attempt models.JobAttempt) error
	ListByJobID(ctx context.Context, jobID string) ([]models.JobAttempt, error)
}

// Store is one opened database backend.
type Store interface {
	UsageRecords() UsageRecordRepository
	JobAttempts() JobAttemptRepository
	Ping(ctx context.Context) error
	Close() error
}
