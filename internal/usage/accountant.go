// Package usage keeps the append-only log of terminal job outcomes used for
// quota and billing display.
package usage

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jimeng-relay/storyvideo/internal/models"
)

const defaultSinkTimeout = 5 * time.Second

// Entry is what the orchestrator reports once per job.
type Entry struct {
	JobID           string
	Provider        string
	Model           string
	Outcome         models.Outcome
	EstimatedTokens int
	EstimatedCost   float64
	UserID          string
	ProjectID       string
}

// Sink receives every record after it has been appended to the in-memory log.
type Sink interface {
	Append(ctx context.Context, rec models.UsageRecord) error
}

type Config struct {
	Sink        Sink
	Logger      *slog.Logger
	SinkTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Accountant is safe for concurrent use. It is the only state shared across
// jobs.
type Accountant struct {
	mu      sync.Mutex
	records []models.UsageRecord

	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
	pending sync.WaitGroup
}

func NewAccountant(cfg Config) *Accountant {
	a := &Accountant{
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		timeout: cfg.SinkTimeout,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.timeout <= 0 {
		a.timeout = defaultSinkTimeout
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	if a.newID == nil {
		a.newID = func() string { return "usage_" + uuid.NewString() }
	}
	return a
}

// Record appends one record and hands it to the sink in the background. It
// never blocks on the sink and never fails: sink errors are logged.
func (a *Accountant) Record(ctx context.Context, e Entry) models.UsageRecord {
	rec := models.UsageRecord{
		ID:              a.newID(),
		JobID:           e.JobID,
		Provider:        e.Provider,
		Model:           e.Model,
		ActionType:      models.ActionTypeVideo,
		Outcome:         e.Outcome,
		EstimatedTokens: max(e.EstimatedTokens, 0),
		EstimatedCost:   max(e.EstimatedCost, 0),
		UserID:          e.UserID,
		ProjectID:       e.ProjectID,
		Timestamp:       a.now(),
	}
	if err := rec.Validate(); err != nil {
		a.logger.WarnContext(ctx, "usage record is incomplete", "error", err, "job_id", e.JobID)
	}

	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()

	if a.sink == nil {
		return rec
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.sink.Append(sinkCtx, rec); err != nil {
			a.logger.ErrorContext(sinkCtx, "failed to persist usage record", "error", err, "usage_id", rec.ID)
		}
	}()
	return rec
}

// Records returns a copy of the log in append order.
func (a *Accountant) Records() []models.UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.records)
}

// Flush waits for in-flight sink writes or for ctx to end.
func (a *Accountant) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
