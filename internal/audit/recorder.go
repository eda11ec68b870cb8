// Package audit persists one row per video attempt so a job's recovery path
// can be inspected after the fact.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"time"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/repository"
)

const maxErrorLen = 2000

type Config struct {
	Now    func() time.Time
	Random io.Reader
	Logger *slog.Logger
}

type Recorder struct {
	attempts repository.JobAttemptRepository

	now    func() time.Time
	random io.Reader
	logger *slog.Logger
}

var _ orchestrator.Observer = (*Recorder)(nil)

func NewRecorder(attempts repository.JobAttemptRepository, cfg Config) *Recorder {
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	rnd := cfg.Random
	if rnd == nil {
		rnd = rand.Reader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{attempts: attempts, now: nowFn, random: rnd, logger: logger}
}

// Record stores one attempt.
func (r *Recorder) Record(ctx context.Context, report orchestrator.AttemptReport) error {
	if r.attempts == nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "job attempt repository is required", nil)
	}
	if report.JobID == "" {
		return internalerrors.New(internalerrors.ErrValidationFailed, "job_id is required", nil)
	}

	id, err := generateID(r.random, "att_")
	if err != nil {
		return internalerrors.New(internalerrors.ErrUnknown, "generate attempt id", err)
	}

	started := report.StartedAt
	if started.IsZero() {
		started = r.now()
	}

	attempt := models.JobAttempt{
		ID:             id,
		JobID:          report.JobID,
		AttemptNumber:  report.AttemptNumber,
		Model:          report.Model.Version,
		Provider:       string(report.Model.Provider),
		HasAssets:      report.HasAssets,
		OperationName:  report.OperationName,
		PollCount:      report.PollCount,
		LatencyMs:      report.Latency.Milliseconds(),
		Classification: string(report.Kind),
		Decision:       string(report.Decision),
		StartedAt:      started.UTC(),
	}
	if report.Err != nil {
		msg := truncate(report.Err.Error(), maxErrorLen)
		attempt.Error = &msg
	}

	// The job context may already be cancelled; the row still belongs in the
	// trail.
	if err := r.attempts.Create(context.WithoutCancel(ctx), attempt); err != nil {
		return internalerrors.New(internalerrors.ErrDatabaseError, "create job attempt", err)
	}
	return nil
}

func (r *Recorder) AttemptFinished(ctx context.Context, report orchestrator.AttemptReport) {
	if err := r.Record(ctx, report); err != nil {
		r.logger.ErrorContext(ctx, "failed to record job attempt", "error", err, "attempt", report.AttemptNumber)
	}
}

func (r *Recorder) JobFinished(context.Context, orchestrator.Outcome) {}

func generateID(r io.Reader, prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
