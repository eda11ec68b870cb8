package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/registry"
)

type fakeAttemptRepo struct {
	called  int
	created []models.JobAttempt
	ctxErr  error
	err     error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, attempt models.JobAttempt) error {
	f.called++
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, attempt)
	return nil
}

func (f *fakeAttemptRepo) ListByJobID(_ context.Context, _ string) ([]models.JobAttempt, error) {
	return nil, errors.New("not implemented")
}

func newTestRecorder(repo *fakeAttemptRepo) *Recorder {
	return NewRecorder(repo, Config{
		Now:    func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) },
		Random: bytes.NewReader(bytes.Repeat([]byte{0xab}, 64)),
	})
}

func TestRecorder_Record(t *testing.T) {
	repo := &fakeAttemptRepo{}
	rec := newTestRecorder(repo)

	started := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	err := rec.Record(context.Background(), orchestrator.AttemptReport{
		JobID:         "job_1",
		AttemptNumber: 2,
		Model:         registry.ModelConfig{Version: "veo-3.0-fast-generate-001", Provider: registry.ProviderGoogle},
		HasAssets:     true,
		OperationName: "operations/abc",
		PollCount:     4,
		Latency:       1500 * time.Millisecond,
		StartedAt:     started,
		Err:           errors.New("quota exceeded"),
		Kind:          orchestrator.KindRateLimit,
		Decision:      orchestrator.DecisionRetry,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if repo.called != 1 || len(repo.created) != 1 {
		t.Fatalf("expected one attempt, got %d", repo.called)
	}

	got := repo.created[0]
	if got.ID != "att_abababababababab" {
		t.Fatalf("unexpected id %q", got.ID)
	}
	if got.JobID != "job_1" || got.AttemptNumber != 2 || got.Model != "veo-3.0-fast-generate-001" || got.Provider != "google" {
		t.Fatalf("unexpected identity fields: %+v", got)
	}
	if !got.HasAssets || got.PollCount != 4 || got.LatencyMs != 1500 || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected metrics: %+v", got)
	}
	if got.Classification != "rate_limit" || got.Decision != "retry" {
		t.Fatalf("unexpected decision fields: %+v", got)
	}
	if got.Error == nil || *got.Error != "quota exceeded" {
		t.Fatalf("unexpected error field: %v", got.Error)
	}
}

func TestRecorder_RecordSurvivesCancelledJob(t *testing.T) {
	repo := &fakeAttemptRepo{}
	rec := newTestRecorder(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.AttemptFinished(ctx, orchestrator.AttemptReport{
		JobID:         "job_1",
		AttemptNumber: 1,
		Model:         registry.ModelConfig{Version: "veo-3.0-generate-001"},
		Err:           context.Canceled,
		Kind:          orchestrator.KindCancelled,
	})
	if repo.called != 1 {
		t.Fatalf("expected attempt to be stored")
	}
	if repo.ctxErr != nil {
		t.Fatalf("repository saw cancelled context: %v", repo.ctxErr)
	}
	if !repo.created[0].StartedAt.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("missing start time should default to now: %v", repo.created[0].StartedAt)
	}
}

func TestRecorder_Errors(t *testing.T) {
	rec := NewRecorder(nil, Config{})
	err := rec.Record(context.Background(), orchestrator.AttemptReport{JobID: "job_1", AttemptNumber: 1})
	if internalerrors.GetCode(err) != internalerrors.ErrDatabaseError {
		t.Fatalf("expected DATABASE_ERROR, got %v", err)
	}

	repo := &fakeAttemptRepo{}
	rec = newTestRecorder(repo)
	err = rec.Record(context.Background(), orchestrator.AttemptReport{AttemptNumber: 1})
	if internalerrors.GetCode(err) != internalerrors.ErrValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	repo.err = errors.New("disk full")
	err = rec.Record(context.Background(), orchestrator.AttemptReport{JobID: "job_1", AttemptNumber: 1, Model: registry.ModelConfig{Version: "m"}})
	if internalerrors.GetCode(err) != internalerrors.ErrDatabaseError {
		t.Fatalf("expected DATABASE_ERROR, got %v", err)
	}

	// AttemptFinished only logs.
	rec.AttemptFinished(context.Background(), orchestrator.AttemptReport{JobID: "job_1", AttemptNumber: 1})
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxErrorLen+10)
	if got := truncate(long, maxErrorLen); len(got) != maxErrorLen+3 {
		t.Fatalf("unexpected length %d", len(got))
	}
	if got := truncate("short", maxErrorLen); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
