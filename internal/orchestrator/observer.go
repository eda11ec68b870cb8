package orchestrator

import (
	"context"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/registry"
)

// AttemptReport describes one submit-and-poll attempt.
type AttemptReport struct {
	JobID         string
	AttemptNumber int
	Model         registry.ModelConfig
	HasAssets     bool
	OperationName string
	PollCount     int
	Latency       time.Duration
	StartedAt     time.Time
	Err           error
	Kind          Kind
	Decision      RecoveryDecision
}

type Outcome struct {
	JobID   string
	Request GenerationRequest
	Result  Result
	Err     error
}

// Observer receives side-effect notifications inline on the job goroutine.
// Implementations handle and log their own failures; they cannot fail a job.
type Observer interface {
	AttemptFinished(ctx context.Context, report AttemptReport)
	JobFinished(ctx context.Context, outcome Outcome)
}
