package usage

import (
	"context"

	"github.com/jimeng-relay/storyvideo/internal/models"
)

// UsageRecordCreator is the subset of the usage repository the sink needs.
type UsageRecordCreator interface {
	Create(ctx context.Context, rec models.UsageRecord) error
}

type RepositorySink struct {
	repo UsageRecordCreator
}

func NewRepositorySink(repo UsageRecordCreator) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Append(ctx context.Context, rec models.UsageRecord) error {
	return s.repo.Create(ctx, rec)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec models.UsageRecord) error

func (f SinkFunc) Append(ctx context.Context, rec models.UsageRecord) error {
	return f(ctx, rec)
}
