package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultBatchConcurrency = 2

type BatchItem struct {
	Result Result
	Err    error
}

// GenerateBatch runs independent jobs with at most concurrency in flight.
// Items come back in input order; one failed job does not stop the others.
func (o *Orchestrator) GenerateBatch(ctx context.Context, reqs []GenerationRequest, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := o.GenerateVideo(ctx, req)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
