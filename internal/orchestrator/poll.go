package orchestrator

import (
	"context"
	"log/slog"
	"time"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/retry"
	"github.com/jimeng-relay/storyvideo/internal/video"
)

const DefaultPollInterval = 5 * time.Second

// Poller drives one remote operation to a terminal state at a fixed
// interval. There is no backoff between ticks; only a failed query is retried.
type Poller struct {
	Interval time.Duration
	MaxWait  time.Duration
	Retry    retry.Config
	Logger   *slog.Logger
}

// Wait blocks until the operation is terminal, ctx is done, or MaxWait
// elapses. The remote job is abandoned, not cancelled, when ctx ends.
func (p *Poller) Wait(ctx context.Context, backend video.Backend, handle *video.OperationHandle) (string, int, error) {
	if handle != nil && handle.Done {
		uri, err := Resolve(handle)
		return uri, 0, err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// waitCtx carries MaxWait so that query retries and their backoff share
	// the same budget as the ticks.
	waitCtx := ctx
	if p.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.MaxWait)
		defer cancel()
	}
	stopped := func() error {
		if err := ctx.Err(); err != nil {
			return cancelledError(err)
		}
		return internalerrors.New(internalerrors.ErrTransient, "operation timed out after "+p.MaxWait.String(), nil)
	}

	current := handle
	polls := 0
	for {
		select {
		case <-waitCtx.Done():
			return "", polls, stopped()
		case <-ticker.C:
		}
		if waitCtx.Err() != nil {
			return "", polls, stopped()
		}

		polls++
		var next *video.OperationHandle
		err := retry.Do(waitCtx, p.Retry, func(call int) error {
			if call > 1 {
				logger.DebugContext(ctx, "retrying poll query", "poll", polls, "call", call)
			}
			var perr error
			next, perr = backend.Poll(waitCtx, current)
			return perr
		})
		if err != nil {
			if waitCtx.Err() != nil {
				return "", polls, stopped()
			}
			return "", polls, err
		}
		if next == nil {
			return "", polls, internalerrors.New(internalerrors.ErrUnknown, "poll returned no operation handle", nil)
		}

		logger.DebugContext(ctx, "polled video operation", "operation", next.Name, "done", next.Done, "poll", polls)
		if next.Done {
			uri, err := Resolve(next)
			return uri, polls, err
		}
		current = next
	}
}

// Resolve turns a terminal handle into an artifact URI or a failure. It has
// no side effects, so resolving the same handle twice gives the same result.
func Resolve(h *video.OperationHandle) (string, error) {
	if h == nil || !h.Done {
		return "", internalerrors.New(internalerrors.ErrUnknown, "operation is not complete", nil)
	}
	if d := h.ErrorDetail; d != nil {
		code := internalerrors.ErrUnknown
		if d.Kind != "" {
			code = d.Kind
		}
		return "", internalerrors.New(code, "video operation failed", d)
	}
	uri := h.ArtifactURI()
	if uri == "" {
		return "", internalerrors.New(internalerrors.ErrUnknown, "operation completed without a generated video", nil)
	}
	return uri, nil
}
