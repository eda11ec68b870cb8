// Package retry re-runs an idempotent remote call with jittered exponential
// backoff. The orchestrator uses it only for poll queries; submissions go to
// the recovery policy instead.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

// Config bounds a retry loop. MaxRetries counts calls after the first one.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

var DefaultConfig = Config{
	MaxRetries:   2,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2,
}

func (c Config) withDefaults() Config {
	c.MaxRetries = max(c.MaxRetries, 0)
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultConfig.Multiplier
	}
	c.MaxDelay = max(c.MaxDelay, c.InitialDelay)
	return c
}

// Do calls fn with the 1-based call number until it succeeds, fails with an
// error Retryable rejects, or the retries are spent. A backoff that would run
// past ctx's deadline is not started; the last error from fn is returned.
func Do(ctx context.Context, cfg Config, fn func(call int) error) error {
	if fn == nil {
		return internalerrors.New(internalerrors.ErrValidationFailed, "retry function is nil", nil)
	}
	cfg = cfg.withDefaults()
	b := newBackoff(cfg, rand.Float64)

	for call := 1; ; call++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(call)
		if err == nil || call > cfg.MaxRetries || !Retryable(err) {
			return err
		}

		pause := b.next()
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < pause {
			return err
		}
		if werr := wait(ctx, pause); werr != nil {
			return werr
		}
	}
}

// backoff yields delays in [d/2, d) where d grows by the multiplier from
// InitialDelay up to MaxDelay.
type backoff struct {
	d      time.Duration
	limit  time.Duration
	factor float64
	jitter func() float64
}

func newBackoff(cfg Config, jitter func() float64) *backoff {
	return &backoff{d: cfg.InitialDelay, limit: cfg.MaxDelay, factor: cfg.Multiplier, jitter: jitter}
}

func (b *backoff) next() time.Duration {
	cur := b.d
	b.d = min(time.Duration(float64(b.d)*b.factor), b.limit)
	half := cur / 2
	return half + time.Duration(b.jitter()*float64(half))
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retryable reports whether a failed query is worth repeating: rate limits,
// transient upstream errors, 429 and 5xx statuses, and connection failures.
// Cancellation never is.
func Retryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case internalerrors.HasCode(err, internalerrors.ErrRateLimited), internalerrors.HasCode(err, internalerrors.ErrTransient):
		return true
	}
	if status, ok := StatusCode(err); ok {
		return status == 429 || status/100 == 5
	}
	return IsNetworkError(err)
}

var connErrnos = []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT, syscall.EPIPE}

// IsNetworkError matches net.Error values and the socket errnos seen when a
// peer drops the connection.
func IsNetworkError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	for _, errno := range connErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// StatusCode reports the HTTP status of the first error in the chain that
// exposes one under any of the accessor names the SDKs use.
func StatusCode(err error) (int, bool) {
	for ; err != nil; err = errors.Unwrap(err) {
		switch e := err.(type) {
		case interface{ StatusCode() int }:
			return e.StatusCode(), true
		case interface{ HTTPStatusCode() int }:
			return e.HTTPStatusCode(), true
		case interface{ GetStatusCode() int }:
			return e.GetStatusCode(), true
		}
	}
	return 0, false
}
