package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/prompt"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/retry"
	"github.com/jimeng-relay/storyvideo/internal/textgen"
	"github.com/jimeng-relay/storyvideo/internal/usage"
	"github.com/jimeng-relay/storyvideo/internal/video"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	submitFn func(ctx context.Context, req video.Request) (*video.OperationHandle, error)
	pollFn   func(ctx context.Context, h *video.OperationHandle) (*video.OperationHandle, error)

	mu      sync.Mutex
	submits []video.Request
	polls   int
}

func (f *fakeBackend) Submit(ctx context.Context, req video.Request) (*video.OperationHandle, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	f.mu.Unlock()
	return f.submitFn(ctx, req)
}

func (f *fakeBackend) Poll(ctx context.Context, h *video.OperationHandle) (*video.OperationHandle, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	if f.pollFn == nil {
		return &video.OperationHandle{Name: h.Name}, nil
	}
	return f.pollFn(ctx, h)
}

func (f *fakeBackend) Submits() []video.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]video.Request(nil), f.submits...)
}

func (f *fakeBackend) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func doneHandle(name, uri string) *video.OperationHandle {
	return &video.OperationHandle{
		Name: name,
		Done: true,
		Response: &video.Response{GeneratedVideos: []video.GeneratedVideo{
			{Video: &video.Video{URI: uri, MIMEType: "video/mp4"}},
		}},
	}
}

// fakeText answers storyboard instructions with storyboardText and anything
// else with a rewritten prompt, counting both kinds of call.
type fakeText struct {
	storyboardText string
	storyboardErr  error
	rewrites       atomic.Int32
	storyboards    atomic.Int32
}

func (f *fakeText) GenerateText(_ context.Context, p, _ string) (string, error) {
	if strings.Contains(p, "storyboard") {
		f.storyboards.Add(1)
		return f.storyboardText, f.storyboardErr
	}
	f.rewrites.Add(1)
	return "cinematic wide shot, soft rain, slow dolly in", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func estimateCounter(text, _ string) int {
	return prompt.EstimateTokens(text)
}

type testOptions struct {
	backend       video.Backend
	text          textgen.Generator
	decisionMaker DecisionMaker
	pollInterval  time.Duration
	maxWait       time.Duration
	observers     []Observer
}

func newTestOrchestrator(t *testing.T, opts testOptions) (*Orchestrator, *usage.Accountant) {
	t.Helper()

	if opts.pollInterval == 0 {
		opts.pollInterval = time.Millisecond
	}
	if opts.maxWait == 0 {
		opts.maxWait = 5 * time.Second
	}
	acc := usage.NewAccountant(usage.Config{Logger: discardLogger()})
	o, err := New(Config{
		Registry:      registry.Default(),
		Router:        video.Router{registry.ProviderGoogle: opts.backend},
		Text:          opts.text,
		TextProvider:  "gemini",
		TextModel:     "gemini-2.5-flash",
		DecisionMaker: opts.decisionMaker,
		Accountant:    acc,
		Observers:     opts.observers,
		PollInterval:  opts.pollInterval,
		MaxWait:       opts.maxWait,
		PollRetry:     &retry.Config{MaxRetries: 0},
		TokenCounter:  estimateCounter,
		Logger:        discardLogger(),
	})
	require.NoError(t, err)
	return o, acc
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []AttemptReport
	outcomes []Outcome
}

func (r *recordingObserver) AttemptFinished(_ context.Context, report AttemptReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, report)
}

func (r *recordingObserver) JobFinished(_ context.Context, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
