// Package orchestrator turns a prompt and optional reference image into a
// finished video, driving the remote long-running operation and recovering
// from failures through a bounded model-downgrade ladder that ends in a
// textual storyboard.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/logging"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/prompt"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/retry"
	"github.com/jimeng-relay/storyvideo/internal/storyboard"
	"github.com/jimeng-relay/storyvideo/internal/textgen"
	"github.com/jimeng-relay/storyvideo/internal/usage"
	"github.com/jimeng-relay/storyvideo/internal/video"
)

const DefaultMaxWait = 6 * time.Minute

type ArtifactKind string

const (
	ArtifactVideo      ArtifactKind = "video"
	ArtifactStoryboard ArtifactKind = "storyboard"
)

type Result struct {
	JobID       string       `json:"jobId"`
	ArtifactURI string       `json:"artifactUri"`
	Kind        ArtifactKind `json:"kind"`
	Model       string       `json:"model"`
	Attempts    int          `json:"attempts"`
}

type Config struct {
	Registry *registry.Registry
	Router   video.Router

	// Text serves both prompt rewriting and storyboard fallback. It may be
	// nil.
	Text         textgen.Generator
	TextProvider string
	TextModel    string

	DecisionMaker DecisionMaker
	Accountant    *usage.Accountant
	Observers     []Observer

	DefaultModel string
	PollInterval time.Duration
	MaxWait      time.Duration
	PollRetry    *retry.Config

	// TokenCounter defaults to a tiktoken-backed counter.
	TokenCounter func(text, model string) int
	Logger       *slog.Logger
	Now          func() time.Time
}

type Orchestrator struct {
	registry     *registry.Registry
	router       video.Router
	submitter    *Submitter
	poller       *Poller
	policy       *Policy
	storyboard   *storyboard.Generator
	accountant   *usage.Accountant
	observers    []Observer
	defaultModel string
	textProvider string
	textModel    string
	countTokens  func(text, model string) int
	logger       *slog.Logger
	now          func() time.Time
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "model registry is required", nil)
	}
	if len(cfg.Router) == 0 {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "at least one video backend is required", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultModel, err := pickDefaultModel(cfg.Registry, cfg.Router, cfg.DefaultModel, logger)
	if err != nil {
		return nil, err
	}

	pollRetry := retry.DefaultConfig
	if cfg.PollRetry != nil {
		pollRetry = *cfg.PollRetry
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	accountant := cfg.Accountant
	if accountant == nil {
		accountant = usage.NewAccountant(usage.Config{Logger: logger})
	}
	countTokens := cfg.TokenCounter
	if countTokens == nil {
		countTokens = usage.NewTokenCounter().Count
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Orchestrator{
		registry:     cfg.Registry,
		router:       cfg.Router,
		submitter:    NewSubmitter(prompt.NewOptimizer(cfg.Text, cfg.TextModel, logger), cfg.Router, logger),
		poller:       &Poller{Interval: interval, MaxWait: maxWait, Retry: pollRetry, Logger: logger},
		policy:       NewPolicy(cfg.Registry, cfg.Router.Available, cfg.DecisionMaker, logger),
		storyboard:   storyboard.NewGenerator(cfg.Text, cfg.TextModel, logger),
		accountant:   accountant,
		observers:    cfg.Observers,
		defaultModel: defaultModel,
		textProvider: cfg.TextProvider,
		textModel:    cfg.TextModel,
		countTokens:  countTokens,
		logger:       logger,
		now:          now,
	}, nil
}

// pickDefaultModel resolves the model used when a request names none. A
// configured default whose provider has no backend gives way to the highest
// ladder entry that one of the configured backends can serve.
func pickDefaultModel(reg *registry.Registry, router video.Router, configured string, logger *slog.Logger) (string, error) {
	if configured != "" {
		m, err := reg.Get(configured)
		if err != nil {
			return "", err
		}
		if router.Available(m) {
			return m.Version, nil
		}
	}
	m, ok := reg.First(router.Available)
	if !ok {
		return "", internalerrors.New(internalerrors.ErrConfiguration, "no configured video backend serves any registered model", nil)
	}
	if configured != "" {
		logger.Warn("default model has no configured backend", "configured", configured, "using", m.Version)
	}
	return m.Version, nil
}

func (o *Orchestrator) Accountant() *usage.Accountant {
	return o.accountant
}

func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// MaxAttempts bounds submissions per job: one per ladder step plus one for a
// retry without assets.
func (o *Orchestrator) MaxAttempts() int {
	return o.registry.Len() + 1
}

// GenerateVideo runs one job to a terminal outcome. The returned artifact is
// either a playable video URI or a storyboard data URI. Errors are coded:
// CANCELLED for cancellation, CONFIGURATION_ERROR for bad models, anything
// else only when the storyboard fallback also failed.
func (o *Orchestrator) GenerateVideo(ctx context.Context, req GenerationRequest) (Result, error) {
	jobID := "job_" + uuid.NewString()
	ctx = logging.WithJobID(ctx, jobID)

	res, err := o.run(ctx, jobID, req)
	res.JobID = jobID
	for _, obs := range o.observers {
		obs.JobFinished(ctx, Outcome{JobID: jobID, Request: req, Result: res, Err: err})
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, jobID string, req GenerationRequest) (Result, error) {
	version := req.ModelVersion
	if version == "" {
		version = o.defaultModel
	}
	model, err := o.registry.Get(version)
	if err != nil {
		return Result{}, err
	}
	if !o.router.Available(model) {
		_, err := o.router.For(model)
		return Result{}, err
	}

	current := req.WithModel(model.Version)
	maxAttempts := o.MaxAttempts()
	o.logger.InfoContext(ctx, "video job started", "model", model.Version, "has_assets", current.HasAssets(), "max_attempts", maxAttempts)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Model: model.Version, Attempts: attempt - 1}, cancelledError(err)
		}

		started := o.now()
		sub, err := o.submitter.Submit(ctx, current, model)
		polls := 0
		var uri string
		if err == nil {
			uri, polls, err = o.poller.Wait(ctx, sub.Backend, sub.Handle)
		}

		report := AttemptReport{
			JobID:         jobID,
			AttemptNumber: attempt,
			Model:         model,
			HasAssets:     current.HasAssets(),
			PollCount:     polls,
			StartedAt:     started,
			Err:           err,
		}
		if sub.Handle != nil {
			report.OperationName = sub.Handle.Name
		}

		if err == nil {
			report.Latency = o.now().Sub(started)
			o.notifyAttempt(ctx, report)
			o.accountant.Record(ctx, usage.Entry{
				JobID:           jobID,
				Provider:        string(model.Provider),
				Model:           model.Version,
				Outcome:         models.OutcomeVideo,
				EstimatedTokens: o.countTokens(sub.Request.Prompt, model.RemoteModelID),
				EstimatedCost:   model.EstimatedCost(sub.Request.DurationSeconds),
				UserID:          req.UserID,
				ProjectID:       req.ProjectID,
			})
			o.logger.InfoContext(ctx, "video job succeeded", "model", model.Version, "attempt", attempt, "polls", polls)
			return Result{ArtifactURI: uri, Kind: ArtifactVideo, Model: model.Version, Attempts: attempt}, nil
		}

		lastErr = err
		decision := o.policy.Decide(ctx, Failure{Err: err, HasAssets: current.HasAssets(), Model: model})
		report.Latency = o.now().Sub(started)
		report.Kind = decision.Kind
		report.Decision = decision.Action
		o.notifyAttempt(ctx, report)
		o.logAttemptFailure(ctx, report, decision)

		switch decision.Action {
		case DecisionCancel:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{Model: model.Version, Attempts: attempt}, cancelledError(ctxErr)
			}
			return Result{Model: model.Version, Attempts: attempt}, internalerrors.New(internalerrors.ErrCancelled, "job cancelled after failure", err)
		case DecisionPropagate:
			return Result{Model: model.Version, Attempts: attempt}, err
		case DecisionFallbackToStoryboard:
			return o.fallback(ctx, jobID, req, model, attempt, err)
		case DecisionRetryWithoutAssets:
			current = current.WithoutAssets()
		case DecisionRetry:
			model = decision.NextModel
			current = current.WithModel(model.Version)
		}
	}

	o.logger.WarnContext(ctx, "attempt budget exhausted, falling back to storyboard", "max_attempts", maxAttempts)
	return o.fallback(ctx, jobID, req, model, maxAttempts, lastErr)
}

func (o *Orchestrator) fallback(ctx context.Context, jobID string, req GenerationRequest, model registry.ModelConfig, attempts int, cause error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Model: model.Version, Attempts: attempts}, cancelledError(err)
	}

	sb := o.storyboard.Generate(ctx, req.RawPrompt, req.AspectRatio, durationFor(req, model))
	if sb.TextErr != nil {
		if err := ctx.Err(); err != nil {
			return Result{Model: model.Version, Attempts: attempts}, cancelledError(err)
		}
		if !o.policy.HasDecisionMaker() {
			o.accountant.Record(ctx, usage.Entry{
				JobID:     jobID,
				Provider:  string(model.Provider),
				Model:     model.Version,
				Outcome:   models.OutcomeFailed,
				UserID:    req.UserID,
				ProjectID: req.ProjectID,
			})
			return Result{Model: model.Version, Attempts: attempts}, internalerrors.New(
				internalerrors.ErrUnknown,
				"video generation failed and storyboard fallback is unavailable",
				errors.Join(cause, sb.TextErr),
			)
		}
	}

	tokens := 0
	if sb.TextErr == nil {
		tokens = o.countTokens(sb.Instruction, o.textModel) + o.countTokens(sb.Artifact.StoryboardText, o.textModel)
	}
	o.accountant.Record(ctx, usage.Entry{
		JobID:           jobID,
		Provider:        o.textProvider,
		Model:           o.storyboard.ModelID(),
		Outcome:         models.OutcomeStoryboard,
		EstimatedTokens: tokens,
		EstimatedCost:   usage.EstimateTextCost(tokens),
		UserID:          req.UserID,
		ProjectID:       req.ProjectID,
	})
	o.logger.InfoContext(ctx, "video job fell back to storyboard", "model", model.Version, "attempts", attempts, "cause", errString(cause))
	return Result{ArtifactURI: sb.URI, Kind: ArtifactStoryboard, Model: model.Version, Attempts: attempts}, nil
}

func (o *Orchestrator) notifyAttempt(ctx context.Context, report AttemptReport) {
	for _, obs := range o.observers {
		obs.AttemptFinished(ctx, report)
	}
}

func (o *Orchestrator) logAttemptFailure(ctx context.Context, report AttemptReport, d Decision) {
	attrs := []any{
		"attempt", report.AttemptNumber,
		"model", report.Model.Version,
		"classification", string(d.Kind),
		"decision", string(d.Action),
		"decision_source", string(d.Source),
		"error", report.Err,
	}
	if d.Action == DecisionRetry {
		attrs = append(attrs, "next_model", d.NextModel.Version)
	}
	if d.Kind == KindUnknown {
		o.logger.WarnContext(ctx, "video attempt failed with unclassified error", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "video attempt failed", attrs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
