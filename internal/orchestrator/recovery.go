package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jimeng-relay/storyvideo/internal/registry"
)

type RecoveryDecision string

const (
	DecisionRetry                RecoveryDecision = "retry"
	DecisionRetryWithoutAssets   RecoveryDecision = "retryWithoutAssets"
	DecisionFallbackToStoryboard RecoveryDecision = "storyboard"
	DecisionCancel               RecoveryDecision = "cancel"
	// DecisionPropagate hands the error straight back to the caller. A
	// decision maker cannot choose it.
	DecisionPropagate RecoveryDecision = "propagate"
)

// ParseDecision accepts the four caller-facing choices, case-insensitively.
func ParseDecision(s string) (RecoveryDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retry":
		return DecisionRetry, true
	case "retrywithoutassets", "retry-without-assets", "retry_without_assets":
		return DecisionRetryWithoutAssets, true
	case "storyboard", "fallback":
		return DecisionFallbackToStoryboard, true
	case "cancel":
		return DecisionCancel, true
	}
	return "", false
}

// DecisionMaker is the optional external recovery callback. It is invoked at
// most once per failure.
type DecisionMaker func(ctx context.Context, message string, hasAssets bool) RecoveryDecision

type DecisionSource string

const (
	SourceAutomatic     DecisionSource = "automatic"
	SourceDecisionMaker DecisionSource = "decision_maker"
)

type Failure struct {
	Err       error
	HasAssets bool
	Model     registry.ModelConfig
}

type Decision struct {
	Action    RecoveryDecision
	NextModel registry.ModelConfig
	Kind      Kind
	Source    DecisionSource
}

type Policy struct {
	registry      *registry.Registry
	available     func(registry.ModelConfig) bool
	decisionMaker DecisionMaker
	logger        *slog.Logger
}

func NewPolicy(reg *registry.Registry, available func(registry.ModelConfig) bool, dm DecisionMaker, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{registry: reg, available: available, decisionMaker: dm, logger: logger}
}

func (p *Policy) HasDecisionMaker() bool {
	return p.decisionMaker != nil
}

// Decide applies the recovery table to one failure.
func (p *Policy) Decide(ctx context.Context, f Failure) Decision {
	kind := Classify(f.Err)
	d := Decision{Kind: kind, Source: SourceAutomatic, NextModel: f.Model}

	if ctx.Err() != nil || kind == KindCancelled {
		d.Action = DecisionCancel
		return d
	}
	if kind == KindConfiguration {
		d.Action = DecisionPropagate
		return d
	}

	if p.decisionMaker != nil {
		choice := p.decisionMaker(ctx, f.Err.Error(), f.HasAssets)
		switch choice {
		case DecisionRetry, DecisionRetryWithoutAssets, DecisionFallbackToStoryboard, DecisionCancel:
			d.Action = choice
			d.Source = SourceDecisionMaker
			return d
		}
		p.logger.WarnContext(ctx, "decision maker returned an unknown choice, using automatic policy", "choice", string(choice))
	}

	switch {
	case kind == KindAsset && f.HasAssets:
		d.Action = DecisionRetryWithoutAssets
		return d
	case kind == KindPolicy:
		// The same prompt would be refused again on any model.
		d.Action = DecisionFallbackToStoryboard
		return d
	}

	if next, ok := p.registry.Next(f.Model.Version, p.available); ok {
		d.Action = DecisionRetry
		d.NextModel = next
		return d
	}
	d.Action = DecisionFallbackToStoryboard
	return d
}
