// Package textgen adapts vendor SDKs to the single synchronous text call the
// orchestrator needs for prompt rewriting and storyboard fallback.
package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/jimeng-relay/storyvideo/internal/config"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

type Generator interface {
	GenerateText(ctx context.Context, prompt, modelID string) (string, error)
}

// Func lets a plain function serve as a Generator.
type Func func(ctx context.Context, prompt, modelID string) (string, error)

func (f Func) GenerateText(ctx context.Context, prompt, modelID string) (string, error) {
	return f(ctx, prompt, modelID)
}

// New builds the generator selected by cfg.TextProvider. It returns a nil
// Generator and no error when the selected provider has no API key, so
// callers fall back to their templated paths.
func New(ctx context.Context, cfg config.Config) (Generator, error) {
	switch cfg.TextProvider {
	case config.TextProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case config.TextProviderGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, internalerrors.New(internalerrors.ErrConfiguration, fmt.Sprintf("unsupported text provider %q", cfg.TextProvider), nil)
	}
}

func emptyResponse(provider string) error {
	return internalerrors.New(internalerrors.ErrUnknown, provider+" returned an empty response", nil)
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
