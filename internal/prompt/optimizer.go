// Package prompt fits a user-authored prompt to one video model.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/textgen"
)

const charsPerToken = 4

// EstimateTokens approximates a token count as ceil(chars/4). It is a crude
// proxy, not a tokenizer, and matches what the vendors' budgets tolerate.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// Truncate cuts s to at most maxTokens*4 characters without splitting a rune.
func Truncate(s string, maxTokens int) string {
	limit := maxTokens * charsPerToken
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func FallbackTemplate(rawPrompt, aspectRatio string, durationSeconds int) string {
	return fmt.Sprintf("Create a %d-second video with %s aspect ratio: %s", durationSeconds, aspectRatio, rawPrompt)
}

type Optimizer struct {
	text    textgen.Generator
	modelID string
	logger  *slog.Logger
}

// NewOptimizer wires the rewrite collaborator. text may be nil, in which case
// every in-budget prompt takes the templated path.
func NewOptimizer(text textgen.Generator, modelID string, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{text: text, modelID: modelID, logger: logger}
}

// Optimize never fails. Over-budget prompts are truncated without calling the
// text collaborator; otherwise one rewrite is attempted and the fixed
// template is used if it fails.
func (o *Optimizer) Optimize(ctx context.Context, rawPrompt, aspectRatio string, model registry.ModelConfig, durationSeconds int) string {
	if EstimateTokens(rawPrompt) > model.MaxPromptTokens {
		out := Truncate(rawPrompt, model.MaxPromptTokens)
		o.logger.InfoContext(ctx, "prompt truncated to model budget",
			"model", model.Version,
			"max_prompt_tokens", model.MaxPromptTokens,
			"estimated_tokens", EstimateTokens(rawPrompt),
		)
		return out
	}

	fallback := Truncate(FallbackTemplate(rawPrompt, aspectRatio, durationSeconds), model.MaxPromptTokens)
	if o == nil || o.text == nil {
		return fallback
	}

	rewritten, err := o.text.GenerateText(ctx, rewriteInstruction(rawPrompt, aspectRatio, model, durationSeconds), o.modelID)
	if err != nil {
		o.logger.WarnContext(ctx, "prompt rewrite failed, using template", "model", model.Version, "error", err)
		return fallback
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return fallback
	}
	return Truncate(rewritten, model.MaxPromptTokens)
}

func rewriteInstruction(rawPrompt, aspectRatio string, model registry.ModelConfig, durationSeconds int) string {
	var b strings.Builder
	b.WriteString("Rewrite the following scene description into a production-grade prompt for the video model ")
	b.WriteString(model.RemoteModelID)
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Target: %d seconds, %s aspect ratio, up to %s.\n", durationSeconds, aspectRatio, model.MaxResolution)
	b.WriteString("Describe camera work (framing, movement, lens), lighting, color grading and pacing that fits the duration.\n")
	if !model.SupportsAudio {
		b.WriteString("The model produces silent video: avoid dialogue, narration, music cues or any story beat that depends on sound.\n")
	}
	if !model.SupportsPersonGeneration {
		b.WriteString("The model cannot depict people: describe the scene without human figures.\n")
	}
	fmt.Fprintf(&b, "Keep the result under %d words. Reply with the prompt only.\n\n", model.MaxPromptTokens*3/4)
	b.WriteString("Scene: ")
	b.WriteString(rawPrompt)
	return b.String()
}
