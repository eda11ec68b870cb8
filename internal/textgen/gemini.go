package textgen

import (
	"context"
	"fmt"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"google.golang.org/genai"
)

type Gemini struct {
	generateFn func(ctx context.Context, model, prompt string) (string, error)
}

func NewGemini(ctx context.Context, apiKey, baseURL string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "create gemini client", err)
	}

	return &Gemini{
		generateFn: func(ctx context.Context, model, prompt string) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

func (g *Gemini) GenerateText(ctx context.Context, prompt, modelID string) (string, error) {
	if g == nil || g.generateFn == nil {
		return "", internalerrors.New(internalerrors.ErrConfiguration, "gemini generator is not configured", nil)
	}
	out, err := g.generateFn(ctx, modelID, prompt)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	out = clean(out)
	if out == "" {
		return "", emptyResponse("gemini")
	}
	return out, nil
}
