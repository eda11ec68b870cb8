package textgen

import (
	"context"
	"fmt"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAISystemPrompt = "You are a film production assistant. Reply with the requested text only, without preamble."

type OpenAI struct {
	completeFn func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAI{
		completeFn: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			return client.Chat.Completions.New(ctx, params)
		},
	}
}

func (o *OpenAI) GenerateText(ctx context.Context, prompt, modelID string) (string, error) {
	if o == nil || o.completeFn == nil {
		return "", internalerrors.New(internalerrors.ErrConfiguration, "openai generator is not configured", nil)
	}
	resp, err := o.completeFn(ctx, openai.ChatCompletionNewParams{
		Model: modelID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openAISystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", emptyResponse("openai")
	}
	out := clean(resp.Choices[0].Message.Content)
	if out == "" {
		return "", emptyResponse("openai")
	}
	return out, nil
}
