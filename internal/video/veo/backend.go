// Package veo drives Google Veo through the genai SDK's long-running
// GenerateVideos operation.
package veo

import (
	"context"
	"fmt"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/video"
	"google.golang.org/genai"
)

type Backend struct {
	generateVideosFn func(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	getOperationFn   func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

var _ video.Backend = (*Backend)(nil)

func New(ctx context.Context, apiKey, baseURL string) (*Backend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "gemini api key is required for veo", nil)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "create genai client", err)
	}

	return &Backend{
		generateVideosFn: func(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
			return client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
		},
		getOperationFn: func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
			return client.Operations.GetVideosOperation(ctx, op, nil)
		},
	}, nil
}

func (b *Backend) Submit(ctx context.Context, req video.Request) (*video.OperationHandle, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos:   1,
		AspectRatio:      req.AspectRatio,
		Resolution:       req.Resolution,
		PersonGeneration: req.PersonGeneration,
		GenerateAudio:    req.GenerateAudio,
	}
	if req.DurationSeconds > 0 {
		cfg.DurationSeconds = genai.Ptr(int32(req.DurationSeconds))
	}

	var image *genai.Image
	if req.HasImage() {
		image = &genai.Image{
			ImageBytes: req.Image.Bytes,
			MIMEType:   req.Image.MIMEType,
		}
	}

	op, err := b.generateVideosFn(ctx, req.Model, req.Prompt, image, cfg)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, internalerrors.New(internalerrors.ErrDecodeFailed, "generate videos returned no operation", nil)
	}
	return toHandle(op), nil
}

func (b *Backend) Poll(ctx context.Context, handle *video.OperationHandle) (*video.OperationHandle, error) {
	if handle == nil || handle.Name == "" {
		return nil, internalerrors.New(internalerrors.ErrValidationFailed, "operation name is required", nil)
	}
	op, err := b.getOperationFn(ctx, &genai.GenerateVideosOperation{Name: handle.Name})
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, internalerrors.New(internalerrors.ErrDecodeFailed, "get operation returned nothing", nil)
	}
	return toHandle(op), nil
}

func toHandle(op *genai.GenerateVideosOperation) *video.OperationHandle {
	h := &video.OperationHandle{Name: op.Name, Done: op.Done}
	if !op.Done {
		return h
	}
	if len(op.Error) > 0 {
		h.ErrorDetail = errorDetail(op.Error)
		return h
	}
	if op.Response == nil {
		return h
	}
	if op.Response.RAIMediaFilteredCount > 0 {
		reasons := "unspecified"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(op.Response.RAIMediaFilteredReasons, ", ")
		}
		h.ErrorDetail = &video.ErrorDetail{
			Message: fmt.Sprintf("video blocked by safety policy: %d video(s) filtered, reasons: %s", op.Response.RAIMediaFilteredCount, reasons),
		}
		return h
	}

	resp := &video.Response{}
	for _, g := range op.Response.GeneratedVideos {
		if g == nil || g.Video == nil {
			continue
		}
		resp.GeneratedVideos = append(resp.GeneratedVideos, video.GeneratedVideo{
			Video: &video.Video{URI: g.Video.URI, MIMEType: g.Video.MIMEType},
		})
	}
	h.Response = resp
	return h
}

func errorDetail(m map[string]any) *video.ErrorDetail {
	d := &video.ErrorDetail{}
	if msg, ok := m["message"].(string); ok {
		d.Message = msg
	}
	switch code := m["code"].(type) {
	case float64:
		d.Code = int(code)
	case int:
		d.Code = code
	case int32:
		d.Code = int(code)
	case int64:
		d.Code = int(code)
	}
	if d.Message == "" {
		d.Message = fmt.Sprintf("%v", m)
	}
	return d
}
