package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jimeng-relay/storyvideo/internal/asset"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/prompt"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/video"
)

type Submitter struct {
	optimizer *prompt.Optimizer
	router    video.Router
	logger    *slog.Logger
}

func NewSubmitter(optimizer *prompt.Optimizer, router video.Router, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{optimizer: optimizer, router: router, logger: logger}
}

// Submission is the outcome of one successful submit call.
type Submission struct {
	Handle        *video.OperationHandle
	Request       video.Request
	Backend       video.Backend
	AssetAttached bool
}

// Submit builds the vendor request for model and submits it once. Vendor
// errors are returned untouched.
func (s *Submitter) Submit(ctx context.Context, req GenerationRequest, model registry.ModelConfig) (Submission, error) {
	backend, err := s.router.For(model)
	if err != nil {
		return Submission{}, err
	}

	aspectRatio := req.AspectRatio
	if !model.SupportsAspectRatio(aspectRatio) {
		fallback := model.SupportedAspectRatios[0]
		s.logger.WarnContext(ctx, "aspect ratio not supported by model, using model default",
			"model", model.Version, "requested", aspectRatio, "used", fallback)
		aspectRatio = fallback
	}

	duration := durationFor(req, model)
	vreq := video.Request{
		Model:            model.RemoteModelID,
		Prompt:           s.optimizer.Optimize(ctx, req.RawPrompt, aspectRatio, model, duration),
		AspectRatio:      aspectRatio,
		DurationSeconds:  duration,
		Resolution:       resolutionFor(req.ResolutionOverride, model.MaxResolution),
		PersonGeneration: video.PersonGenerationDontAllow,
	}
	if model.SupportsPersonGeneration {
		vreq.PersonGeneration = video.PersonGenerationAllowAdult
	}

	attached := false
	if req.HasAssets() {
		res := asset.Validate(req.ReferenceAssets[0])
		if res.OK() {
			vreq.Image = &video.Image{Bytes: res.Asset.Bytes, MIMEType: res.Asset.MIMEType}
			attached = true
		} else {
			s.logger.WarnContext(ctx, "reference asset rejected, continuing without it",
				"reason", string(res.Reason), "detail", res.Detail)
		}
	}

	if err := ctx.Err(); err != nil {
		return Submission{}, cancelledError(err)
	}

	handle, err := backend.Submit(ctx, vreq)
	if err != nil {
		return Submission{}, err
	}
	if handle == nil || (handle.Name == "" && !handle.Done) {
		return Submission{}, internalerrors.New(internalerrors.ErrUnknown, "submission returned no operation handle", nil)
	}

	s.logger.InfoContext(ctx, "video job submitted",
		"model", model.Version,
		"operation", handle.Name,
		"duration_seconds", duration,
		"aspect_ratio", aspectRatio,
		"has_image", attached,
	)
	return Submission{Handle: handle, Request: vreq, Backend: backend, AssetAttached: attached}, nil
}

func durationFor(req GenerationRequest, model registry.ModelConfig) int {
	d := req.DurationOverride
	if d <= 0 || d > model.MaxDurationSeconds {
		d = model.MaxDurationSeconds
	}
	return d
}

// resolutionFor keeps a requested resolution only when it does not exceed the
// model's maximum.
func resolutionFor(requested, max string) string {
	if requested == "" {
		return max
	}
	r, rok := resolutionLines(requested)
	m, mok := resolutionLines(max)
	if !rok || (mok && r > m) {
		return max
	}
	return requested
}

func resolutionLines(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "p"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func cancelledError(cause error) error {
	return internalerrors.New(internalerrors.ErrCancelled, "job cancelled", cause)
}
