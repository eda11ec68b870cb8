package video

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/repository"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was ready.
const StatusClientClosedRequest = 499

const maxBodyBytes = 64 << 20

type videoService interface {
	GenerateVideo(ctx context.Context, req orchestrator.GenerationRequest) (orchestrator.Result, error)
}

type Options struct {
	Registry *registry.Registry
	// Usage returns the in-process usage log.
	Usage func() []models.UsageRecord
	// Attempts is nil when the process runs without a database.
	Attempts repository.JobAttemptRepository
	Logger   *slog.Logger
}

type Handler struct {
	service  videoService
	registry *registry.Registry
	usage    func() []models.UsageRecord
	attempts repository.JobAttemptRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(svc videoService, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  svc,
		registry: opts.Registry,
		usage:    opts.Usage,
		attempts: opts.Attempts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/videos", h.createVideo)
		r.Get("/models", h.listModels)
		r.Get("/usage", h.listUsage)
		r.Get("/jobs/{id}/attempts", h.listAttempts)
	})
}

type createVideoRequest struct {
	Prompt          string   `json:"prompt" validate:"required,max=8000"`
	AspectRatio     string   `json:"aspectRatio" validate:"omitempty,max=16"`
	Model           string   `json:"model" validate:"omitempty,max=128"`
	DurationSeconds int      `json:"durationSeconds" validate:"gte=0,lte=60"`
	Resolution      string   `json:"resolution" validate:"omitempty,oneof=480p 720p 1080p 4k"`
	ReferenceAssets []string `json:"referenceAssets" validate:"omitempty,max=4,dive,required,max=28000000"`
	UserID          string   `json:"userId" validate:"omitempty,max=128"`
	ProjectID       string   `json:"projectId" validate:"omitempty,max=128"`
}

func (req createVideoRequest) toGenerationRequest() orchestrator.GenerationRequest {
	return orchestrator.GenerationRequest{
		RawPrompt:          strings.TrimSpace(req.Prompt),
		AspectRatio:        strings.TrimSpace(req.AspectRatio),
		DurationOverride:   req.DurationSeconds,
		ResolutionOverride: strings.TrimSpace(req.Resolution),
		ReferenceAssets:    req.ReferenceAssets,
		ModelVersion:       strings.TrimSpace(req.Model),
		UserID:             req.UserID,
		ProjectID:          req.ProjectID,
	}
}

func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req createVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, internalerrors.New(internalerrors.ErrValidationFailed, "invalid request body", err), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, internalerrors.New(internalerrors.ErrValidationFailed, validationMessage(err), nil), http.StatusBadRequest)
		return
	}

	// The request context is the job's cancellation token: a client that
	// disconnects cancels the running job.
	res, err := h.service.GenerateVideo(r.Context(), req.toGenerationRequest())
	if err != nil {
		status := statusFor(err)
		if status == StatusClientClosedRequest {
			h.logger.InfoContext(r.Context(), "video job cancelled by client", "error", err.Error())
		} else {
			h.logger.ErrorContext(r.Context(), "video job failed", "error", err.Error(), "status", status)
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []registry.ModelConfig{}})
		return
	}
	versions := h.registry.ListVersions()
	items := make([]registry.ModelConfig, 0, len(versions))
	for _, v := range versions {
		m, err := h.registry.Get(v)
		if err != nil {
			continue
		}
		items = append(items, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listUsage(w http.ResponseWriter, r *http.Request) {
	var records []models.UsageRecord
	if h.usage != nil {
		records = h.usage()
	}

	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	projectID := strings.TrimSpace(q.Get("projectId"))
	jobID := strings.TrimSpace(q.Get("jobId"))

	items := make([]models.UsageRecord, 0, len(records))
	var total float64
	for _, rec := range records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		if projectID != "" && rec.ProjectID != projectID {
			continue
		}
		if jobID != "" && rec.JobID != jobID {
			continue
		}
		items = append(items, rec)
		total += rec.EstimatedCost
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":              items,
		"totalEstimatedCost": total,
	})
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if h.attempts == nil || jobID == "" {
		writeError(w, internalerrors.New(internalerrors.ErrValidationFailed, "job attempts not found", nil), http.StatusNotFound)
		return
	}

	attempts, err := h.attempts.ListByJobID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, internalerrors.New(internalerrors.ErrValidationFailed, "job attempts not found", err), http.StatusNotFound)
			return
		}
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": jobID, "items": attempts})
}

func statusFor(err error) int {
	switch {
	case internalerrors.IsCancelled(err):
		return StatusClientClosedRequest
	case internalerrors.IsConfiguration(err),
		internalerrors.HasCode(err, internalerrors.ErrValidationFailed):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "max", "lte":
		return field + " must be at most " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid (" + fe.Tag() + ")"
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, err error, status int) {
	code := internalerrors.GetCode(err)
	if code == "" {
		code = internalerrors.ErrUnknown
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}
