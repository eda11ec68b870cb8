// Package video defines the vendor-neutral long-running video operation that
// every backend (Veo, Jimeng) maps onto.
package video

import (
	"context"
	"fmt"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/registry"
)

const (
	PersonGenerationAllowAdult = "allow_adult"
	PersonGenerationDontAllow  = "dont_allow"
)

type Image struct {
	Bytes    []byte
	MIMEType string
}

type Request struct {
	Model            string
	Prompt           string
	AspectRatio      string
	DurationSeconds  int
	Resolution       string
	PersonGeneration string
	// GenerateAudio is left nil to keep the model default.
	GenerateAudio *bool
	Image         *Image
}

func (r Request) HasImage() bool {
	return r.Image != nil && len(r.Image.Bytes) > 0
}

type Video struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
}

type GeneratedVideo struct {
	Video *Video `json:"video,omitempty"`
}

type Response struct {
	GeneratedVideos []GeneratedVideo `json:"generatedVideos"`
}

// ErrorDetail describes a terminal operation failure. Kind is set when the
// backend already knows which failure class the provider code belongs to.
type ErrorDetail struct {
	Code    int                 `json:"code,omitempty"`
	Kind    internalerrors.Code `json:"kind,omitempty"`
	Message string              `json:"message"`
}

func (e *ErrorDetail) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("operation failed (code=%d): %s", e.Code, e.Message)
	}
	return "operation failed: " + e.Message
}

// OperationHandle is an opaque remote job reference. Response is set only when
// Done; ErrorDetail only on terminal failure.
type OperationHandle struct {
	Name        string       `json:"name"`
	Done        bool         `json:"done"`
	Response    *Response    `json:"response,omitempty"`
	ErrorDetail *ErrorDetail `json:"error,omitempty"`
}

// ArtifactURI returns the first generated video URI, or "".
func (h *OperationHandle) ArtifactURI() string {
	if h == nil || h.Response == nil {
		return ""
	}
	for _, g := range h.Response.GeneratedVideos {
		if g.Video != nil && strings.TrimSpace(g.Video.URI) != "" {
			return strings.TrimSpace(g.Video.URI)
		}
	}
	return ""
}

type Backend interface {
	Submit(ctx context.Context, req Request) (*OperationHandle, error)
	// Poll re-queries the remote operation. It is idempotent.
	Poll(ctx context.Context, handle *OperationHandle) (*OperationHandle, error)
}

// Router selects the backend for a model's provider.
type Router map[registry.Provider]Backend

func (r Router) For(model registry.ModelConfig) (Backend, error) {
	b, ok := r[model.Provider]
	if !ok || b == nil {
		return nil, internalerrors.New(
			internalerrors.ErrConfiguration,
			fmt.Sprintf("no backend configured for provider %q (model %s)", model.Provider, model.Version),
			nil,
		)
	}
	return b, nil
}

// Available reports whether model can be served by this router.
func (r Router) Available(model registry.ModelConfig) bool {
	b, ok := r[model.Provider]
	return ok && b != nil
}
