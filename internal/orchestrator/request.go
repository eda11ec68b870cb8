package orchestrator

import "slices"

// GenerationRequest is immutable once submitted; recovery derives new values
// with WithoutAssets and WithModel instead of editing it in place.
type GenerationRequest struct {
	RawPrompt          string
	AspectRatio        string
	DurationOverride   int
	ResolutionOverride string
	// ReferenceAssets holds data-URI encoded images. Only the first is used.
	ReferenceAssets []string
	ModelVersion    string
	UserID          string
	ProjectID       string
}

func (r GenerationRequest) HasAssets() bool {
	return len(r.ReferenceAssets) > 0
}

func (r GenerationRequest) WithoutAssets() GenerationRequest {
	r.ReferenceAssets = nil
	return r
}

func (r GenerationRequest) WithModel(version string) GenerationRequest {
	r.ReferenceAssets = slices.Clone(r.ReferenceAssets)
	r.ModelVersion = version
	return r
}
