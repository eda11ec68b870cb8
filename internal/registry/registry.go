// Package registry holds the static model capability table. Its order defines
// the automatic downgrade ladder: the first entry is the preferred model and
// the last one is the baseline.
package registry

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownModel is wrapped by every lookup failure.
var ErrUnknownModel = errors.New("unknown model")

type Provider string

const (
	ProviderGoogle     Provider = "google"
	ProviderVolcengine Provider = "volcengine"
)

type PricingTier string

const (
	PricingFree PricingTier = "free"
	PricingPaid PricingTier = "paid"
)

type ModelConfig struct {
	Version                  string      `yaml:"version" json:"version"`
	RemoteModelID            string      `yaml:"remote_model_id" json:"remoteModelId"`
	Provider                 Provider    `yaml:"provider" json:"provider"`
	MaxDurationSeconds       int         `yaml:"max_duration_seconds" json:"maxDurationSeconds"`
	MaxResolution            string      `yaml:"max_resolution" json:"maxResolution"`
	SupportedAspectRatios    []string    `yaml:"supported_aspect_ratios" json:"supportedAspectRatios"`
	SupportsPersonGeneration bool        `yaml:"supports_person_generation" json:"supportsPersonGeneration"`
	SupportsAudio            bool        `yaml:"supports_audio" json:"supportsAudio"`
	MaxPromptTokens          int         `yaml:"max_prompt_tokens" json:"maxPromptTokens"`
	PricingTier              PricingTier `yaml:"pricing_tier" json:"pricingTier"`
	CostPerSecond            *float64    `yaml:"cost_per_second,omitempty" json:"costPerSecond,omitempty"`
}

func (m ModelConfig) SupportsAspectRatio(ratio string) bool {
	return slices.Contains(m.SupportedAspectRatios, ratio)
}

// EstimatedCost returns the video cost for the given duration, or zero when
// the model carries no price.
func (m ModelConfig) EstimatedCost(durationSeconds int) float64 {
	if m.CostPerSecond == nil || durationSeconds <= 0 {
		return 0
	}
	return *m.CostPerSecond * float64(durationSeconds)
}

func (m ModelConfig) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(m.RemoteModelID) == "" {
		return fmt.Errorf("%s: remote_model_id is required", m.Version)
	}
	switch m.Provider {
	case ProviderGoogle, ProviderVolcengine:
	default:
		return fmt.Errorf("%s: invalid provider %q", m.Version, m.Provider)
	}
	if m.MaxDurationSeconds <= 0 {
		return fmt.Errorf("%s: max_duration_seconds must be positive", m.Version)
	}
	if len(m.SupportedAspectRatios) == 0 {
		return fmt.Errorf("%s: supported_aspect_ratios must not be empty", m.Version)
	}
	if m.MaxPromptTokens <= 0 {
		return fmt.Errorf("%s: max_prompt_tokens must be positive", m.Version)
	}
	switch m.PricingTier {
	case PricingFree, PricingPaid:
	default:
		return fmt.Errorf("%s: invalid pricing_tier %q", m.Version, m.PricingTier)
	}
	if m.CostPerSecond != nil && *m.CostPerSecond < 0 {
		return fmt.Errorf("%s: cost_per_second must not be negative", m.Version)
	}
	return nil
}

// Registry is read-only after construction and safe for concurrent reads.
type Registry struct {
	order  []string
	models map[string]ModelConfig
}

func New(models ...ModelConfig) (*Registry, error) {
	if len(models) == 0 {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "registry must contain at least one model", nil)
	}
	r := &Registry{models: make(map[string]ModelConfig, len(models))}
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return nil, internalerrors.New(internalerrors.ErrConfiguration, "invalid model config", err)
		}
		if _, dup := r.models[m.Version]; dup {
			return nil, internalerrors.New(internalerrors.ErrConfiguration, fmt.Sprintf("duplicate model version %q", m.Version), nil)
		}
		m.SupportedAspectRatios = slices.Clone(m.SupportedAspectRatios)
		r.models[m.Version] = m
		r.order = append(r.order, m.Version)
	}
	return r, nil
}

func (r *Registry) Get(version string) (ModelConfig, error) {
	m, ok := r.models[version]
	if !ok {
		return ModelConfig{}, internalerrors.New(
			internalerrors.ErrConfiguration,
			fmt.Sprintf("model %q is not registered", version),
			ErrUnknownModel,
		)
	}
	m.SupportedAspectRatios = slices.Clone(m.SupportedAspectRatios)
	return m, nil
}

// ListVersions returns the downgrade ladder, preferred model first.
func (r *Registry) ListVersions() []string {
	return slices.Clone(r.order)
}

// Next returns the first model below version in the ladder for which
// available reports true. A nil available accepts every model.
func (r *Registry) Next(version string, available func(ModelConfig) bool) (ModelConfig, bool) {
	idx := slices.Index(r.order, version)
	if idx < 0 {
		return ModelConfig{}, false
	}
	for _, v := range r.order[idx+1:] {
		m := r.models[v]
		if available == nil || available(m) {
			m.SupportedAspectRatios = slices.Clone(m.SupportedAspectRatios)
			return m, true
		}
	}
	return ModelConfig{}, false
}

// First returns the highest ladder entry for which available reports true.
func (r *Registry) First(available func(ModelConfig) bool) (ModelConfig, bool) {
	for _, v := range r.order {
		m := r.models[v]
		if available == nil || available(m) {
			m.SupportedAspectRatios = slices.Clone(m.SupportedAspectRatios)
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Len is the ladder length.
func (r *Registry) Len() int {
	return len(r.order)
}

type fileFormat struct {
	Models []ModelConfig `yaml:"models"`
}

// LoadFile reads a YAML registry of the form `models: [...]`. The file fully
// replaces the built-in table.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, fmt.Sprintf("read model registry %s", path), err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "decode model registry", err)
	}
	return New(f.Models...)
}
