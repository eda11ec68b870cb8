package registry

func price(v float64) *float64 { return &v }

// DefaultModels is the built-in ladder. Prices are estimates in USD per
// generated second and only feed usage display.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Version:                  "veo-3.0-generate-001",
			RemoteModelID:            "veo-3.0-generate-001",
			Provider:                 ProviderGoogle,
			MaxDurationSeconds:       8,
			MaxResolution:            "1080p",
			SupportedAspectRatios:    []string{"16:9", "9:16"},
			SupportsPersonGeneration: true,
			SupportsAudio:            true,
			MaxPromptTokens:          1024,
			PricingTier:              PricingPaid,
			CostPerSecond:            price(0.40),
		},
		{
			Version:                  "veo-3.0-fast-generate-001",
			RemoteModelID:            "veo-3.0-fast-generate-001",
			Provider:                 ProviderGoogle,
			MaxDurationSeconds:       8,
			MaxResolution:            "1080p",
			SupportedAspectRatios:    []string{"16:9", "9:16"},
			SupportsPersonGeneration: true,
			SupportsAudio:            true,
			MaxPromptTokens:          1024,
			PricingTier:              PricingPaid,
			CostPerSecond:            price(0.15),
		},
		{
			Version:                  "veo-2.0-generate-001",
			RemoteModelID:            "veo-2.0-generate-001",
			Provider:                 ProviderGoogle,
			MaxDurationSeconds:       8,
			MaxResolution:            "720p",
			SupportedAspectRatios:    []string{"16:9", "9:16"},
			SupportsPersonGeneration: true,
			SupportsAudio:            false,
			MaxPromptTokens:          1024,
			PricingTier:              PricingPaid,
			CostPerSecond:            price(0.35),
		},
		{
			Version:                  "jimeng-v30",
			RemoteModelID:            "jimeng_t2v_v30",
			Provider:                 ProviderVolcengine,
			MaxDurationSeconds:       10,
			MaxResolution:            "720p",
			SupportedAspectRatios:    []string{"16:9", "4:3", "1:1", "3:4", "9:16", "21:9"},
			SupportsPersonGeneration: true,
			SupportsAudio:            false,
			MaxPromptTokens:          200,
			PricingTier:              PricingPaid,
			CostPerSecond:            price(0.028),
		},
	}
}

// Default returns a registry over DefaultModels.
func Default() *Registry {
	r, err := New(DefaultModels()...)
	if err != nil {
		panic(err)
	}
	return r
}
