package config

// ModelPreset describes the default models for a provider.
type ModelPreset struct {
	Model      string
	JudgeModel string
}

// modelPresets maps each provider to its default model choices. The judge
// model is deliberately cheaper than the generation model since judge calls
// dominate call volume.
var modelPresets = map[ProviderType]ModelPreset{
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", JudgeModel: "claude-haiku-4-5-20251001"},
	ProviderOpenAI:    {Model: "gpt-4o", JudgeModel: "gpt-4o-mini"},
	ProviderOllama:    {Model: "llama3", JudgeModel: "llama3"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             modelPresets[ProviderAnthropic].Model,
		JudgeModel:        modelPresets[ProviderAnthropic].JudgeModel,
		Database:          ".kbevolve/kbevolve.db",
		RequestsPerMinute: 30,
		MaxRetries:        3,
		Evolution: EvolutionConfig{
			BadFeedbackThreshold: 3,
			MinWinMargin:         0.10,
			MaxConcurrentJobs:    2,
			MaxSampleQuestions:   5,
			AutoApply:            true,
			Temperature:          0.7,
		},
		Ledger: LedgerConfig{
			DeltaUp:   0.05,
			DeltaDown: 0.10,
		},
		SelfEvolution: SelfEvolutionConfig{
			QuestionCount:      6,
			EasyQuestions:      2,
			MediumQuestions:    2,
			HardQuestions:      2,
			QualityFloor:       3.5,
			MinRuleLift:        0.5,
			MinImprovementRate: 0.20,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8844,
		},
	}
}

// GetPreset returns the default models for the given provider, falling back
// to the Anthropic preset for unknown providers.
func GetPreset(provider ProviderType) ModelPreset {
	if preset, ok := modelPresets[provider]; ok {
		return preset
	}
	return modelPresets[ProviderAnthropic]
}
