package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (KBEVOLVE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: KBEVOLVE_PROVIDER -> provider, etc.
	if err := k.Load(env.Provider("KBEVOLVE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "KBEVOLVE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be non-negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}

	if c.Evolution.BadFeedbackThreshold < 1 {
		return fmt.Errorf("evolution.bad_feedback_threshold must be at least 1")
	}
	if c.Evolution.MinWinMargin < 0 || c.Evolution.MinWinMargin > 0.5 {
		return fmt.Errorf("evolution.min_win_margin must be between 0 and 0.5")
	}
	if c.Evolution.MaxConcurrentJobs < 1 {
		return fmt.Errorf("evolution.max_concurrent_jobs must be at least 1")
	}

	if c.Ledger.DeltaUp <= 0 || c.Ledger.DeltaDown <= 0 {
		return fmt.Errorf("ledger deltas must be positive")
	}
	if c.Ledger.DeltaDown <= c.Ledger.DeltaUp {
		return fmt.Errorf("ledger.delta_down must exceed ledger.delta_up")
	}

	if c.SelfEvolution.QualityFloor <= 0 || c.SelfEvolution.QualityFloor > 5 {
		return fmt.Errorf("self_evolution.quality_floor must be between 0 and 5")
	}
	if c.SelfEvolution.MinImprovementRate <= 0 {
		return fmt.Errorf("self_evolution.min_improvement_rate must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
