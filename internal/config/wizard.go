package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .kbevolve.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to kb-evolve! Let's configure your knowledge base.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"anthropic", "openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	preset := GetPreset(cfg.Provider)

	// 2. Generation model.
	modelPrompt := promptui.Prompt{
		Label:   "Model for candidate generation",
		Default: preset.Model,
	}
	if cfg.Model, err = modelPrompt.Run(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Judge model.
	judgePrompt := promptui.Prompt{
		Label:   "Model for pairwise judging",
		Default: preset.JudgeModel,
	}
	if cfg.JudgeModel, err = judgePrompt.Run(); err != nil {
		return nil, fmt.Errorf("judge model: %w", err)
	}

	// 4. Database path.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: cfg.Database,
	}
	if cfg.Database, err = dbPrompt.Run(); err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}

	// 5. Feedback threshold.
	thresholdPrompt := promptui.Prompt{
		Label:   "Bad-feedback count that triggers evolution",
		Default: strconv.Itoa(cfg.Evolution.BadFeedbackThreshold),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	thresholdStr, err := thresholdPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("feedback threshold: %w", err)
	}
	cfg.Evolution.BadFeedbackThreshold, _ = strconv.Atoi(thresholdStr)

	// 6. Auto-apply winners.
	applyPrompt := promptui.Prompt{
		Label:     "Automatically apply winning revisions",
		IsConfirm: true,
		Default:   "y",
	}
	if _, err := applyPrompt.Run(); err != nil {
		// promptui returns ErrAbort on "n".
		cfg.Evolution.AutoApply = false
	} else {
		cfg.Evolution.AutoApply = true
	}

	// Check for API key.
	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running kbevolve evolve.\n", envVar)
		}
	}

	// Save to .kbevolve.yml.
	configPath := ".kbevolve.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}
