package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// Config is the top-level kb-evolve configuration, corresponding to
// .kbevolve.yml.
type Config struct {
	Provider          ProviderType        `yaml:"provider" koanf:"provider"`
	Model             string              `yaml:"model" koanf:"model"`
	JudgeModel        string              `yaml:"judge_model" koanf:"judge_model"`
	Database          string              `yaml:"database" koanf:"database"`
	RequestsPerMinute int                 `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	MaxRetries        int                 `yaml:"max_retries" koanf:"max_retries"`
	Evolution         EvolutionConfig     `yaml:"evolution" koanf:"evolution"`
	Ledger            LedgerConfig        `yaml:"ledger" koanf:"ledger"`
	SelfEvolution     SelfEvolutionConfig `yaml:"self_evolution" koanf:"self_evolution"`
	Server            ServerConfig        `yaml:"server" koanf:"server"`
}

// EvolutionConfig tunes the batch evolution pipeline.
type EvolutionConfig struct {
	BadFeedbackThreshold int     `yaml:"bad_feedback_threshold" koanf:"bad_feedback_threshold"`
	MinWinMargin         float64 `yaml:"min_win_margin" koanf:"min_win_margin"`
	MaxConcurrentJobs    int     `yaml:"max_concurrent_jobs" koanf:"max_concurrent_jobs"`
	MaxSampleQuestions   int     `yaml:"max_sample_questions" koanf:"max_sample_questions"`
	AutoApply            bool    `yaml:"auto_apply" koanf:"auto_apply"`
	Temperature          float64 `yaml:"temperature" koanf:"temperature"`
}

// LedgerConfig tunes the online rule-score updates.
type LedgerConfig struct {
	DeltaUp   float64 `yaml:"delta_up" koanf:"delta_up"`
	DeltaDown float64 `yaml:"delta_down" koanf:"delta_down"`
}

// SelfEvolutionConfig tunes the synthetic-question improvement path.
type SelfEvolutionConfig struct {
	QuestionCount      int     `yaml:"question_count" koanf:"question_count"`
	EasyQuestions      int     `yaml:"easy_questions" koanf:"easy_questions"`
	MediumQuestions    int     `yaml:"medium_questions" koanf:"medium_questions"`
	HardQuestions      int     `yaml:"hard_questions" koanf:"hard_questions"`
	QualityFloor       float64 `yaml:"quality_floor" koanf:"quality_floor"`
	MinRuleLift        float64 `yaml:"min_rule_lift" koanf:"min_rule_lift"`
	MinImprovementRate float64 `yaml:"min_improvement_rate" koanf:"min_improvement_rate"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" koanf:"host"`
	Port int    `yaml:"port" koanf:"port"`
}
