package cmd

import (
	"fmt"

	"github.com/evolvekit/kb-evolve/internal/config"
	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/feedback"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/llm"
	"github.com/evolvekit/kb-evolve/internal/rules"
	"github.com/evolvekit/kb-evolve/internal/selfevolve"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `kbevolve init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// createProvider builds the configured LLM provider wrapped with rate
// limiting and bounded retries for transient failures.
func createProvider(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RequestsPerMinute)
	}
	return llm.NewRetryProvider(provider, cfg.MaxRetries), nil
}

// engine bundles the stores and pipeline components every command wires up
// the same way.
type engine struct {
	docs         *knowledge.Store
	signals      *feedback.Store
	ruleStore    *rules.Store
	ledger       *rules.Ledger
	recorder     *feedback.Recorder
	jobs         *evolution.Store
	selfStore    *selfevolve.Store
	judge        *evolution.Judge
	orchestrator *evolution.Orchestrator
	selfRunner   *selfevolve.Runner
}

// buildEngine assembles the full pipeline on top of an open database.
func buildEngine(cfg *config.Config, database *db.DB, provider llm.Provider) *engine {
	docs := knowledge.NewStore(database)
	signals := feedback.NewStore(database)
	ruleStore := rules.NewStore(database)
	ledger := rules.NewLedger(ruleStore, cfg.Ledger.DeltaUp, cfg.Ledger.DeltaDown)
	jobs := evolution.NewStore(database)

	judgeModel := cfg.JudgeModel
	if judgeModel == "" {
		judgeModel = cfg.Model
	}

	generator := evolution.NewGenerator(provider, cfg.Model, cfg.Evolution.Temperature, cfg.Evolution.MaxConcurrentJobs*2)
	judge := evolution.NewJudge(provider, judgeModel, cfg.Evolution.MaxConcurrentJobs*2)

	orchestrator := evolution.NewOrchestrator(jobs, docs, signals, generator, judge, evolution.Options{
		BadFeedbackThreshold: cfg.Evolution.BadFeedbackThreshold,
		MinWinMargin:         cfg.Evolution.MinWinMargin,
		MaxConcurrentJobs:    cfg.Evolution.MaxConcurrentJobs,
		MaxSampleQuestions:   cfg.Evolution.MaxSampleQuestions,
		AutoApply:            cfg.Evolution.AutoApply,
	})

	selfStore := selfevolve.NewStore(database)
	selfRunner := selfevolve.NewRunner(provider, cfg.Model, judge, docs, ruleStore, selfStore, selfevolve.Options{
		QuestionCount: cfg.SelfEvolution.QuestionCount,
		DifficultyMix: map[selfevolve.Difficulty]int{
			selfevolve.DifficultyEasy:   cfg.SelfEvolution.EasyQuestions,
			selfevolve.DifficultyMedium: cfg.SelfEvolution.MediumQuestions,
			selfevolve.DifficultyHard:   cfg.SelfEvolution.HardQuestions,
		},
		QualityFloor:       cfg.SelfEvolution.QualityFloor,
		MinRuleLift:        cfg.SelfEvolution.MinRuleLift,
		MinImprovementRate: cfg.SelfEvolution.MinImprovementRate,
	})

	return &engine{
		docs:         docs,
		signals:      signals,
		ruleStore:    ruleStore,
		ledger:       ledger,
		recorder:     feedback.NewRecorder(signals, docs, ledger),
		jobs:         jobs,
		selfStore:    selfStore,
		judge:        judge,
		orchestrator: orchestrator,
		selfRunner:   selfRunner,
	}
}
