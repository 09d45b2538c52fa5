package selfevolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/llm"
	"github.com/evolvekit/kb-evolve/internal/rules"
)

// Options control a self-evolution run.
type Options struct {
	// QuestionCount is how many synthetic questions to generate per run.
	QuestionCount int
	// DifficultyMix is the target question count per difficulty.
	DifficultyMix map[Difficulty]int
	// QualityFloor is the mean score below which a bare-document answer
	// marks the question as a weakness.
	QualityFloor float64
	// MinRuleLift is the minimum score improvement the enabled rule set
	// must deliver; below it, rules are diagnosed as ineffective.
	MinRuleLift float64
	// MinImprovementRate gates rule-candidate adoption by relative score
	// improvement over the bare document.
	MinImprovementRate float64
}

// Runner drives feedback-free improvement: synthetic questions probe the
// document, weak answers are diagnosed, and one targeted rule candidate per
// distinct weakness is evaluated and adopted if it helps enough.
type Runner struct {
	provider  llm.Provider
	model     string
	questions *QuestionGenerator
	judge     *evolution.Judge
	docs      *knowledge.Store
	ruleStore *rules.Store
	store     *Store
	opts      Options
}

// NewRunner creates a Runner.
func NewRunner(provider llm.Provider, model string, judge *evolution.Judge, docs *knowledge.Store, ruleStore *rules.Store, store *Store, opts Options) *Runner {
	if opts.QuestionCount < 1 {
		opts.QuestionCount = 6
	}
	if opts.QualityFloor <= 0 {
		opts.QualityFloor = 3.5
	}
	if opts.MinRuleLift <= 0 {
		opts.MinRuleLift = 0.5
	}
	if opts.MinImprovementRate <= 0 {
		opts.MinImprovementRate = 0.20
	}
	return &Runner{
		provider:  provider,
		model:     model,
		questions: NewQuestionGenerator(provider, model),
		judge:     judge,
		docs:      docs,
		ruleStore: ruleStore,
		store:     store,
		opts:      opts,
	}
}

// Run executes one self-evolution pass over a document.
func (r *Runner) Run(ctx context.Context, documentID string) (*Report, error) {
	content, err := r.docs.GetContent(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document content: %w", err)
	}

	questions, err := r.questions.Generate(ctx, documentID, content, r.opts.QuestionCount, r.opts.DifficultyMix)
	if err != nil {
		return nil, fmt.Errorf("generating synthetic questions: %w", err)
	}
	report := &Report{DocumentID: documentID}
	for _, q := range questions {
		saved, err := r.store.InsertQuestion(ctx, q)
		if err != nil {
			return nil, err
		}
		report.Questions = append(report.Questions, *saved)
	}
	if len(report.Questions) == 0 {
		return report, nil
	}

	weaknesses, err := r.diagnose(ctx, documentID, content, report.Questions)
	if err != nil {
		return nil, err
	}
	report.Weaknesses = weaknesses

	for i := range report.Weaknesses {
		ruleID, err := r.remediate(ctx, content, &report.Weaknesses[i])
		if err != nil {
			log.Printf("selfevolve: remediating weakness %s: %v", report.Weaknesses[i].ID, err)
			continue
		}
		if ruleID != "" {
			report.AdoptedRuleIDs = append(report.AdoptedRuleIDs, ruleID)
		}
	}
	if report.AdoptedRuleIDs == nil {
		report.AdoptedRuleIDs = []string{}
	}
	return report, nil
}

// diagnose answers every question from the bare document and from the
// rule-augmented document, judges the two conditions pairwise, and flags
// weaknesses. Duplicate weaknesses (same kind and suggested rule type) keep
// only the lowest-scoring representative.
func (r *Runner) diagnose(ctx context.Context, documentID, content string, questions []Question) ([]Weakness, error) {
	enabled, err := r.ruleStore.List(ctx, rules.ListFilter{DocumentID: documentID, EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("loading enabled rules: %w", err)
	}
	augmented := augmentContent(content, enabled)

	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Question
	}
	byQuestion := make(map[string]evolution.Comparison)
	for _, cmp := range r.judge.Compare(ctx, content, augmented, texts) {
		byQuestion[cmp.Question] = cmp
	}

	best := make(map[string]*Weakness)
	var order []string
	for _, q := range questions {
		cmp, ok := byQuestion[q.Question]
		if !ok {
			continue
		}
		scoreWithout := cmp.Baseline.Mean()
		scoreWith := cmp.Candidate.Mean()

		var kind WeaknessKind
		switch {
		case scoreWithout < r.opts.QualityFloor:
			kind = WeaknessLowQuality
		case len(enabled) > 0 && scoreWith-scoreWithout < r.opts.MinRuleLift:
			kind = WeaknessRulesIneffective
		default:
			continue
		}

		w := Weakness{
			DocumentID:        documentID,
			QuestionID:        q.ID,
			Question:          q.Question,
			Category:          q.Category,
			Kind:              kind,
			ScoreWithout:      scoreWithout,
			ScoreWith:         scoreWith,
			SuggestedRuleType: suggestedRuleType(q.Category),
		}

		key := string(kind) + "/" + string(w.SuggestedRuleType)
		if existing, ok := best[key]; ok {
			if w.ScoreWithout < existing.ScoreWithout {
				*existing = w
			}
			continue
		}
		best[key] = &w
		order = append(order, key)
	}

	var weaknesses []Weakness
	for _, key := range order {
		saved, err := r.store.InsertWeakness(ctx, *best[key])
		if err != nil {
			return nil, err
		}
		saved.Question = best[key].Question
		saved.Category = best[key].Category
		weaknesses = append(weaknesses, *saved)
	}
	return weaknesses, nil
}

type rawRule struct {
	Content        string `json:"content"`
	TriggerPattern string `json:"trigger_pattern"`
}

// remediate generates one rule candidate for a weakness, measures its
// relative improvement on the exposing question, and adopts it only when the
// improvement rate clears the configured minimum. Returns the adopted rule id
// or empty when the candidate was rejected.
func (r *Runner) remediate(ctx context.Context, content string, w *Weakness) (string, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model:       r.model,
		System:      ruleSystemPrompt,
		Prompt:      buildRulePrompt(content, *w),
		MaxTokens:   512,
		Temperature: 0.6,
		JSONMode:    true,
	})
	if err != nil {
		return "", err
	}

	raw, err := parseRule(resp.Content)
	if err != nil {
		return "", err
	}

	candidate := rules.Rule{
		DocumentID:     w.DocumentID,
		RuleType:       w.SuggestedRuleType,
		Content:        raw.Content,
		TriggerPattern: raw.TriggerPattern,
		Score:          0.5,
		Enabled:        true,
	}

	comparisons := r.judge.Compare(ctx, content, augmentContent(content, []rules.Rule{candidate}), []string{w.Question})
	if len(comparisons) == 0 {
		return "", fmt.Errorf("candidate evaluation produced no comparison")
	}
	cmp := comparisons[0]
	rate := improvementRate(cmp.Baseline.Mean(), cmp.Candidate.Mean())
	if rate < r.opts.MinImprovementRate {
		return "", nil
	}

	adopted, err := r.ruleStore.Insert(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("adopting rule: %w", err)
	}
	if err := r.store.SetAdoptedRule(ctx, w.ID, adopted.ID); err != nil {
		return "", err
	}
	w.AdoptedRuleID = adopted.ID
	return adopted.ID, nil
}

// improvementRate is the relative score gain of the with-candidate condition
// over the without condition.
func improvementRate(without, with float64) float64 {
	if without <= 0 {
		if with > 0 {
			return 1
		}
		return 0
	}
	return (with - without) / without
}

// augmentContent appends the rule set to the document the same way the
// serving path does when answering real queries.
func augmentContent(content string, ruleSet []rules.Rule) string {
	if len(ruleSet) == 0 {
		return content
	}

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n## Interpretation Rules\n")
	for _, rule := range ruleSet {
		fmt.Fprintf(&b, "- (%s) %s\n", rule.RuleType, rule.Content)
	}
	return b.String()
}

// parseRule decodes the model's rule JSON, tolerating fences and prose.
func parseRule(raw string) (*rawRule, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, llm.ErrInvalidResponse
	}

	var rule rawRule
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rule); err != nil {
		return nil, llm.ErrInvalidResponse
	}
	rule.Content = strings.TrimSpace(rule.Content)
	if rule.Content == "" {
		return nil, llm.ErrInvalidResponse
	}
	return &rule, nil
}
