package selfevolve

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/llm"
	"github.com/evolvekit/kb-evolve/internal/rules"
)

// scriptedProvider routes completions by system prompt and, for the shared
// judge pipeline, by prompt content.
type scriptedProvider struct {
	questions func(prompt string) (string, error)
	rules     func(prompt string) (string, error)
	judge     func(prompt string) (string, error)
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var fn func(string) (string, error)
	switch {
	case req.System == questionSystemPrompt:
		fn = p.questions
	case req.System == ruleSystemPrompt:
		fn = p.rules
	case strings.Contains(req.Prompt, "## Response A"):
		fn = p.judge
	default:
		// Responder call: echo so the judge script can see the content.
		return &llm.CompletionResponse{Content: req.Prompt}, nil
	}
	if fn == nil {
		return nil, llm.ErrInvalidResponse
	}
	content, err := fn(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func verdict(winner string, a, b float64) string {
	return fmt.Sprintf(`{"winner":%q,"scores_a":{"helpfulness":%v,"correctness":%v,"coherence":%v},"scores_b":{"helpfulness":%v,"correctness":%v,"coherence":%v}}`,
		winner, a, a, a, b, b, b)
}

type fixture struct {
	docs      *knowledge.Store
	ruleStore *rules.Store
	store     *Store
	docID     string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	docs := knowledge.NewStore(database)
	doc, err := docs.Create(context.Background(), knowledge.Document{
		Title:   "Service Runbook",
		Content: "the service runbook content",
	})
	if err != nil {
		t.Fatalf("creating document: %v", err)
	}

	return &fixture{
		docs:      docs,
		ruleStore: rules.NewStore(database),
		store:     NewStore(database),
		docID:     doc.ID,
	}
}

func (f *fixture) runner(provider llm.Provider, opts Options) *Runner {
	judge := evolution.NewJudge(provider, "test-model", 2)
	return NewRunner(provider, "test-model", judge, f.docs, f.ruleStore, f.store, opts)
}

const sixQuestions = `[
{"category":"factual","difficulty":"easy","question":"What port does the service use?"},
{"category":"procedural","difficulty":"medium","question":"How do I rotate the keys?"},
{"category":"clarification","difficulty":"easy","question":"What does standby mode mean here?"},
{"category":"comparison","difficulty":"medium","question":"How does plan A differ from plan B?"},
{"category":"edge_case","difficulty":"hard","question":"What happens when the disk is full?"},
{"category":"implicit_knowledge","difficulty":"hard","question":"Why restart after a config change?"}
]`

func TestScenarioDWeaknessDrivenAdoption(t *testing.T) {
	provider := &scriptedProvider{
		questions: func(string) (string, error) { return sixQuestions, nil },
		rules: func(prompt string) (string, error) {
			if strings.Contains(prompt, "disk is full") {
				return `{"content":"RULE-ONE explain disk-full recovery","trigger_pattern":"disk"}`, nil
			}
			return `{"content":"RULE-TWO contrast the plans","trigger_pattern":""}`, nil
		},
		judge: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "RULE-ONE"):
				// Improvement rate (3.75-3.0)/3.0 = 0.25, clears 0.20.
				return verdict("B", 3.0, 3.75), nil
			case strings.Contains(prompt, "RULE-TWO"):
				// Improvement rate 0.10, rejected.
				return verdict("B", 3.0, 3.3), nil
			case strings.Contains(prompt, "disk is full"), strings.Contains(prompt, "differ from"):
				return verdict("TIE", 3.0, 3.0), nil
			default:
				return verdict("TIE", 4.0, 4.0), nil
			}
		},
	}

	f := setup(t)
	ctx := context.Background()
	runner := f.runner(provider, Options{
		QuestionCount:      6,
		QualityFloor:       3.5,
		MinRuleLift:        0.5,
		MinImprovementRate: 0.20,
	})

	report, err := runner.Run(ctx, f.docID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Questions) != 6 {
		t.Fatalf("questions = %d, want 6", len(report.Questions))
	}
	if len(report.Weaknesses) != 2 {
		t.Fatalf("weaknesses = %d, want 2 (%+v)", len(report.Weaknesses), report.Weaknesses)
	}
	for _, w := range report.Weaknesses {
		if w.Kind != WeaknessLowQuality {
			t.Errorf("weakness kind = %s, want low_quality", w.Kind)
		}
		if w.ScoreWithout >= 3.5 {
			t.Errorf("weakness score_without = %v, want below the floor", w.ScoreWithout)
		}
	}

	if len(report.AdoptedRuleIDs) != 1 {
		t.Fatalf("adopted rules = %d, want 1", len(report.AdoptedRuleIDs))
	}

	adopted, err := f.ruleStore.Get(ctx, report.AdoptedRuleIDs[0])
	if err != nil {
		t.Fatalf("Get rule: %v", err)
	}
	if adopted == nil {
		t.Fatal("adopted rule not persisted")
	}
	if adopted.RuleType != rules.TypeMisconception {
		t.Errorf("rule type = %s, want misconception for an edge-case weakness", adopted.RuleType)
	}
	if adopted.Score != 0.5 {
		t.Errorf("initial rule score = %v, want 0.5", adopted.Score)
	}
	if !adopted.Enabled {
		t.Error("adopted rule must start enabled")
	}

	all, err := f.ruleStore.List(ctx, rules.ListFilter{DocumentID: f.docID})
	if err != nil {
		t.Fatalf("List rules: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("rule count = %d, want exactly the one adoption", len(all))
	}

	stored, err := f.store.ListWeaknesses(ctx, f.docID)
	if err != nil {
		t.Fatalf("ListWeaknesses: %v", err)
	}
	var linked int
	for _, w := range stored {
		if w.AdoptedRuleID != "" {
			linked++
		}
	}
	if linked != 1 {
		t.Errorf("weaknesses linked to a rule = %d, want 1", linked)
	}
}

func TestDiagnoseDeduplicatesBySuggestedType(t *testing.T) {
	provider := &scriptedProvider{
		judge: func(string) (string, error) { return verdict("TIE", 2.0, 2.0), nil },
	}
	f := setup(t)
	ctx := context.Background()
	runner := f.runner(provider, Options{QualityFloor: 3.5})

	// Both categories suggest a context rule, so only one weakness survives.
	questions := []Question{
		{ID: "q1", DocumentID: f.docID, Category: CategoryFactual, Difficulty: DifficultyEasy, Question: "what is the port?"},
		{ID: "q2", DocumentID: f.docID, Category: CategoryImplicitKnowledge, Difficulty: DifficultyHard, Question: "why restart?"},
	}
	for i := range questions {
		if _, err := f.store.InsertQuestion(ctx, questions[i]); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}

	weaknesses, err := runner.diagnose(ctx, f.docID, "content", questions)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if len(weaknesses) != 1 {
		t.Fatalf("weaknesses = %d, want 1 after dedupe", len(weaknesses))
	}
	if weaknesses[0].SuggestedRuleType != rules.TypeContext {
		t.Errorf("suggested type = %s, want context", weaknesses[0].SuggestedRuleType)
	}
}

func TestDiagnoseFlagsIneffectiveRules(t *testing.T) {
	provider := &scriptedProvider{
		// Decent baseline, but the rule set adds almost nothing.
		judge: func(string) (string, error) { return verdict("TIE", 4.0, 4.2), nil },
	}
	f := setup(t)
	ctx := context.Background()

	if _, err := f.ruleStore.Insert(ctx, rules.Rule{
		DocumentID: f.docID,
		RuleType:   rules.TypeContext,
		Content:    "an existing rule",
		Score:      0.5,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("Insert rule: %v", err)
	}

	runner := f.runner(provider, Options{QualityFloor: 3.5, MinRuleLift: 0.5})
	questions := []Question{
		{ID: "q1", DocumentID: f.docID, Category: CategoryProcedural, Difficulty: DifficultyMedium, Question: "how do I rotate keys?"},
	}
	if _, err := f.store.InsertQuestion(ctx, questions[0]); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	weaknesses, err := runner.diagnose(ctx, f.docID, "content", questions)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if len(weaknesses) != 1 || weaknesses[0].Kind != WeaknessRulesIneffective {
		t.Fatalf("expected one rules_ineffective weakness, got %+v", weaknesses)
	}
}

func TestGenerateQuestionsDropsInvalidEntries(t *testing.T) {
	provider := &scriptedProvider{
		questions: func(string) (string, error) {
			return "Here you go:\n```json\n" + `[
{"category":"factual","difficulty":"easy","question":"valid one"},
{"category":"bogus","difficulty":"easy","question":"bad category"},
{"category":"procedural","difficulty":"extreme","question":"bad difficulty degrades"},
{"category":"edge_case","difficulty":"hard","question":""}
]` + "\n```", nil
		},
	}

	gen := NewQuestionGenerator(provider, "test-model")
	questions, err := gen.Generate(context.Background(), "doc-1", "content", 6, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions = %d, want 2 surviving entries", len(questions))
	}
	if questions[1].Difficulty != DifficultyMedium {
		t.Errorf("unknown difficulty must degrade to medium, got %s", questions[1].Difficulty)
	}
}

func TestGenerateQuestionsRejectsGarbage(t *testing.T) {
	provider := &scriptedProvider{
		questions: func(string) (string, error) { return "no json here", nil },
	}
	gen := NewQuestionGenerator(provider, "test-model")
	if _, err := gen.Generate(context.Background(), "doc-1", "content", 6, nil); err == nil {
		t.Fatal("expected error for unparseable output")
	}
}

func TestImprovementRate(t *testing.T) {
	cases := []struct{ without, with, want float64 }{
		{3.0, 3.75, 0.25},
		{4.0, 4.0, 0},
		{4.0, 3.0, -0.25},
		{0, 2.0, 1},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := improvementRate(c.without, c.with); got != c.want {
			t.Errorf("improvementRate(%v, %v) = %v, want %v", c.without, c.with, got, c.want)
		}
	}
}

func TestAugmentContent(t *testing.T) {
	if got := augmentContent("doc", nil); got != "doc" {
		t.Errorf("no rules must leave content untouched, got %q", got)
	}

	got := augmentContent("doc", []rules.Rule{
		{RuleType: rules.TypeContext, Content: "mention the VPN"},
	})
	if !strings.Contains(got, "## Interpretation Rules") || !strings.Contains(got, "mention the VPN") {
		t.Errorf("augmented content missing rule section: %q", got)
	}
}
