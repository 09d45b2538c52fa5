package evolution

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/feedback"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/llm"
)

// scriptedProvider routes completions by system prompt so tests can control
// the generator, responder, and judge independently.
type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	generate func(prompt string) (string, error)
	respond  func(prompt string) (string, error)
	judge    func(prompt string) (string, error)
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	var fn func(string) (string, error)
	switch req.System {
	case generatorSystemPrompt:
		fn = p.generate
	case responderSystemPrompt:
		fn = p.respond
	case judgeSystemPrompt:
		fn = p.judge
	}
	if fn == nil {
		return &llm.CompletionResponse{Content: "ok"}, nil
	}
	content, err := fn(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

// echoResponder answers with the document content so the judge script can
// tell which version produced each response.
func echoResponder(prompt string) (string, error) {
	return prompt, nil
}

const (
	verdictB   = `{"winner":"B","scores_a":{"helpfulness":2,"correctness":2,"coherence":2},"scores_b":{"helpfulness":5,"correctness":5,"coherence":4}}`
	verdictA   = `{"winner":"A","scores_a":{"helpfulness":4,"correctness":4,"coherence":4},"scores_b":{"helpfulness":2,"correctness":2,"coherence":2}}`
	verdictTie = `{"winner":"TIE","scores_a":{"helpfulness":3,"correctness":3,"coherence":3},"scores_b":{"helpfulness":3,"correctness":3,"coherence":3}}`
)

func TestAggregateTiesCountInDenominatorOnly(t *testing.T) {
	comparisons := []Comparison{
		{Winner: WinnerCandidate, Candidate: MetricScores{Helpfulness: 5, Correctness: 5, Coherence: 5}},
		{Winner: WinnerBaseline, Candidate: MetricScores{Helpfulness: 2, Correctness: 2, Coherence: 2}},
		{Winner: WinnerTie, Candidate: MetricScores{Helpfulness: 3, Correctness: 3, Coherence: 3}},
		{Winner: WinnerTie, Candidate: MetricScores{Helpfulness: 4, Correctness: 4, Coherence: 4}},
	}

	result := Aggregate("c1", MutationClarityRewrite, comparisons)
	if result.WinRate != 0.25 {
		t.Errorf("WinRate = %v, want 0.25 (1 win over 4 samples)", result.WinRate)
	}
	if result.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4", result.SampleCount)
	}
	if result.MeanScore != 3.5 {
		t.Errorf("MeanScore = %v, want 3.5", result.MeanScore)
	}
}

func TestAggregateWinRateBounds(t *testing.T) {
	allWins := []Comparison{{Winner: WinnerCandidate}, {Winner: WinnerCandidate}}
	allTies := []Comparison{{Winner: WinnerTie}, {Winner: WinnerTie}}

	if r := Aggregate("c", MutationQAConversion, allWins); r.WinRate != 1 {
		t.Errorf("all wins: WinRate = %v, want 1", r.WinRate)
	}
	if r := Aggregate("c", MutationQAConversion, allTies); r.WinRate != 0 {
		t.Errorf("all ties: WinRate = %v, want 0", r.WinRate)
	}
	if r := Aggregate("c", MutationQAConversion, nil); r.WinRate != 0 || r.SampleCount != 0 {
		t.Errorf("empty: got %+v, want zero result", r)
	}
}

func TestSelectAppliesGate(t *testing.T) {
	results := []EvaluationResult{
		{CandidateID: "a", WinRate: 0.5, MeanScore: 4, SampleCount: 10},
		{CandidateID: "b", WinRate: 0.55, MeanScore: 4.5, SampleCount: 10},
	}

	if winner := Select(results, 0.10); winner != nil {
		t.Errorf("0.55 must not clear a 0.60 gate, got %+v", winner)
	}

	results = append(results, EvaluationResult{CandidateID: "c", WinRate: 0.8, MeanScore: 3, SampleCount: 10})
	winner := Select(results, 0.10)
	if winner == nil || winner.CandidateID != "c" {
		t.Fatalf("expected candidate c to win, got %+v", winner)
	}
}

func TestSelectTieBreaksOnMeanScore(t *testing.T) {
	results := []EvaluationResult{
		{CandidateID: "a", WinRate: 0.7, MeanScore: 3.2, SampleCount: 10},
		{CandidateID: "b", WinRate: 0.7, MeanScore: 4.1, SampleCount: 10},
	}

	winner := Select(results, 0.10)
	if winner == nil || winner.CandidateID != "b" {
		t.Fatalf("expected mean score to break the tie, got %+v", winner)
	}
}

func TestGatingMonotonicity(t *testing.T) {
	results := []EvaluationResult{
		{CandidateID: "a", WinRate: 0.62, MeanScore: 4, SampleCount: 10},
		{CandidateID: "b", WinRate: 0.71, MeanScore: 4, SampleCount: 10},
	}

	adopted := func(margin float64) int {
		if Select(results, margin) != nil {
			return 1
		}
		return 0
	}

	prev := adopted(0)
	for _, margin := range []float64{0.05, 0.10, 0.15, 0.25, 0.5} {
		cur := adopted(margin)
		if cur > prev {
			t.Fatalf("raising margin to %v increased adoptions", margin)
		}
		prev = cur
	}
}

func TestParseVerdict(t *testing.T) {
	got := parseVerdict(verdictB)
	if !got.Parsed || got.Winner != WinnerCandidate {
		t.Errorf("valid verdict: got %+v", got)
	}

	got = parseVerdict("```json\n" + verdictA + "\n```")
	if !got.Parsed || got.Winner != WinnerBaseline {
		t.Errorf("fenced verdict: got %+v", got)
	}

	for _, raw := range []string{
		"the candidate response is clearly better",
		`{"winner":"C","scores_a":{},"scores_b":{}}`,
		`{"winner":"B","scores_a":{"helpfulness":9,"correctness":3,"coherence":3},"scores_b":{"helpfulness":3,"correctness":3,"coherence":3}}`,
		"",
	} {
		got = parseVerdict(raw)
		if got.Parsed || got.Winner != WinnerTie || got.Candidate.Helpfulness != 3 {
			t.Errorf("malformed verdict %q: expected neutral tie, got %+v", raw, got)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain content", "plain content"},
		{"```\nwrapped\n```", "wrapped"},
		{"```markdown\n# Title\nbody\n```", "# Title\nbody"},
		{"```\nno closing fence", "no closing fence"},
	}
	for _, c := range cases {
		if got := stripCodeFence(c.in); got != c.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGeneratorSkipsFailedKinds(t *testing.T) {
	provider := &scriptedProvider{
		generate: func(prompt string) (string, error) {
			if strings.HasPrefix(prompt, mutationInstruction(MutationQAConversion)) {
				return "", llm.ErrInvalidResponse
			}
			return "revised content", nil
		},
	}

	gen := NewGenerator(provider, "test-model", 0.7, 2)
	candidates := gen.Generate(context.Background(), "doc-1", "original", nil)

	// 3 surviving point mutations plus both crossovers.
	if len(candidates) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(candidates))
	}
	for _, cand := range candidates {
		if cand.Kind == MutationQAConversion {
			t.Error("failed kind must be skipped, not emitted")
		}
		if cand.Kind == MutationMergeCrossover && len(cand.ParentIDs) != 2 {
			t.Errorf("merge crossover parents = %d, want 2", len(cand.ParentIDs))
		}
	}
}

func TestGeneratorNoCrossoverWithSingleParent(t *testing.T) {
	provider := &scriptedProvider{
		generate: func(prompt string) (string, error) {
			if !strings.HasPrefix(prompt, mutationInstruction(MutationClarityRewrite)) {
				return "", llm.ErrInvalidResponse
			}
			return "revised content", nil
		},
	}

	gen := NewGenerator(provider, "test-model", 0.7, 2)
	candidates := gen.Generate(context.Background(), "doc-1", "original", nil)
	if len(candidates) != 1 {
		t.Fatalf("expected only the single surviving point mutation, got %d", len(candidates))
	}
}

type orchestratorFixture struct {
	database *db.DB
	docs     *knowledge.Store
	signals  *feedback.Store
	jobs     *Store
	docID    string
	provider *scriptedProvider
}

func setupOrchestrator(t *testing.T, provider *scriptedProvider, badCount int) *orchestratorFixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	docs := knowledge.NewStore(database)
	doc, err := docs.Create(context.Background(), knowledge.Document{
		Title:   "VPN Setup",
		Content: "baseline content about VPN setup",
	})
	if err != nil {
		t.Fatalf("creating document: %v", err)
	}

	signals := feedback.NewStore(database)
	queries := []string{
		"how do I connect to the VPN?",
		"which VPN client should I install?",
		"why does the VPN drop every hour?",
		"can I use the VPN on my phone?",
	}
	for i := 0; i < badCount; i++ {
		_, err := signals.Insert(context.Background(), feedback.Signal{
			DocumentID: doc.ID,
			UserQuery:  queries[i%len(queries)],
			Response:   "an unhelpful answer",
			Rating:     feedback.RatingBad,
			Comment:    "did not actually answer",
		})
		if err != nil {
			t.Fatalf("inserting feedback: %v", err)
		}
	}

	return &orchestratorFixture{
		database: database,
		docs:     docs,
		signals:  signals,
		jobs:     NewStore(database),
		docID:    doc.ID,
		provider: provider,
	}
}

func (f *orchestratorFixture) orchestrator(opts Options) *Orchestrator {
	gen := NewGenerator(f.provider, "test-model", 0.7, 2)
	judge := NewJudge(f.provider, "test-model", 2)
	return NewOrchestrator(f.jobs, f.docs, f.signals, gen, judge, opts)
}

// winnerProvider makes exactly one mutation kind produce content the judge
// script then favors in every comparison.
func winnerProvider(winningKind MutationKind) *scriptedProvider {
	const marker = "MUCH-IMPROVED"
	return &scriptedProvider{
		generate: func(prompt string) (string, error) {
			if strings.HasPrefix(prompt, mutationInstruction(winningKind)) {
				return marker + " revision", nil
			}
			if strings.HasPrefix(prompt, mutationInstruction(MutationMergeCrossover)) ||
				strings.HasPrefix(prompt, mutationInstruction(MutationExtractCrossover)) {
				return "blended revision", nil
			}
			return "minor revision", nil
		},
		respond: echoResponder,
		judge: func(prompt string) (string, error) {
			_, after, _ := strings.Cut(prompt, "## Response B")
			if strings.Contains(after, marker) {
				return verdictB, nil
			}
			return verdictA, nil
		},
	}
}

func TestScenarioAWinnerAdopted(t *testing.T) {
	f := setupOrchestrator(t, winnerProvider(MutationDetailExpansion), 3)
	ctx := context.Background()

	orch := f.orchestrator(Options{
		BadFeedbackThreshold: 3,
		MinWinMargin:         0.10,
		MaxConcurrentJobs:    1,
		MaxSampleQuestions:   5,
		AutoApply:            true,
	})

	jobs, err := orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	job := jobs[0]
	if job.Status != StatusCompleted {
		t.Fatalf("job status = %s, want completed (error: %s)", job.Status, job.Error)
	}
	if job.WinnerID == "" {
		t.Fatal("expected a winner")
	}

	var winnerKind MutationKind
	for _, cand := range job.Candidates {
		if cand.ID == job.WinnerID {
			winnerKind = cand.Kind
		}
	}
	if winnerKind != MutationDetailExpansion {
		t.Errorf("winner kind = %s, want detail_expansion", winnerKind)
	}

	doc, err := f.docs.Get(ctx, f.docID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Generation != 1 {
		t.Errorf("generation = %d, want 1", doc.Generation)
	}
	if !strings.Contains(doc.Content, "MUCH-IMPROVED") {
		t.Error("document content was not replaced with the winner")
	}

	eligible, err := f.signals.EligibleDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("EligibleDocuments: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("trigger feedback must be processed, still eligible: %v", eligible)
	}

	history, err := f.jobs.ListHistory(ctx, f.docID, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != len(job.Candidates) {
		t.Errorf("history records = %d, want one per candidate (%d)", len(history), len(job.Candidates))
	}
	var adopted int
	for _, rec := range history {
		if rec.Outcome == "adopted" {
			adopted++
		}
	}
	if adopted != 1 {
		t.Errorf("adopted records = %d, want 1", adopted)
	}
}

func TestScenarioBNoWinnerStillProcessesFeedback(t *testing.T) {
	provider := &scriptedProvider{
		generate: func(prompt string) (string, error) { return "a revision", nil },
		respond:  echoResponder,
		judge:    func(prompt string) (string, error) { return verdictTie, nil },
	}
	f := setupOrchestrator(t, provider, 3)
	ctx := context.Background()

	orch := f.orchestrator(Options{
		BadFeedbackThreshold: 3,
		MinWinMargin:         0.10,
		MaxConcurrentJobs:    1,
		MaxSampleQuestions:   5,
		AutoApply:            true,
	})

	jobs, err := orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != StatusCompleted {
		t.Fatalf("expected 1 completed job, got %+v", jobs)
	}
	if jobs[0].WinnerID != "" {
		t.Errorf("expected no winner, got %s", jobs[0].WinnerID)
	}

	doc, _ := f.docs.Get(ctx, f.docID)
	if doc.Generation != 0 {
		t.Errorf("generation must be unchanged without a winner, got %d", doc.Generation)
	}
	if doc.Content != "baseline content about VPN setup" {
		t.Error("baseline content must be kept without a winner")
	}

	eligible, _ := f.signals.EligibleDocuments(ctx, 1)
	if len(eligible) != 0 {
		t.Errorf("feedback must be processed even without a winner: %v", eligible)
	}
}

func TestNoOpBelowThreshold(t *testing.T) {
	f := setupOrchestrator(t, winnerProvider(MutationClarityRewrite), 2)
	ctx := context.Background()

	orch := f.orchestrator(Options{BadFeedbackThreshold: 3, MinWinMargin: 0.10})
	jobs, err := orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs below threshold, got %d", len(jobs))
	}
	if f.provider.calls != 0 {
		t.Errorf("no completion calls expected, got %d", f.provider.calls)
	}

	stored, err := f.jobs.ListJobs(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("no job rows expected, got %d", len(stored))
	}
}

func TestZeroCandidatesCompletesWithoutWinner(t *testing.T) {
	provider := &scriptedProvider{
		generate: func(prompt string) (string, error) { return "", llm.ErrInvalidResponse },
	}
	f := setupOrchestrator(t, provider, 3)
	ctx := context.Background()

	orch := f.orchestrator(Options{BadFeedbackThreshold: 3, MinWinMargin: 0.10, AutoApply: true})
	job, err := orch.RunDocument(ctx, f.docID, false)
	if err != nil {
		t.Fatalf("RunDocument: %v", err)
	}
	if job == nil || job.Status != StatusCompleted || job.WinnerID != "" {
		t.Fatalf("expected completed job without winner, got %+v", job)
	}

	eligible, _ := f.signals.EligibleDocuments(ctx, 1)
	if len(eligible) != 0 {
		t.Errorf("feedback must be processed on completion: %v", eligible)
	}
}

func TestFailedJobLeavesFeedbackUnprocessed(t *testing.T) {
	provider := &scriptedProvider{
		generate: func(prompt string) (string, error) { return "a revision", nil },
		respond:  func(prompt string) (string, error) { return "", llm.ErrTimeout },
		judge:    func(prompt string) (string, error) { return verdictTie, nil },
	}
	f := setupOrchestrator(t, provider, 3)
	ctx := context.Background()

	orch := f.orchestrator(Options{BadFeedbackThreshold: 3, MinWinMargin: 0.10})
	job, err := orch.RunDocument(ctx, f.docID, false)
	if err == nil {
		t.Fatal("expected an error from the failed job")
	}
	if job == nil || job.Status != StatusFailed || job.Error == "" {
		t.Fatalf("expected failed job with recorded error, got %+v", job)
	}

	// The feedback stays eligible for a retry.
	eligible, _ := f.signals.EligibleDocuments(ctx, 3)
	if eligible[f.docID] != 3 {
		t.Errorf("failed job must leave feedback unprocessed, got %v", eligible)
	}

	doc, _ := f.docs.Get(ctx, f.docID)
	if doc.Generation != 0 || doc.Content != "baseline content about VPN setup" {
		t.Error("failed job must not touch document state")
	}
}

func TestRunDocumentRejectsConcurrentJob(t *testing.T) {
	f := setupOrchestrator(t, winnerProvider(MutationClarityRewrite), 3)
	ctx := context.Background()

	// Simulate an in-flight job.
	if _, err := f.jobs.CreateJob(ctx, f.docID, nil, false); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	orch := f.orchestrator(Options{BadFeedbackThreshold: 3, MinWinMargin: 0.10})
	if _, err := orch.RunDocument(ctx, f.docID, false); err == nil {
		t.Fatal("expected rejection while a job is in flight")
	}
}

func TestStoreJobRoundTrip(t *testing.T) {
	f := setupOrchestrator(t, &scriptedProvider{}, 0)
	ctx := context.Background()

	job, err := f.jobs.CreateJob(ctx, f.docID, []string{"fb-1", "fb-2"}, true)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	cand := Candidate{ID: "cand-1", SourceDocumentID: f.docID, Kind: MutationClarityRewrite, Content: "revised"}
	result := EvaluationResult{
		CandidateID: cand.ID,
		Kind:        cand.Kind,
		WinRate:     0.75,
		MeanScore:   4.2,
		Metrics:     MetricScores{Helpfulness: 4.5, Correctness: 4.0, Coherence: 4.1},
		SampleCount: 4,
	}
	if err := f.jobs.SaveCandidateResult(ctx, job.ID, cand, result, true); err != nil {
		t.Fatalf("SaveCandidateResult: %v", err)
	}
	if err := f.jobs.CompleteJob(ctx, job.ID, cand.ID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.Status != StatusCompleted || got.WinnerID != cand.ID {
		t.Errorf("job = %+v, want completed with winner cand-1", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at must be set")
	}
	if len(got.TriggerFeedback) != 2 {
		t.Errorf("trigger feedback = %v, want 2 ids", got.TriggerFeedback)
	}
	if len(got.Results) != 1 || got.Results[0].WinRate != 0.75 {
		t.Errorf("results = %+v, want the saved evaluation", got.Results)
	}

	missing, err := f.jobs.GetJob(ctx, "nope")
	if err != nil {
		t.Fatalf("GetJob(missing): %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown job")
	}
}
