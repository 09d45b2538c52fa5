package evolution

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/evolvekit/kb-evolve/internal/llm"
)

// Judge runs pairwise comparisons between the baseline content and one
// candidate across a set of sample questions. Each question is answered from
// both versions by a responder call, then a single judge call picks a winner
// and scores both responses.
type Judge struct {
	provider    llm.Provider
	model       string
	maxParallel int
}

// NewJudge creates a Judge.
func NewJudge(provider llm.Provider, model string, maxParallel int) *Judge {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Judge{provider: provider, model: model, maxParallel: maxParallel}
}

// verdict mirrors the JSON schema the judge prompt demands.
type verdict struct {
	Winner  string       `json:"winner"`
	ScoresA MetricScores `json:"scores_a"`
	ScoresB MetricScores `json:"scores_b"`
}

// Compare evaluates candidateContent against baselineContent over questions.
// Questions whose responder or judge calls fail are skipped; a malformed
// judge verdict is recorded as an unparsed tie so a flaky judge cannot push
// a candidate over the adoption gate.
func (j *Judge) Compare(ctx context.Context, baselineContent, candidateContent string, questions []string) []Comparison {
	var (
		mu          sync.Mutex
		comparisons []Comparison
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(j.maxParallel)
	for _, question := range questions {
		question := question
		eg.Go(func() error {
			cmp, err := j.compareOne(egCtx, baselineContent, candidateContent, question)
			if err != nil {
				log.Printf("evolution: comparing on %q: %v", truncate(question, 80), err)
				return nil
			}
			mu.Lock()
			comparisons = append(comparisons, *cmp)
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()

	return comparisons
}

func (j *Judge) compareOne(ctx context.Context, baselineContent, candidateContent, question string) (*Comparison, error) {
	// Neither response depends on the other, so generate both at once.
	var responseA, responseB string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		responseA, err = j.respond(egCtx, baselineContent, question)
		return err
	})
	eg.Go(func() error {
		var err error
		responseB, err = j.respond(egCtx, candidateContent, question)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		Model:       j.model,
		System:      judgeSystemPrompt,
		Prompt:      buildJudgePrompt(question, responseA, responseB),
		MaxTokens:   512,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	cmp := parseVerdict(resp.Content)
	cmp.Question = question
	return cmp, nil
}

func (j *Judge) respond(ctx context.Context, content, question string) (string, error) {
	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		Model:       j.model,
		System:      responderSystemPrompt,
		Prompt:      buildResponsePrompt(content, question),
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// parseVerdict decodes the judge's JSON, falling back to a neutral tie with
// mid-scale scores when the output is malformed.
func parseVerdict(raw string) *Comparison {
	neutral := &Comparison{
		Winner:    WinnerTie,
		Baseline:  MetricScores{Helpfulness: 3, Correctness: 3, Coherence: 3},
		Candidate: MetricScores{Helpfulness: 3, Correctness: 3, Coherence: 3},
		Parsed:    false,
	}

	cleaned := extractJSON(raw)
	if cleaned == "" {
		return neutral
	}

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return neutral
	}

	winner := Winner(strings.ToUpper(strings.TrimSpace(v.Winner)))
	if winner != WinnerBaseline && winner != WinnerCandidate && winner != WinnerTie {
		return neutral
	}
	if !scoresInRange(v.ScoresA) || !scoresInRange(v.ScoresB) {
		return neutral
	}

	return &Comparison{
		Winner:    winner,
		Baseline:  v.ScoresA,
		Candidate: v.ScoresB,
		Parsed:    true,
	}
}

func scoresInRange(m MetricScores) bool {
	for _, s := range []float64{m.Helpfulness, m.Correctness, m.Coherence} {
		if s < 1 || s > 5 {
			return false
		}
	}
	return true
}

// extractJSON pulls the outermost JSON object out of model output that may be
// wrapped in code fences or prose.
func extractJSON(s string) string {
	s = stripCodeFence(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
