package evolution

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evolvekit/kb-evolve/internal/llm"
)

// Generator turns the current content plus feedback evidence into labeled
// variant candidates, one per mutation kind. A single failed generation is
// logged and skipped; zero candidates is a valid outcome, not an error.
type Generator struct {
	provider    llm.Provider
	model       string
	temperature float64
	maxParallel int
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, model string, temperature float64, maxParallel int) *Generator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Generator{
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxParallel: maxParallel,
	}
}

// Generate produces candidates for a document. The four point mutations run
// first, fanned out in parallel; the two crossover kinds run afterwards over
// the point-mutation results, since they need parents to combine.
func (g *Generator) Generate(ctx context.Context, documentID, content string, contexts []FeedbackContext) []Candidate {
	var (
		mu         sync.Mutex
		candidates []Candidate
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxParallel)
	for _, kind := range pointMutations {
		kind := kind
		eg.Go(func() error {
			cand, err := g.generateOne(egCtx, documentID, kind, buildMutationPrompt(kind, content, contexts), nil)
			if err != nil {
				log.Printf("evolution: generating %s candidate for %s: %v", kind, documentID, err)
				return nil
			}
			mu.Lock()
			candidates = append(candidates, *cand)
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()

	if len(candidates) >= 2 {
		parents := candidates[:2]
		for _, kind := range []MutationKind{MutationMergeCrossover, MutationExtractCrossover} {
			crossParents := parents
			if kind == MutationExtractCrossover {
				crossParents = candidates
			}
			cand, err := g.generateOne(ctx, documentID, kind, buildCrossoverPrompt(kind, content, crossParents, contexts), parentIDs(crossParents))
			if err != nil {
				log.Printf("evolution: generating %s candidate for %s: %v", kind, documentID, err)
				continue
			}
			candidates = append(candidates, *cand)
		}
	}

	return candidates
}

func (g *Generator) generateOne(ctx context.Context, documentID string, kind MutationKind, prompt string, parents []string) (*Candidate, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model:       g.model,
		System:      generatorSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   4096,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, err
	}

	content := stripCodeFence(resp.Content)
	if content == "" {
		return nil, llm.ErrInvalidResponse
	}

	return &Candidate{
		ID:               uuid.New().String(),
		SourceDocumentID: documentID,
		Kind:             kind,
		Content:          content,
		ParentIDs:        parents,
	}, nil
}

func parentIDs(parents []Candidate) []string {
	ids := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}
	return ids
}

// stripCodeFence removes a markdown code fence wrapping the whole output,
// which models add despite instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}

	// Drop the opening fence (possibly with a language tag) and a trailing fence.
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
