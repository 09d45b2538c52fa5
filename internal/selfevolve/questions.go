package selfevolve

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/llm"
)

// QuestionGenerator produces synthetic test questions for a document.
type QuestionGenerator struct {
	provider llm.Provider
	model    string
}

// NewQuestionGenerator creates a QuestionGenerator.
func NewQuestionGenerator(provider llm.Provider, model string) *QuestionGenerator {
	return &QuestionGenerator{provider: provider, model: model}
}

type rawQuestion struct {
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Question   string `json:"question"`
}

// Generate asks the model for count questions over the document content with
// the requested difficulty mix. Entries with an unknown category or an empty
// question are dropped; an unknown difficulty degrades to medium.
func (g *QuestionGenerator) Generate(ctx context.Context, documentID, content string, count int, mix map[Difficulty]int) ([]Question, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model:       g.model,
		System:      questionSystemPrompt,
		Prompt:      buildQuestionPrompt(content, count, mix),
		MaxTokens:   2048,
		Temperature: 0.8,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	raws, err := parseQuestions(resp.Content)
	if err != nil {
		return nil, err
	}

	var questions []Question
	for _, raw := range raws {
		category := QuestionCategory(strings.TrimSpace(raw.Category))
		question := strings.TrimSpace(raw.Question)
		if !category.Valid() || question == "" {
			continue
		}
		difficulty := Difficulty(strings.TrimSpace(raw.Difficulty))
		if !difficulty.Valid() {
			difficulty = DifficultyMedium
		}
		questions = append(questions, Question{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Category:   category,
			Difficulty: difficulty,
			Question:   question,
		})
		if len(questions) >= count {
			break
		}
	}
	return questions, nil
}

// parseQuestions decodes the model's question array, tolerating code fences
// and surrounding prose.
func parseQuestions(raw string) ([]rawQuestion, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, llm.ErrInvalidResponse
	}

	var questions []rawQuestion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &questions); err != nil {
		return nil, llm.ErrInvalidResponse
	}
	return questions, nil
}
