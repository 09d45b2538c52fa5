package selfevolve

import (
	"time"

	"github.com/evolvekit/kb-evolve/internal/rules"
)

// QuestionCategory labels what a synthetic test question probes.
type QuestionCategory string

const (
	CategoryFactual           QuestionCategory = "factual"
	CategoryProcedural        QuestionCategory = "procedural"
	CategoryClarification     QuestionCategory = "clarification"
	CategoryComparison        QuestionCategory = "comparison"
	CategoryEdgeCase          QuestionCategory = "edge_case"
	CategoryImplicitKnowledge QuestionCategory = "implicit_knowledge"
)

// Categories is the fixed generation menu, in prompt order.
var Categories = []QuestionCategory{
	CategoryFactual,
	CategoryProcedural,
	CategoryClarification,
	CategoryComparison,
	CategoryEdgeCase,
	CategoryImplicitKnowledge,
}

// Valid reports whether c is a recognized category.
func (c QuestionCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Difficulty grades a synthetic question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a recognized difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is one synthetic test question for a document.
type Question struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Category   QuestionCategory `json:"category"`
	Difficulty Difficulty       `json:"difficulty"`
	Question   string           `json:"question"`
	CreatedAt  time.Time        `json:"created_at"`
}

// WeaknessKind classifies why a question exposed a weakness.
type WeaknessKind string

const (
	// WeaknessLowQuality means the bare document answered the question
	// below the quality floor.
	WeaknessLowQuality WeaknessKind = "low_quality"
	// WeaknessRulesIneffective means rules exist but barely improved the
	// answer.
	WeaknessRulesIneffective WeaknessKind = "rules_ineffective"
)

// Weakness is one diagnosed gap, tied to the question that exposed it.
type Weakness struct {
	ID                string           `json:"id"`
	DocumentID        string           `json:"document_id"`
	QuestionID        string           `json:"question_id"`
	Question          string           `json:"question"`
	Category          QuestionCategory `json:"category"`
	Kind              WeaknessKind     `json:"kind"`
	ScoreWithout      float64          `json:"score_without"`
	ScoreWith         float64          `json:"score_with"`
	SuggestedRuleType rules.Type       `json:"suggested_rule_type"`
	AdoptedRuleID     string           `json:"adopted_rule_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Report summarizes one self-evolution run for a document.
type Report struct {
	DocumentID     string     `json:"document_id"`
	Questions      []Question `json:"questions"`
	Weaknesses     []Weakness `json:"weaknesses"`
	AdoptedRuleIDs []string   `json:"adopted_rule_ids"`
}
