package selfevolve

import (
	"fmt"
	"strings"

	"github.com/evolvekit/kb-evolve/internal/rules"
)

const questionSystemPrompt = `You are a quality engineer probing a knowledge document for weak spots. You generate realistic test questions a user might ask. You MUST respond with a valid JSON array where each element matches:
{"category": "factual"|"procedural"|"clarification"|"comparison"|"edge_case"|"implicit_knowledge", "difficulty": "easy"|"medium"|"hard", "question": "..."}`

const ruleSystemPrompt = `You are a knowledge base tuner. You write short interpretation rules that guide an assistant answering questions from a document. You MUST respond with valid JSON matching:
{"content": "the rule text", "trigger_pattern": "optional regex or keyword, empty to always apply"}`

// buildQuestionPrompt asks for count questions spread across the category
// menu with the given difficulty mix.
func buildQuestionPrompt(content string, count int, mix map[Difficulty]int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %d test questions for the knowledge document below, spread across these categories: ", count)
	for i, cat := range Categories {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(cat))
	}
	b.WriteString(".")

	if len(mix) > 0 {
		b.WriteString(" Target difficulty mix:")
		for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
			if n := mix[d]; n > 0 {
				fmt.Fprintf(&b, " %d %s;", n, d)
			}
		}
	}

	b.WriteString("\n\n## Knowledge Document\n")
	b.WriteString(content)
	b.WriteString("\n\nOutput the questions as a JSON array.")
	return b.String()
}

// buildRulePrompt asks for one targeted rule addressing a diagnosed weakness.
func buildRulePrompt(content string, w Weakness) string {
	var b strings.Builder

	fmt.Fprintf(&b, "An assistant answering from the document below handled this question poorly (quality %.1f/5):\n\n%s\n\n", w.ScoreWithout, w.Question)
	fmt.Fprintf(&b, "Write one %s rule that would improve answers to questions like it.", w.SuggestedRuleType)
	b.WriteString("\n\n## Knowledge Document\n")
	b.WriteString(content)
	b.WriteString("\n\nOutput the rule as JSON.")
	return b.String()
}

// suggestedRuleType maps a question category to the rule type most likely to
// address weaknesses it exposes.
func suggestedRuleType(cat QuestionCategory) rules.Type {
	switch cat {
	case CategoryProcedural:
		return rules.TypeFormat
	case CategoryClarification:
		return rules.TypeClarification
	case CategoryComparison:
		return rules.TypeCrossReference
	case CategoryEdgeCase:
		return rules.TypeMisconception
	default:
		// factual and implicit_knowledge gaps call for added context.
		return rules.TypeContext
	}
}
