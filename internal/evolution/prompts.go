package evolution

import (
	"fmt"
	"strings"
)

const generatorSystemPrompt = `You are a knowledge base editor. You rewrite knowledge documents so that an AI assistant answering questions from them produces better responses. Output ONLY the rewritten document content, with no preamble, commentary, or code fences.`

const responderSystemPrompt = `You are a helpful assistant. Answer the user's question using only the knowledge document provided. Be accurate and concise; if the document does not cover the question, say so.`

const judgeSystemPrompt = `You are an impartial evaluator comparing two assistant responses to the same question. You MUST respond with valid JSON matching this schema:
{
  "winner": "A" | "B" | "TIE",
  "scores_a": {"helpfulness": 1-5, "correctness": 1-5, "coherence": 1-5},
  "scores_b": {"helpfulness": 1-5, "correctness": 1-5, "coherence": 1-5}
}
Judge only the responses, not the underlying documents. Prefer "TIE" when the responses are of genuinely comparable quality.`

// mutationInstruction returns the editing instruction for a mutation kind.
// The switch is exhaustive: adding a kind without an instruction is a
// compile-visible change here.
func mutationInstruction(kind MutationKind) string {
	switch kind {
	case MutationClarityRewrite:
		return "Rewrite the document for clarity. Simplify convoluted sentences, remove ambiguity, and keep every fact intact."
	case MutationDetailExpansion:
		return "Expand the document with the missing details the feedback points at. Add concrete steps, values, and preconditions that the unsatisfactory responses lacked."
	case MutationStructuralReformat:
		return "Restructure the document so the most-needed information is found first. Use headings and lists where they help; do not add or remove facts."
	case MutationQAConversion:
		return "Convert the document into a question-and-answer format covering the topics users actually ask about, including the failing queries below."
	case MutationMergeCrossover:
		return "Merge the two draft revisions below into one document that keeps the strengths of both. Resolve conflicts in favor of the clearer, more complete wording."
	case MutationExtractCrossover:
		return "Extract the strongest passages from the draft revisions below and compose them into one coherent document, discarding weak or redundant sections."
	default:
		return "Improve the document based on the feedback below."
	}
}

// buildMutationPrompt builds the deterministic generation prompt for one
// point-mutation kind.
func buildMutationPrompt(kind MutationKind, content string, contexts []FeedbackContext) string {
	var b strings.Builder

	b.WriteString(mutationInstruction(kind))
	b.WriteString("\n\n## Current Document\n")
	b.WriteString(content)

	writeFeedbackSection(&b, contexts)

	b.WriteString("\n\nOutput the full revised document content.")
	return b.String()
}

// buildCrossoverPrompt builds the generation prompt for a crossover kind
// operating on previously generated candidates.
func buildCrossoverPrompt(kind MutationKind, content string, parents []Candidate, contexts []FeedbackContext) string {
	var b strings.Builder

	b.WriteString(mutationInstruction(kind))
	b.WriteString("\n\n## Original Document\n")
	b.WriteString(content)

	for i, p := range parents {
		fmt.Fprintf(&b, "\n\n## Draft Revision %d (%s)\n%s", i+1, p.Kind, p.Content)
	}

	writeFeedbackSection(&b, contexts)

	b.WriteString("\n\nOutput the full revised document content.")
	return b.String()
}

func writeFeedbackSection(b *strings.Builder, contexts []FeedbackContext) {
	if len(contexts) == 0 {
		return
	}
	b.WriteString("\n\n## Feedback on the Current Document\n")
	for _, c := range contexts {
		fmt.Fprintf(b, "- Query: %s\n  Response given: %s\n  Problem: %s\n", c.Query, c.Response, c.Reason)
	}
}

// buildResponsePrompt asks the model to answer a question from a document.
func buildResponsePrompt(content, question string) string {
	var b strings.Builder
	b.WriteString("## Knowledge Document\n")
	b.WriteString(content)
	b.WriteString("\n\n## Question\n")
	b.WriteString(question)
	return b.String()
}

// buildJudgePrompt asks for a structured verdict comparing two responses.
func buildJudgePrompt(question, responseA, responseB string) string {
	var b strings.Builder
	b.WriteString("## Question\n")
	b.WriteString(question)
	b.WriteString("\n\n## Response A\n")
	b.WriteString(responseA)
	b.WriteString("\n\n## Response B\n")
	b.WriteString(responseB)
	b.WriteString("\n\nCompare the two responses and output your verdict as JSON.")
	return b.String()
}
