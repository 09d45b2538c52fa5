package evolution

import "time"

// MutationKind identifies the transformation a candidate applies to the
// baseline content. The set is closed; every consumption site switches
// exhaustively over it.
type MutationKind string

const (
	MutationClarityRewrite     MutationKind = "clarity_rewrite"
	MutationDetailExpansion    MutationKind = "detail_expansion"
	MutationStructuralReformat MutationKind = "structural_reformat"
	MutationQAConversion       MutationKind = "qa_conversion"
	MutationMergeCrossover     MutationKind = "merge_crossover"
	MutationExtractCrossover   MutationKind = "extract_crossover"
)

// pointMutations are the kinds generated directly from the baseline content.
var pointMutations = []MutationKind{
	MutationClarityRewrite,
	MutationDetailExpansion,
	MutationStructuralReformat,
	MutationQAConversion,
}

// Valid reports whether k is a recognized mutation kind.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationClarityRewrite, MutationDetailExpansion, MutationStructuralReformat,
		MutationQAConversion, MutationMergeCrossover, MutationExtractCrossover:
		return true
	}
	return false
}

// FeedbackContext is one piece of evidence that the current content is
// failing: a query, the unsatisfactory response it produced, and why it was
// judged unsatisfactory.
type FeedbackContext struct {
	Query    string
	Response string
	Reason   string
}

// Candidate is a generated alternative to the current content, not yet
// adopted. Crossover candidates record the candidates they were derived from.
type Candidate struct {
	ID               string       `json:"id"`
	SourceDocumentID string       `json:"source_document_id"`
	Kind             MutationKind `json:"mutation_kind"`
	Content          string       `json:"content"`
	ParentIDs        []string     `json:"parent_ids,omitempty"`
}

// Winner identifies which side of a pairwise comparison prevailed.
type Winner string

const (
	WinnerBaseline  Winner = "A"
	WinnerCandidate Winner = "B"
	WinnerTie       Winner = "TIE"
)

// MetricScores holds the three judge metrics on the 1-5 scale.
type MetricScores struct {
	Helpfulness float64 `json:"helpfulness"`
	Correctness float64 `json:"correctness"`
	Coherence   float64 `json:"coherence"`
}

// Mean returns the average of the three metrics.
func (m MetricScores) Mean() float64 {
	return (m.Helpfulness + m.Correctness + m.Coherence) / 3
}

// Comparison is the outcome of one pairwise judgment on one sample question.
// Parsed is false when the judge's output could not be decoded and the
// neutral default (tie, mid-scale scores) was substituted.
type Comparison struct {
	Question  string       `json:"question"`
	Winner    Winner       `json:"winner"`
	Baseline  MetricScores `json:"baseline"`
	Candidate MetricScores `json:"candidate"`
	Parsed    bool         `json:"parsed"`
}

// EvaluationResult aggregates the comparisons for one candidate. Recomputed
// each job run, never independently mutated.
type EvaluationResult struct {
	CandidateID string       `json:"candidate_id"`
	Kind        MutationKind `json:"mutation_kind"`
	WinRate     float64      `json:"win_rate"`
	MeanScore   float64      `json:"mean_score"`
	Metrics     MetricScores `json:"per_metric_scores"`
	SampleCount int          `json:"sample_count"`
}

// JobStatus is the state of an evolution job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusGenerating JobStatus = "generating"
	StatusEvaluating JobStatus = "evaluating"
	StatusUpdating   JobStatus = "updating"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one evolution run for one document. Once completed it is append-only
// history and is never mutated again.
type Job struct {
	ID              string             `json:"id"`
	DocumentID      string             `json:"document_id"`
	Status          JobStatus          `json:"status"`
	TriggerFeedback []string           `json:"trigger_feedback_ids"`
	Candidates      []Candidate        `json:"candidates,omitempty"`
	Results         []EvaluationResult `json:"evaluation_results,omitempty"`
	WinnerID        string             `json:"winner_id,omitempty"`
	AutoApply       bool               `json:"auto_apply"`
	Error           string             `json:"error,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// HistoryRecord is the immutable per-candidate outcome stored when a job
// finishes, with truncated before/after snapshots for rollback inspection.
type HistoryRecord struct {
	ID            string       `json:"id"`
	JobID         string       `json:"job_id"`
	DocumentID    string       `json:"document_id"`
	CandidateID   string       `json:"candidate_id"`
	Kind          MutationKind `json:"mutation_kind"`
	Outcome       string       `json:"outcome"` // adopted or rejected
	WinRate       float64      `json:"win_rate"`
	MeanScore     float64      `json:"mean_score"`
	BeforeSnippet string       `json:"before_snippet"`
	AfterSnippet  string       `json:"after_snippet"`
	CreatedAt     time.Time    `json:"created_at"`
}
