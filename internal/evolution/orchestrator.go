package evolution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/evolvekit/kb-evolve/internal/feedback"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
)

const snippetLen = 200

// Options control a run of the orchestrator.
type Options struct {
	// BadFeedbackThreshold is the minimum count of unprocessed bad feedback
	// a document needs before a job is created for it.
	BadFeedbackThreshold int
	// MinWinMargin is added to 0.5 to form the adoption gate.
	MinWinMargin float64
	// MaxConcurrentJobs bounds how many documents evolve at once.
	MaxConcurrentJobs int
	// MaxSampleQuestions caps how many distinct feedback queries are used
	// as evaluation questions per job.
	MaxSampleQuestions int
	// AutoApply lets completed jobs rewrite document content. When false
	// the winner is recorded but the baseline stays in place.
	AutoApply bool
}

// Progress receives stage transitions as jobs run. Optional.
type Progress func(jobID, documentID string, status JobStatus)

// Orchestrator drives the evolution pipeline for eligible documents:
// generation, evaluation, selection, then persistence. Each document's job
// runs independently; one failed job never blocks its siblings.
type Orchestrator struct {
	jobs      *Store
	docs      *knowledge.Store
	signals   *feedback.Store
	generator *Generator
	judge     *Judge
	opts      Options
	progress  Progress
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(jobs *Store, docs *knowledge.Store, signals *feedback.Store, generator *Generator, judge *Judge, opts Options) *Orchestrator {
	if opts.BadFeedbackThreshold < 1 {
		opts.BadFeedbackThreshold = 1
	}
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.MaxSampleQuestions < 1 {
		opts.MaxSampleQuestions = 5
	}
	return &Orchestrator{
		jobs:      jobs,
		docs:      docs,
		signals:   signals,
		generator: generator,
		judge:     judge,
		opts:      opts,
	}
}

// SetProgress installs a stage-transition callback.
func (o *Orchestrator) SetProgress(p Progress) {
	o.progress = p
}

// RunAll finds every eligible document and evolves each in its own job,
// bounded by MaxConcurrentJobs. Documents below the feedback threshold are
// untouched. Returns the terminal state of every job that ran.
func (o *Orchestrator) RunAll(ctx context.Context) ([]*Job, error) {
	eligible, err := o.signals.EligibleDocuments(ctx, o.opts.BadFeedbackThreshold)
	if err != nil {
		return nil, fmt.Errorf("finding eligible documents: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results []*Job
		wg      sync.WaitGroup
		sem     = make(chan struct{}, o.opts.MaxConcurrentJobs)
	)

	for documentID := range eligible {
		wg.Add(1)
		sem <- struct{}{}
		go func(documentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			job, err := o.RunDocument(ctx, documentID, false)
			if err != nil {
				log.Printf("evolution: document %s: %v", documentID, err)
			}
			if job != nil {
				mu.Lock()
				results = append(results, job)
				mu.Unlock()
			}
		}(documentID)
	}
	wg.Wait()

	return results, nil
}

// RunDocument evolves a single document. Unless force is set, the document
// must meet the bad-feedback threshold and have no job already in flight.
// Returns the job in its terminal state; a failed job is returned alongside
// the error that failed it.
func (o *Orchestrator) RunDocument(ctx context.Context, documentID string, force bool) (*Job, error) {
	active, err := o.jobs.CountActiveJobs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, fmt.Errorf("document %s already has a job in flight", documentID)
	}

	signals, err := o.signals.List(ctx, feedback.ListFilter{
		DocumentID:  documentID,
		Rating:      feedback.RatingBad,
		Unprocessed: true,
	})
	if err != nil {
		return nil, fmt.Errorf("loading feedback: %w", err)
	}
	if !force && len(signals) < o.opts.BadFeedbackThreshold {
		return nil, nil
	}

	triggerIDs := make([]string, len(signals))
	contexts := make([]FeedbackContext, len(signals))
	for i, sig := range signals {
		triggerIDs[i] = sig.ID
		contexts[i] = FeedbackContext{
			Query:    sig.UserQuery,
			Response: sig.Response,
			Reason:   sig.Comment,
		}
	}

	job, err := o.jobs.CreateJob(ctx, documentID, triggerIDs, o.opts.AutoApply)
	if err != nil {
		return nil, err
	}

	if err := o.runJob(ctx, job, contexts); err != nil {
		if ferr := o.jobs.MarkFailed(ctx, job.ID, err.Error()); ferr != nil {
			log.Printf("evolution: marking job %s failed: %v", job.ID, ferr)
		}
		job.Status = StatusFailed
		job.Error = err.Error()
		o.notify(job)
		return job, err
	}
	return job, nil
}

// runJob executes the state machine for one job. Trigger feedback is marked
// processed only when the job completes; a failure leaves it eligible for a
// retry on the next run.
func (o *Orchestrator) runJob(ctx context.Context, job *Job, contexts []FeedbackContext) error {
	baseline, err := o.docs.GetContent(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document content: %w", err)
	}

	if err := o.transition(ctx, job, StatusGenerating); err != nil {
		return err
	}
	// Zero candidates is a valid outcome: the job completes with no winner
	// rather than failing.
	job.Candidates = o.generator.Generate(ctx, job.DocumentID, baseline, contexts)

	var winner *EvaluationResult
	if len(job.Candidates) > 0 {
		if err := o.transition(ctx, job, StatusEvaluating); err != nil {
			return err
		}
		questions := sampleQuestions(contexts, o.opts.MaxSampleQuestions)
		if len(questions) == 0 {
			return fmt.Errorf("no sample questions available for evaluation")
		}

		job.Results = make([]EvaluationResult, 0, len(job.Candidates))
		for _, cand := range job.Candidates {
			comparisons := o.judge.Compare(ctx, baseline, cand.Content, questions)
			if len(comparisons) == 0 {
				return fmt.Errorf("evaluating candidate %s: all comparisons failed", cand.ID)
			}
			job.Results = append(job.Results, Aggregate(cand.ID, cand.Kind, comparisons))
		}

		// Selection happens only once every candidate has a full result.
		winner = Select(job.Results, o.opts.MinWinMargin)

		for i, cand := range job.Candidates {
			selected := winner != nil && winner.CandidateID == cand.ID
			if err := o.jobs.SaveCandidateResult(ctx, job.ID, cand, job.Results[i], selected); err != nil {
				return err
			}
		}
	}

	// History is recorded before any content write so a failed update never
	// leaves an adopted candidate without provenance.
	if err := o.recordHistory(ctx, job, baseline, winner); err != nil {
		return err
	}

	if winner != nil {
		job.WinnerID = winner.CandidateID
		if job.AutoApply {
			if err := o.adopt(ctx, job, *winner); err != nil {
				return err
			}
		}
	}

	if err := o.jobs.CompleteJob(ctx, job.ID, job.WinnerID); err != nil {
		return err
	}
	job.Status = StatusCompleted
	o.notify(job)

	if len(job.TriggerFeedback) > 0 {
		if err := o.signals.MarkProcessed(ctx, job.TriggerFeedback); err != nil {
			return fmt.Errorf("marking feedback processed: %w", err)
		}
	}
	return nil
}

// adopt rewrites the document with the winning candidate's content and bumps
// its generation.
func (o *Orchestrator) adopt(ctx context.Context, job *Job, winner EvaluationResult) error {
	if err := o.transition(ctx, job, StatusUpdating); err != nil {
		return err
	}

	var content string
	for _, cand := range job.Candidates {
		if cand.ID == winner.CandidateID {
			content = cand.Content
			break
		}
	}
	if content == "" {
		return fmt.Errorf("winner %s not found among candidates", winner.CandidateID)
	}

	if err := o.docs.UpdateContent(ctx, job.DocumentID, content); err != nil {
		return fmt.Errorf("updating document content: %w", err)
	}
	if err := o.docs.IncrementGeneration(ctx, job.DocumentID); err != nil {
		return fmt.Errorf("incrementing generation: %w", err)
	}
	return nil
}

// recordHistory writes one outcome record per evaluated candidate.
func (o *Orchestrator) recordHistory(ctx context.Context, job *Job, baseline string, winner *EvaluationResult) error {
	for i, cand := range job.Candidates {
		result := job.Results[i]
		outcome := "rejected"
		if winner != nil && winner.CandidateID == cand.ID {
			outcome = "adopted"
		}
		if _, err := o.jobs.InsertHistory(ctx, HistoryRecord{
			JobID:         job.ID,
			DocumentID:    job.DocumentID,
			CandidateID:   cand.ID,
			Kind:          cand.Kind,
			Outcome:       outcome,
			WinRate:       result.WinRate,
			MeanScore:     result.MeanScore,
			BeforeSnippet: truncate(baseline, snippetLen),
			AfterSnippet:  truncate(cand.Content, snippetLen),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, job *Job, status JobStatus) error {
	if err := o.jobs.SetStatus(ctx, job.ID, status); err != nil {
		return err
	}
	job.Status = status
	o.notify(job)
	return nil
}

func (o *Orchestrator) notify(job *Job) {
	if o.progress != nil {
		o.progress(job.ID, job.DocumentID, job.Status)
	}
}

// sampleQuestions collects distinct feedback queries as evaluation questions,
// capped at max, preserving arrival order.
func sampleQuestions(contexts []FeedbackContext, max int) []string {
	seen := make(map[string]bool)
	var questions []string
	for _, c := range contexts {
		if c.Query == "" || seen[c.Query] {
			continue
		}
		seen[c.Query] = true
		questions = append(questions, c.Query)
		if len(questions) >= max {
			break
		}
	}
	return questions
}
