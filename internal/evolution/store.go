package evolution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/db"
)

// Store persists jobs, their candidate results, and adoption history.
type Store struct {
	db *db.DB
}

// NewStore creates an evolution Store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateJob inserts a new pending job and returns it.
func (s *Store) CreateJob(ctx context.Context, documentID string, triggerFeedback []string, autoApply bool) (*Job, error) {
	job := &Job{
		ID:              uuid.New().String(),
		DocumentID:      documentID,
		Status:          StatusPending,
		TriggerFeedback: triggerFeedback,
		AutoApply:       autoApply,
		StartedAt:       time.Now().UTC(),
	}

	trigger, err := json.Marshal(job.TriggerFeedback)
	if err != nil {
		return nil, fmt.Errorf("marshaling trigger feedback: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evolution_jobs (id, document_id, status, trigger_feedback, auto_apply, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.DocumentID, job.Status, string(trigger), boolToInt(job.AutoApply), job.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	return job, nil
}

// SetStatus advances a job to the given state.
func (s *Store) SetStatus(ctx context.Context, jobID string, status JobStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evolution_jobs SET status = ? WHERE id = ?`, status, jobID)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return nil
}

// MarkFailed terminates a job with an error message.
func (s *Store) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evolution_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}
	return nil
}

// CompleteJob terminates a job successfully, recording the winner if any.
func (s *Store) CompleteJob(ctx context.Context, jobID, winnerID string) error {
	var winner any
	if winnerID != "" {
		winner = winnerID
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE evolution_jobs SET status = ?, winner_id = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, winner, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// SaveCandidateResult persists one evaluated candidate under its job.
func (s *Store) SaveCandidateResult(ctx context.Context, jobID string, cand Candidate, result EvaluationResult, selected bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_candidates (id, job_id, mutation_kind, content, win_rate, mean_score, helpfulness, correctness, coherence, sample_count, selected)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cand.ID, jobID, cand.Kind, cand.Content,
		result.WinRate, result.MeanScore,
		result.Metrics.Helpfulness, result.Metrics.Correctness, result.Metrics.Coherence,
		result.SampleCount, boolToInt(selected))
	if err != nil {
		return fmt.Errorf("saving candidate result: %w", err)
	}
	return nil
}

// InsertHistory appends one immutable adoption-outcome record.
func (s *Store) InsertHistory(ctx context.Context, rec HistoryRecord) (*HistoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evolution_history (id, job_id, document_id, candidate_id, mutation_kind, outcome, win_rate, mean_score, before_snippet, after_snippet, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, rec.DocumentID, rec.CandidateID, rec.Kind, rec.Outcome,
		rec.WinRate, rec.MeanScore, rec.BeforeSnippet, rec.AfterSnippet, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting history record: %w", err)
	}
	return &rec, nil
}

// GetJob fetches one job with its evaluated candidates.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, status, trigger_feedback, winner_id, auto_apply, error, started_at, completed_at
		 FROM evolution_jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mutation_kind, content, win_rate, mean_score, helpfulness, correctness, coherence, sample_count
		 FROM job_candidates WHERE job_id = ? ORDER BY win_rate DESC`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching job candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cand Candidate
		var result EvaluationResult
		if err := rows.Scan(&cand.ID, &cand.Kind, &cand.Content,
			&result.WinRate, &result.MeanScore,
			&result.Metrics.Helpfulness, &result.Metrics.Correctness, &result.Metrics.Coherence,
			&result.SampleCount); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		cand.SourceDocumentID = job.DocumentID
		result.CandidateID = cand.ID
		result.Kind = cand.Kind
		job.Candidates = append(job.Candidates, cand)
		job.Results = append(job.Results, result)
	}
	return job, rows.Err()
}

// ListJobs returns jobs newest first, optionally filtered by document.
func (s *Store) ListJobs(ctx context.Context, documentID string, limit int) ([]Job, error) {
	query := `SELECT id, document_id, status, trigger_feedback, winner_id, auto_apply, error, started_at, completed_at
	          FROM evolution_jobs`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListHistory returns adoption history newest first, optionally filtered by
// document.
func (s *Store) ListHistory(ctx context.Context, documentID string, limit int) ([]HistoryRecord, error) {
	query := `SELECT id, job_id, document_id, candidate_id, mutation_kind, outcome, win_rate, mean_score, before_snippet, after_snippet, created_at
	          FROM evolution_history`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.DocumentID, &rec.CandidateID, &rec.Kind,
			&rec.Outcome, &rec.WinRate, &rec.MeanScore, &rec.BeforeSnippet, &rec.AfterSnippet, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountActiveJobs returns how many jobs are in a non-terminal state for the
// document, used to avoid piling concurrent jobs onto one target.
func (s *Store) CountActiveJobs(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evolution_jobs
		 WHERE document_id = ? AND status NOT IN (?, ?)`,
		documentID, StatusCompleted, StatusFailed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active jobs: %w", err)
	}
	return n, nil
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		job         Job
		trigger     string
		winnerID    sql.NullString
		autoApply   int
		completedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.DocumentID, &job.Status, &trigger,
		&winnerID, &autoApply, &job.Error, &job.StartedAt, &completedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(trigger), &job.TriggerFeedback); err != nil {
		job.TriggerFeedback = nil
	}
	job.WinnerID = winnerID.String
	job.AutoApply = autoApply != 0
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
