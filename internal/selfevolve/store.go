package selfevolve

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/db"
)

// Store persists synthetic questions and weakness reports.
type Store struct {
	db *db.DB
}

// NewStore creates a self-evolution Store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// InsertQuestion persists one synthetic question and returns it with its id.
func (s *Store) InsertQuestion(ctx context.Context, q Question) (*Question, error) {
	if !q.Category.Valid() {
		return nil, fmt.Errorf("invalid question category %q", q.Category)
	}
	if !q.Difficulty.Valid() {
		return nil, fmt.Errorf("invalid question difficulty %q", q.Difficulty)
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO synthetic_questions (id, document_id, category, difficulty, question, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.DocumentID, q.Category, q.Difficulty, q.Question, q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting synthetic question: %w", err)
	}
	return &q, nil
}

// ListQuestions returns a document's synthetic questions, oldest first.
func (s *Store) ListQuestions(ctx context.Context, documentID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, category, difficulty, question, created_at
		 FROM synthetic_questions WHERE document_id = ? ORDER BY created_at ASC, id ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing synthetic questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.DocumentID, &q.Category, &q.Difficulty, &q.Question, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning synthetic question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertWeakness persists one diagnosed weakness and returns it with its id.
func (s *Store) InsertWeakness(ctx context.Context, w Weakness) (*Weakness, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weakness_reports (id, document_id, question_id, kind, score_without, score_with, suggested_rule_type, adopted_rule_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.DocumentID, w.QuestionID, w.Kind, w.ScoreWithout, w.ScoreWith,
		string(w.SuggestedRuleType), w.AdoptedRuleID, w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting weakness report: %w", err)
	}
	return &w, nil
}

// SetAdoptedRule links a weakness report to the rule created for it.
func (s *Store) SetAdoptedRule(ctx context.Context, weaknessID, ruleID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE weakness_reports SET adopted_rule_id = ? WHERE id = ?`, ruleID, weaknessID)
	if err != nil {
		return fmt.Errorf("linking adopted rule: %w", err)
	}
	return nil
}

// ListWeaknesses returns a document's weakness reports, newest first.
func (s *Store) ListWeaknesses(ctx context.Context, documentID string) ([]Weakness, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, question_id, kind, score_without, score_with, suggested_rule_type, adopted_rule_id, created_at
		 FROM weakness_reports WHERE document_id = ? ORDER BY created_at DESC, id ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing weakness reports: %w", err)
	}
	defer rows.Close()

	var weaknesses []Weakness
	for rows.Next() {
		var w Weakness
		if err := rows.Scan(&w.ID, &w.DocumentID, &w.QuestionID, &w.Kind, &w.ScoreWithout,
			&w.ScoreWith, &w.SuggestedRuleType, &w.AdoptedRuleID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning weakness report: %w", err)
		}
		weaknesses = append(weaknesses, w)
	}
	return weaknesses, rows.Err()
}
