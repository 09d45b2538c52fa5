package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/db"
)

// Store manages persistence of interpretation rules and their score
// adjustment history.
type Store struct {
	db *db.DB
}

// NewStore creates a new rule store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert persists a new rule. If r.ID is empty a UUID is generated.
func (s *Store) Insert(ctx context.Context, r Rule) (*Rule, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if !r.RuleType.Valid() {
		return nil, fmt.Errorf("invalid rule type %q", r.RuleType)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	sourceJSON, err := json.Marshal(r.SourceFeedback)
	if err != nil {
		return nil, fmt.Errorf("marshalling source feedback: %w", err)
	}

	enabled := 0
	if r.Enabled {
		enabled = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, document_id, rule_type, content, trigger_pattern, generation, score, enabled, source_feedback, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DocumentID, string(r.RuleType), r.Content, r.TriggerPattern, r.Generation, r.Score, enabled, string(sourceJSON), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting rule: %w", err)
	}
	return &r, nil
}

// Get retrieves a rule by ID. Returns (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, rule_type, content, trigger_pattern, generation, score, enabled, source_feedback, created_at, updated_at
		 FROM rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// List returns rules matching the filter, ordered by score descending.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.RuleType != "" {
		clauses = append(clauses, "rule_type = ?")
		args = append(args, string(filter.RuleType))
	}
	if filter.EnabledOnly {
		clauses = append(clauses, "enabled = 1")
	}

	query := `SELECT id, document_id, rule_type, content, trigger_pattern, generation, score, enabled, source_feedback, created_at, updated_at FROM rules`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY score DESC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// SetEnabled flips the enabled flag on a rule.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

// CompareAndSwapScore updates a rule's score only if the stored score still
// matches old. Returns false if another writer got there first; callers loop.
func (s *Store) CompareAndSwapScore(ctx context.Context, id string, old, new float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET score = ?, updated_at = ? WHERE id = ? AND score = ?`,
		new, time.Now().UTC(), id, old,
	)
	if err != nil {
		return false, fmt.Errorf("updating score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordAdjustment records that a feedback event adjusted a rule. Returns
// false if this (rule, feedback) pair was already recorded, which callers use
// to make ledger updates idempotent per feedback event.
func (s *Store) RecordAdjustment(ctx context.Context, ruleID, feedbackID string, delta float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rule_adjustments (rule_id, feedback_id, delta) VALUES (?, ?, ?)`,
		ruleID, feedbackID, delta,
	)
	if err != nil {
		return false, fmt.Errorf("recording adjustment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanRule(sc interface{ Scan(...any) error }) (*Rule, error) {
	var (
		r          Rule
		ruleType   string
		enabled    int
		sourceJSON string
	)
	err := sc.Scan(&r.ID, &r.DocumentID, &ruleType, &r.Content, &r.TriggerPattern, &r.Generation, &r.Score, &enabled, &sourceJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RuleType = Type(ruleType)
	r.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(sourceJSON), &r.SourceFeedback); err != nil {
		r.SourceFeedback = nil
	}
	return &r, nil
}
