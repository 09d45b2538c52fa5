package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/db"
)

// Store manages persistence of feedback signals.
type Store struct {
	db *db.DB
}

// NewStore creates a new feedback store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert persists a new signal. If sig.ID is empty a UUID is generated.
func (s *Store) Insert(ctx context.Context, sig Signal) (*Signal, error) {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if !sig.Rating.Valid() {
		return nil, fmt.Errorf("invalid rating %q", sig.Rating)
	}
	sig.CreatedAt = time.Now().UTC()

	processed := 0
	if sig.Processed {
		processed = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, document_id, message_id, user_query, response, rating, comment, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.DocumentID, sig.MessageID, sig.UserQuery, sig.Response, string(sig.Rating), sig.Comment, processed, sig.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting feedback: %w", err)
	}
	return &sig, nil
}

// List returns signals matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Signal, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.Rating != "" {
		clauses = append(clauses, "rating = ?")
		args = append(args, string(filter.Rating))
	}
	if filter.Unprocessed {
		clauses = append(clauses, "processed = 0")
	}

	query := `SELECT id, document_id, message_id, user_query, response, rating, comment, processed, created_at FROM feedback`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var (
			sig       Signal
			rating    string
			processed int
		)
		if err := rows.Scan(&sig.ID, &sig.DocumentID, &sig.MessageID, &sig.UserQuery, &sig.Response, &rating, &sig.Comment, &processed, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		sig.Rating = Rating(rating)
		sig.Processed = processed == 1
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// EligibleDocuments returns the IDs of documents whose unprocessed bad
// feedback count has reached the threshold, with the counts.
func (s *Store) EligibleDocuments(ctx context.Context, threshold int) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, COUNT(*) AS n FROM feedback
		 WHERE rating = 'bad' AND processed = 0
		 GROUP BY document_id HAVING n >= ?`,
		threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("querying eligible documents: %w", err)
	}
	defer rows.Close()

	eligible := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning eligible document: %w", err)
		}
		eligible[id] = n
	}
	return eligible, rows.Err()
}

// MarkProcessed flips the processed flag on the given signals.
func (s *Store) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET processed = 1 WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return fmt.Errorf("marking feedback processed: %w", err)
	}
	return nil
}
