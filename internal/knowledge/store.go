package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evolvekit/kb-evolve/internal/db"
)

// Store manages persistence of knowledge documents. It implements Source.
type Store struct {
	db *db.DB
}

// NewStore creates a new document store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new document. If d.ID is empty a UUID is generated.
func (s *Store) Create(ctx context.Context, d Document) (*Document, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, generation, good_count, bad_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, d.Generation, d.GoodCount, d.BadCount, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	return &d, nil
}

// Get retrieves a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, generation, good_count, bad_count, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Content, &d.Generation, &d.GoodCount, &d.BadCount, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return &d, nil
}

// List returns all documents ordered by most recently updated.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, generation, good_count, bad_count, created_at, updated_at
		 FROM documents ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Generation, &d.GoodCount, &d.BadCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetContent returns the current content of a document.
func (s *Store) GetContent(ctx context.Context, documentID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE id = ?`, documentID,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting content: %w", err)
	}
	return content, nil
}

// UpdateContent replaces the content of a document.
func (s *Store) UpdateContent(ctx context.Context, documentID, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = ?, updated_at = ? WHERE id = ?`,
		content, time.Now().UTC(), documentID,
	)
	if err != nil {
		return fmt.Errorf("updating content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementGeneration bumps the generation counter after a winning candidate
// is adopted.
func (s *Store) IncrementGeneration(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET generation = generation + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), documentID,
	)
	if err != nil {
		return fmt.Errorf("incrementing generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRating bumps the cumulative good or bad counter.
func (s *Store) RecordRating(ctx context.Context, documentID string, good bool) error {
	column := "bad_count"
	if good {
		column = "good_count"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET `+column+` = `+column+` + 1 WHERE id = ?`,
		documentID,
	)
	if err != nil {
		return fmt.Errorf("recording rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
