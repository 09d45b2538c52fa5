package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("knowledge: document not found")

// Document is a unit of knowledge content. The evolution engine reads its
// content and requests updates on adoption; generation counts how many times
// an evolved variant has replaced the content.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	Generation int       `json:"generation"`
	GoodCount  int       `json:"good_count"`
	BadCount   int       `json:"bad_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Source is the content-source interface the evolution engine consumes.
// A successful UpdateContent is not guaranteed to be immediately visible to
// downstream retrieval systems; callers must not assume read-after-write
// consistency beyond their own state.
type Source interface {
	GetContent(ctx context.Context, documentID string) (string, error)
	UpdateContent(ctx context.Context, documentID, content string) error
}
