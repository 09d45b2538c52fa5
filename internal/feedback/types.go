package feedback

import "time"

// Rating is the user's verdict on a response.
type Rating string

const (
	RatingGood Rating = "good"
	RatingBad  Rating = "bad"
)

// Valid reports whether r is a recognized rating.
func (r Rating) Valid() bool {
	return r == RatingGood || r == RatingBad
}

// Signal is one piece of user feedback on a response generated from a
// document. Immutable once created except for the processed flag, which is
// set exactly once by the evolution cycle that consumes it.
type Signal struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	MessageID  string    `json:"message_id,omitempty"`
	UserQuery  string    `json:"user_query"`
	Response   string    `json:"response"`
	Rating     Rating    `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	Processed  bool      `json:"processed"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilter controls which signals are returned by List.
type ListFilter struct {
	DocumentID  string
	Rating      Rating
	Unprocessed bool
	Limit       int
}
