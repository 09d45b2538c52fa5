package rules

import "time"

// Type classifies what an interpretation rule adds to a document when a
// response is generated.
type Type string

const (
	TypeContext        Type = "context"
	TypeClarification  Type = "clarification"
	TypeFormat         Type = "format"
	TypeMisconception  Type = "misconception"
	TypeCrossReference Type = "cross_reference"
)

// Types lists every rule type, in a stable order.
var Types = []Type{
	TypeContext,
	TypeClarification,
	TypeFormat,
	TypeMisconception,
	TypeCrossReference,
}

// Valid reports whether t is a recognized rule type.
func (t Type) Valid() bool {
	switch t {
	case TypeContext, TypeClarification, TypeFormat, TypeMisconception, TypeCrossReference:
		return true
	}
	return false
}

// Rule is an adopted interpretation rule attached to a document. Its score is
// only mutated through the Ledger; disabled rules are excluded from
// application but retained for audit.
type Rule struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	RuleType       Type      `json:"rule_type"`
	Content        string    `json:"content"`
	TriggerPattern string    `json:"trigger_pattern,omitempty"`
	Generation     int       `json:"generation"`
	Score          float64   `json:"score"`
	Enabled        bool      `json:"enabled"`
	SourceFeedback []string  `json:"source_feedback,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilter controls which rules are returned by List.
type ListFilter struct {
	DocumentID  string
	RuleType    Type
	EnabledOnly bool
}
