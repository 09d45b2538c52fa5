package feedback

import (
	"context"
	"fmt"

	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/rules"
)

// Recorder handles incoming feedback from the consuming application: it
// persists the signal, bumps the document's cumulative counters, and applies
// the fitness ledger to every rule the response used.
type Recorder struct {
	store  *Store
	docs   *knowledge.Store
	ledger *rules.Ledger
}

// NewRecorder creates a Recorder.
func NewRecorder(store *Store, docs *knowledge.Store, ledger *rules.Ledger) *Recorder {
	return &Recorder{
		store:  store,
		docs:   docs,
		ledger: ledger,
	}
}

// Record persists one feedback signal and reinforces the rules that were
// applied to the rated response. Ledger updates are idempotent per signal, so
// a retried Record call cannot double-adjust a rule.
func (r *Recorder) Record(ctx context.Context, sig Signal, appliedRuleIDs []string) (*Signal, error) {
	saved, err := r.store.Insert(ctx, sig)
	if err != nil {
		return nil, err
	}

	if err := r.docs.RecordRating(ctx, saved.DocumentID, saved.Rating == RatingGood); err != nil {
		return nil, fmt.Errorf("recording document rating: %w", err)
	}

	for _, ruleID := range appliedRuleIDs {
		if err := r.ledger.Apply(ctx, ruleID, saved.ID, saved.Rating == RatingGood); err != nil {
			return nil, fmt.Errorf("applying ledger update to rule %s: %w", ruleID, err)
		}
	}

	return saved, nil
}
