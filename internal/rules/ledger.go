package rules

import (
	"context"
	"fmt"
)

// Ledger applies online score reinforcement to adopted rules as live usage
// feedback arrives. Updates are asymmetric: a bad rating costs more than a
// good rating earns, so a rule must be reliably helpful to keep its score.
// Each (rule, feedback) pair is applied at most once, and the clamped
// add/subtract updates commute across replay orders.
type Ledger struct {
	store     *Store
	deltaUp   float64
	deltaDown float64
}

// NewLedger creates a Ledger with the given reinforcement deltas.
// deltaDown should exceed deltaUp.
func NewLedger(store *Store, deltaUp, deltaDown float64) *Ledger {
	return &Ledger{
		store:     store,
		deltaUp:   deltaUp,
		deltaDown: deltaDown,
	}
}

// Apply adjusts a rule's score for one feedback event. A good rating adds
// deltaUp, a bad rating subtracts deltaDown; the score is clamped to [0, 1].
// A rule whose score decays to zero is disabled. Re-applying the same
// feedback event is a no-op.
func (l *Ledger) Apply(ctx context.Context, ruleID, feedbackID string, good bool) error {
	delta := -l.deltaDown
	if good {
		delta = l.deltaUp
	}

	first, err := l.store.RecordAdjustment(ctx, ruleID, feedbackID, delta)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// Compare-and-swap loop: concurrent feedback for the same rule must not
	// lose updates.
	for {
		rule, err := l.store.Get(ctx, ruleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return fmt.Errorf("rule not found: %s", ruleID)
		}

		newScore := clamp(rule.Score + delta)
		ok, err := l.store.CompareAndSwapScore(ctx, ruleID, rule.Score, newScore)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if newScore == 0 && rule.Enabled {
			if err := l.store.SetEnabled(ctx, ruleID, false); err != nil {
				return err
			}
		}
		return nil
	}
}

// clamp bounds a score to [0, 1]. Values within float rounding error of the
// bounds snap to them so that repeated increments and decrements cancel cleanly.
func clamp(v float64) float64 {
	if v < 1e-9 {
		return 0
	}
	if v > 1-1e-9 {
		return 1
	}
	return v
}
