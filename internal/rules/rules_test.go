package rules

import (
	"context"
	"math"
	"testing"

	"github.com/evolvekit/kb-evolve/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	// Parent document for foreign keys.
	if _, err := database.Exec(`INSERT INTO documents (id, content) VALUES ('doc-1', 'content')`); err != nil {
		t.Fatalf("seeding document: %v", err)
	}
	return NewStore(database)
}

func insertRule(t *testing.T, store *Store, r Rule) *Rule {
	t.Helper()
	if r.DocumentID == "" {
		r.DocumentID = "doc-1"
	}
	if r.RuleType == "" {
		r.RuleType = TypeClarification
	}
	if r.Content == "" {
		r.Content = "Interpret 'deploy' as the staging pipeline."
	}
	saved, err := store.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return saved
}

func TestInsertRejectsInvalidType(t *testing.T) {
	store := setupStore(t)
	_, err := store.Insert(context.Background(), Rule{
		DocumentID: "doc-1",
		RuleType:   Type("bogus"),
		Content:    "x",
	})
	if err == nil {
		t.Fatal("expected error for invalid rule type")
	}
}

func TestListOrdersByScoreDescending(t *testing.T) {
	store := setupStore(t)
	insertRule(t, store, Rule{Score: 0.3, Enabled: true})
	insertRule(t, store, Rule{Score: 0.9, Enabled: true})
	insertRule(t, store, Rule{Score: 0.6, Enabled: false})

	all, err := store.List(context.Background(), ListFilter{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(all))
	}
	if all[0].Score != 0.9 || all[1].Score != 0.6 || all[2].Score != 0.3 {
		t.Errorf("unexpected order: %v, %v, %v", all[0].Score, all[1].Score, all[2].Score)
	}

	enabled, err := store.List(context.Background(), ListFilter{DocumentID: "doc-1", EnabledOnly: true})
	if err != nil {
		t.Fatalf("List enabled: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("expected 2 enabled rules, got %d", len(enabled))
	}
}

func TestApplicableRulesTriggerMatching(t *testing.T) {
	store := setupStore(t)
	always := insertRule(t, store, Rule{Score: 0.5, Enabled: true})
	deploy := insertRule(t, store, Rule{Score: 0.8, Enabled: true, TriggerPattern: "deploy"})
	insertRule(t, store, Rule{Score: 0.9, Enabled: true, TriggerPattern: "billing"})
	insertRule(t, store, Rule{Score: 0.9, Enabled: false, TriggerPattern: "deploy"})

	got, err := store.ApplicableRules(context.Background(), "doc-1", "How do I DEPLOY to staging?")
	if err != nil {
		t.Fatalf("ApplicableRules: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	// Score descending: the deploy-triggered rule first.
	if got[0].ID != deploy.ID || got[1].ID != always.ID {
		t.Errorf("unexpected rules: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestTriggerMatchesInvalidRegexFallsBack(t *testing.T) {
	if !triggerMatches("[unclosed", "an [unclosed bracket question") {
		t.Error("expected substring fallback to match")
	}
	if triggerMatches("[unclosed", "something else") {
		t.Error("expected substring fallback not to match")
	}
}

func TestLedgerAsymmetricUpdate(t *testing.T) {
	store := setupStore(t)
	ledger := NewLedger(store, 0.05, 0.10)
	rule := insertRule(t, store, Rule{Score: 0.5, Enabled: true})
	ctx := context.Background()

	// Two good events then one bad: 0.5 + 0.05 + 0.05 - 0.10 = 0.50.
	if err := ledger.Apply(ctx, rule.ID, "fb-1", true); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := ledger.Apply(ctx, rule.ID, "fb-2", true); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := ledger.Apply(ctx, rule.ID, "fb-3", false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := store.Get(ctx, rule.ID)
	if math.Abs(got.Score-0.5) > 1e-9 {
		t.Errorf("score = %v, want 0.5", got.Score)
	}
}

func TestLedgerEqualEventsNeverRaiseScore(t *testing.T) {
	store := setupStore(t)
	ledger := NewLedger(store, 0.05, 0.10)
	rule := insertRule(t, store, Rule{Score: 0.5, Enabled: true})
	ctx := context.Background()

	// Interleaved N good and N bad events; final score must not exceed initial.
	events := []bool{true, false, true, false, true, false}
	for i, good := range events {
		if err := ledger.Apply(ctx, rule.ID, "fb-"+string(rune('a'+i)), good); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	got, _ := store.Get(ctx, rule.ID)
	if got.Score > 0.5+1e-9 {
		t.Errorf("score = %v, must not exceed initial 0.5", got.Score)
	}
}

func TestLedgerIdempotentPerFeedback(t *testing.T) {
	store := setupStore(t)
	ledger := NewLedger(store, 0.05, 0.10)
	rule := insertRule(t, store, Rule{Score: 0.5, Enabled: true})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ledger.Apply(ctx, rule.ID, "fb-same", true); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	got, _ := store.Get(ctx, rule.ID)
	if math.Abs(got.Score-0.55) > 1e-9 {
		t.Errorf("score = %v, want 0.55 (single application)", got.Score)
	}
}

func TestLedgerClampsAndDisablesAtZero(t *testing.T) {
	store := setupStore(t)
	ledger := NewLedger(store, 0.05, 0.10)
	rule := insertRule(t, store, Rule{Score: 0.15, Enabled: true})
	ctx := context.Background()

	if err := ledger.Apply(ctx, rule.ID, "fb-1", false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := ledger.Apply(ctx, rule.ID, "fb-2", false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := store.Get(ctx, rule.ID)
	if got.Score != 0 {
		t.Errorf("score = %v, want 0 (clamped)", got.Score)
	}
	if got.Enabled {
		t.Error("expected rule to be disabled once score decayed to zero")
	}
}
