package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with kb-evolve-specific helpers.
type DB struct {
	*sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    generation INTEGER NOT NULL DEFAULT 0,
    good_count INTEGER NOT NULL DEFAULT 0,
    bad_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL DEFAULT '',
    user_query TEXT NOT NULL DEFAULT '',
    response TEXT NOT NULL DEFAULT '',
    rating TEXT NOT NULL CHECK(rating IN ('good','bad')),
    comment TEXT NOT NULL DEFAULT '',
    processed INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_feedback_document ON feedback(document_id, rating, processed);
CREATE INDEX IF NOT EXISTS idx_feedback_message ON feedback(message_id);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    rule_type TEXT NOT NULL CHECK(rule_type IN ('context','clarification','format','misconception','cross_reference')),
    content TEXT NOT NULL,
    trigger_pattern TEXT NOT NULL DEFAULT '',
    generation INTEGER NOT NULL DEFAULT 0,
    score REAL NOT NULL DEFAULT 0.5,
    enabled INTEGER NOT NULL DEFAULT 1,
    source_feedback TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rules_document ON rules(document_id, enabled);

CREATE TABLE IF NOT EXISTS rule_adjustments (
    rule_id TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    feedback_id TEXT NOT NULL,
    delta REAL NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY(rule_id, feedback_id)
);

CREATE TABLE IF NOT EXISTS evolution_jobs (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','generating','evaluating','updating','completed','failed')),
    trigger_feedback TEXT NOT NULL DEFAULT '[]',
    winner_id TEXT,
    auto_apply INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT (datetime('now')),
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_document ON evolution_jobs(document_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON evolution_jobs(status);

CREATE TABLE IF NOT EXISTS job_candidates (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES evolution_jobs(id) ON DELETE CASCADE,
    mutation_kind TEXT NOT NULL,
    content TEXT NOT NULL,
    win_rate REAL NOT NULL DEFAULT 0,
    mean_score REAL NOT NULL DEFAULT 0,
    helpfulness REAL NOT NULL DEFAULT 0,
    correctness REAL NOT NULL DEFAULT 0,
    coherence REAL NOT NULL DEFAULT 0,
    sample_count INTEGER NOT NULL DEFAULT 0,
    selected INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_candidates_job ON job_candidates(job_id);

CREATE TABLE IF NOT EXISTS evolution_history (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    mutation_kind TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('adopted','rejected')),
    win_rate REAL NOT NULL DEFAULT 0,
    mean_score REAL NOT NULL DEFAULT 0,
    before_snippet TEXT NOT NULL DEFAULT '',
    after_snippet TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_document ON evolution_history(document_id);
CREATE INDEX IF NOT EXISTS idx_history_job ON evolution_history(job_id);

CREATE TABLE IF NOT EXISTS synthetic_questions (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    category TEXT NOT NULL CHECK(category IN ('factual','procedural','clarification','comparison','edge_case','implicit_knowledge')),
    difficulty TEXT NOT NULL DEFAULT 'medium' CHECK(difficulty IN ('easy','medium','hard')),
    question TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_questions_document ON synthetic_questions(document_id);

CREATE TABLE IF NOT EXISTS weakness_reports (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    question_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL CHECK(kind IN ('low_quality','rules_ineffective')),
    score_without REAL NOT NULL DEFAULT 0,
    score_with REAL NOT NULL DEFAULT 0,
    suggested_rule_type TEXT NOT NULL DEFAULT '',
    adopted_rule_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_weaknesses_document ON weakness_reports(document_id);
`
