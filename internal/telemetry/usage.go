// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry keeps a local ledger of token usage per generation.
// Records stay on the user's machine; nothing is ever transmitted.
package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id                TEXT PRIMARY KEY,
    conversation_id   TEXT NOT NULL,
    model             TEXT NOT NULL,
    prompt_tokens     INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    recorded_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_model        ON usage_records(model);
CREATE INDEX IF NOT EXISTS idx_usage_conversation ON usage_records(conversation_id);
CREATE INDEX IF NOT EXISTS idx_usage_recorded_at  ON usage_records(recorded_at);
`

// =============================================================================
// USAGE STORE
// =============================================================================

// UsageStore records per-generation token usage in a local SQLite database.
type UsageStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the usage database at path.
func Open(path string) (*UsageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &UsageStore{db: db}, nil
}

// Close releases the database handle.
func (s *UsageStore) Close() error {
	return s.db.Close()
}

// Record stores one generation's token usage.
func (s *UsageStore) Record(conversationID, model string, promptTokens, completionTokens int) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_records (id, conversation_id, model, prompt_tokens, completion_tokens, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, model, promptTokens, completionTokens, time.Now().UTC())
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

// Totals is aggregate token usage.
type Totals struct {
	Generations      int
	PromptTokens     int
	CompletionTokens int
}

// Total returns PromptTokens + CompletionTokens.
func (t Totals) Total() int {
	return t.PromptTokens + t.CompletionTokens
}

// ModelTotals is aggregate usage for one model.
type ModelTotals struct {
	Model string
	Totals
}

// Totals returns usage aggregated over all generations.
func (s *UsageStore) Totals() (Totals, error) {
	var t Totals
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		FROM usage_records`).Scan(&t.Generations, &t.PromptTokens, &t.CompletionTokens)
	return t, err
}

// TotalsByModel returns usage grouped by model, heaviest first.
func (s *UsageStore) TotalsByModel() ([]ModelTotals, error) {
	rows, err := s.db.Query(`
		SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		FROM usage_records
		GROUP BY model
		ORDER BY SUM(prompt_tokens) + SUM(completion_tokens) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelTotals
	for rows.Next() {
		var mt ModelTotals
		if err := rows.Scan(&mt.Model, &mt.Generations, &mt.PromptTokens, &mt.CompletionTokens); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// ConversationTotals returns usage for a single conversation.
func (s *UsageStore) ConversationTotals(conversationID string) (Totals, error) {
	var t Totals
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		FROM usage_records
		WHERE conversation_id = ?`, conversationID).Scan(&t.Generations, &t.PromptTokens, &t.CompletionTokens)
	return t, err
}

// Since returns usage recorded at or after the cutoff.
func (s *UsageStore) Since(cutoff time.Time) (Totals, error) {
	var t Totals
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		FROM usage_records
		WHERE recorded_at >= ?`, cutoff.UTC()).Scan(&t.Generations, &t.PromptTokens, &t.CompletionTokens)
	return t, err
}
