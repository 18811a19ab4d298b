// Package store is the local sqlite mirror behind the calendar backends. It
// persists OAuth tokens and event payloads so dry-run mode can answer
// list-between queries without a network.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	provider   TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	start_ts     REAL NOT NULL,
	end_ts       REAL NOT NULL,
	payload_json TEXT NOT NULL,
	updated_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_window ON events(start_ts, end_ts);
`

// Store wraps a sqlite database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure store schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveToken upserts a provider's serialized token.
func (s *Store) SaveToken(provider, data string) error {
	_, err := s.db.Exec(
		`INSERT INTO tokens(provider, data, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(provider) DO UPDATE SET data=excluded.data, updated_at=CURRENT_TIMESTAMP`,
		provider, data)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the stored token for provider, or "" when none exists.
func (s *Store) LoadToken(provider string) (string, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM tokens WHERE provider = ?`, provider).Scan(&data)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return data, nil
}

// SavePayload mirrors an arbitrary backend payload. Entries without parseable
// start and end are silently ignored; the mirror only serves window queries.
func (s *Store) SavePayload(eventID string, payload map[string]any) error {
	if eventID == "" {
		eventID = fmt.Sprintf("payload-%x", uuid.New())
	}
	startISO := coerceISO(payload["start"])
	endISO := coerceISO(payload["end"])
	if startISO == "" || endISO == "" {
		return nil
	}
	startTS, err := isoToTimestamp(startISO)
	if err != nil {
		return nil
	}
	endTS, err := isoToTimestamp(endISO)
	if err != nil {
		return nil
	}

	title, _ := payload["summary"].(string)
	if title == "" {
		title, _ = payload["title"].(string)
	}
	if title == "" {
		title = eventID
	}
	if _, ok := payload["id"]; !ok {
		payload["id"] = eventID
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events(id, title, start_ts, end_ts, payload_json, updated_at)
		 VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, start_ts=excluded.start_ts, end_ts=excluded.end_ts,
		   payload_json=excluded.payload_json, updated_at=CURRENT_TIMESTAMP`,
		eventID, title, startTS, endTS, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save event payload: %w", err)
	}
	return nil
}

// ListBetween returns stored payloads overlapping the half-open window.
func (s *Store) ListBetween(timeMinISO, timeMaxISO string) ([]map[string]any, error) {
	minTS, err := isoToTimestamp(timeMinISO)
	if err != nil {
		return nil, fmt.Errorf("invalid time_min: %w", err)
	}
	maxTS, err := isoToTimestamp(timeMaxISO)
	if err != nil {
		return nil, fmt.Errorf("invalid time_max: %w", err)
	}
	rows, err := s.db.Query(
		`SELECT payload_json FROM events WHERE start_ts < ? AND end_ts > ? ORDER BY start_ts`,
		maxTS, minTS)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

// ListAll returns every stored payload ordered by start time.
func (s *Store) ListAll() ([]map[string]any, error) {
	rows, err := s.db.Query(`SELECT payload_json FROM events ORDER BY start_ts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

func scanPayloads(rows *sql.Rows) ([]map[string]any, error) {
	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			continue
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// coerceISO extracts an ISO timestamp from either a plain string or an
// object holding a dateTime or date field.
func coerceISO(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["dateTime"].(string); ok {
			return s
		}
		if s, ok := v["date"].(string); ok {
			return s
		}
	}
	return ""
}

func isoToTimestamp(value string) (float64, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return float64(t.UnixNano()) / float64(time.Second), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return float64(t.UnixNano()) / float64(time.Second), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", value)
}
