// package state persists per-service state as JSON blobs under stable
// string keys: enabled flags, provider ordering, credentials, sync
// snapshots. Values are wrapped in a version envelope so a future field
// rename cannot silently corrupt restored state.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS service_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// schemaVersion is the envelope version written by this build. Restored
// state with a higher version is discarded: a clean first-run beats
// guessing at a future format.
const schemaVersion = 1

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// ErrNotFound is returned when a key has no persisted state.
var ErrNotFound = errors.New("no persisted state")

// Store is the persisted key/value state store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// NewStore creates the backing table if needed.
func NewStore(db *sql.DB, logger *log.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Set persists v under key, replacing any previous value.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", key, err)
	}

	wrapped, err := json.Marshal(envelope{Version: schemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode envelope for %s: %w", key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO service_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(wrapped),
	)
	if err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", key, err)
	}
	return nil
}

// Get restores the value persisted under key into v.
// Returns ErrNotFound when nothing usable is persisted.
func (s *Store) Get(key string, v any) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM service_state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("failed to read state for %s: %w", key, err)
	}

	var wrapped envelope
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return fmt.Errorf("failed to decode state for %s: %w", key, err)
	}

	if wrapped.Version > schemaVersion {
		if s.logger != nil {
			s.logger.Warn("discarding state from a newer version", "key", key, "version", wrapped.Version)
		}
		return fmt.Errorf("%w: %s (version %d)", ErrNotFound, key, wrapped.Version)
	}

	if err := json.Unmarshal(wrapped.Data, v); err != nil {
		return fmt.Errorf("failed to decode state for %s: %w", key, err)
	}
	return nil
}

// Delete removes the value persisted under key, if any.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM service_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", key, err)
	}
	return nil
}
