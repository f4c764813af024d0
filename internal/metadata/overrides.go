package metadata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/UniMusic-app/unimusic/internal/objects"
)

const overridesSchema = `
CREATE TABLE IF NOT EXISTS metadata_overrides (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Override is a manual, user-authored correction for a single song. It
// wins over anything the providers found. Zero-valued fields leave the
// song untouched.
type Override struct {
	Title    string              `json:"title,omitempty"`
	Album    string              `json:"album,omitempty"`
	Artist   string              `json:"artist,omitempty"`
	Genre    string              `json:"genre,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Artwork  *objects.LocalImage `json:"artwork,omitempty"`
}

// Overrides persists per-song metadata corrections.
type Overrides struct {
	db *sql.DB
}

// NewOverrides prepares the table.
func NewOverrides(db *sql.DB) (*Overrides, error) {
	if _, err := db.Exec(overridesSchema); err != nil {
		return nil, fmt.Errorf("failed to create metadata overrides table: %w", err)
	}
	return &Overrides{db: db}, nil
}

// Get returns the override for a song, zero-valued when none is stored.
func (o *Overrides) Get(key objects.Key) (Override, error) {
	var raw string
	err := o.db.QueryRow(`SELECT value FROM metadata_overrides WHERE key = ?`, string(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Override{}, nil
	}
	if err != nil {
		return Override{}, fmt.Errorf("failed to read metadata override: %w", err)
	}

	var override Override
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return Override{}, fmt.Errorf("failed to decode metadata override: %w", err)
	}
	return override, nil
}

// Set replaces the override for a song.
func (o *Overrides) Set(key objects.Key, override Override) error {
	raw, err := json.Marshal(override)
	if err != nil {
		return err
	}

	_, err = o.db.Exec(
		`INSERT INTO metadata_overrides (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		string(key), string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store metadata override: %w", err)
	}
	return nil
}

// Assign merges the non-zero fields of the given override into the stored
// one, keeping the rest.
func (o *Overrides) Assign(key objects.Key, override Override) error {
	current, err := o.Get(key)
	if err != nil {
		return err
	}

	if override.Title != "" {
		current.Title = override.Title
	}
	if override.Album != "" {
		current.Album = override.Album
	}
	if override.Artist != "" {
		current.Artist = override.Artist
	}
	if override.Genre != "" {
		current.Genre = override.Genre
	}
	if override.Duration > 0 {
		current.Duration = override.Duration
	}
	if override.Artwork != nil {
		current.Artwork = override.Artwork
	}

	return o.Set(key, current)
}

// Reset drops the override for a song.
func (o *Overrides) Reset(key objects.Key) error {
	if _, err := o.db.Exec(`DELETE FROM metadata_overrides WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("failed to reset metadata override: %w", err)
	}
	return nil
}

// Apply overlays the stored override onto a song in place.
func (o *Overrides) Apply(song *objects.Song) error {
	override, err := o.Get(objects.KeyOf(song))
	if err != nil {
		return err
	}

	if override.Title != "" {
		song.Title = override.Title
	}
	if override.Album != "" {
		song.Album = override.Album
	}
	if override.Artist != "" {
		song.Artists = []objects.ArtistRef{{Title: override.Artist}}
	}
	if override.Genre != "" {
		song.Genres = []string{override.Genre}
	}
	if override.Duration > 0 {
		song.Duration = override.Duration
	}
	if override.Artwork != nil {
		song.Artwork = override.Artwork
	}
	return nil
}
