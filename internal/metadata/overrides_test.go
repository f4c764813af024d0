package metadata

import (
	"testing"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/shared"
)

func newOverrides(t *testing.T) *Overrides {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	overrides, err := NewOverrides(db)
	if err != nil {
		t.Fatalf("failed to create overrides: %v", err)
	}
	return overrides
}

func TestOverrides(t *testing.T) {
	key := objects.CreateKey(objects.TypeLocal, "song-1", objects.KindSong)

	t.Run("unset keys read back zero-valued", func(t *testing.T) {
		overrides := newOverrides(t)

		override, err := overrides.Get(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if override != (Override{}) {
			t.Errorf("expected a zero override, got %+v", override)
		}
	})

	t.Run("Set replaces the stored override", func(t *testing.T) {
		overrides := newOverrides(t)

		if err := overrides.Set(key, Override{Title: "First", Genre: "Rock"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := overrides.Set(key, Override{Title: "Second"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		override, err := overrides.Get(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if override.Title != "Second" || override.Genre != "" {
			t.Errorf("expected a full replacement, got %+v", override)
		}
	})

	t.Run("Assign merges non-zero fields only", func(t *testing.T) {
		overrides := newOverrides(t)

		if err := overrides.Set(key, Override{Title: "Kept", Genre: "Rock"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := overrides.Assign(key, Override{Artist: "New Artist", Duration: 180}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		override, err := overrides.Get(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if override.Title != "Kept" || override.Genre != "Rock" {
			t.Errorf("expected existing fields kept, got %+v", override)
		}
		if override.Artist != "New Artist" || override.Duration != 180 {
			t.Errorf("expected new fields merged, got %+v", override)
		}
	})

	t.Run("Reset drops the override", func(t *testing.T) {
		overrides := newOverrides(t)

		if err := overrides.Set(key, Override{Title: "Gone"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := overrides.Reset(key); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		override, err := overrides.Get(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if override != (Override{}) {
			t.Errorf("expected the override gone, got %+v", override)
		}
	})

	t.Run("Apply overlays the song in place", func(t *testing.T) {
		overrides := newOverrides(t)
		song := &objects.Song{
			Type:     objects.TypeLocal,
			ID:       "song-1",
			Title:    "Original",
			Album:    "Original Album",
			Duration: 100,
		}

		if err := overrides.Assign(objects.KeyOf(song), Override{Title: "Corrected", Artist: "Someone"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := overrides.Apply(song); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if song.Title != "Corrected" {
			t.Errorf("unexpected title: %q", song.Title)
		}
		if len(song.Artists) != 1 || song.Artists[0].Title != "Someone" {
			t.Errorf("unexpected artists: %v", song.Artists)
		}
		// Fields the override does not carry stay as they were.
		if song.Album != "Original Album" || song.Duration != 100 {
			t.Errorf("expected untouched fields kept, got %+v", song)
		}
	})
}
