package objects

import (
	"errors"
	"testing"

	"github.com/UniMusic-app/unimusic/internal/shared"
)

func TestKeys(t *testing.T) {
	t.Run("round-trip", func(t *testing.T) {
		key := CreateKey(TypeCatalog, "song-123", KindSong)

		serviceType, id, kind, err := ParseKey(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if serviceType != TypeCatalog || id != "song-123" || kind != KindSong {
			t.Errorf("got (%s, %s, %s)", serviceType, id, kind)
		}
	})

	t.Run("ids may contain the separator", func(t *testing.T) {
		key := CreateKey(TypeLocal, "music/subdir/song.mp3", KindSong)

		_, id, _, err := ParseKey(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "music/subdir/song.mp3" {
			t.Errorf("expected path id to survive, got %q", id)
		}
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		if _, _, _, err := ParseKey("not-a-key"); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("KeyOf uses the entity identity", func(t *testing.T) {
		song := &Song{Type: TypeVideo, ID: "abc"}
		if KeyOf(song) != CreateKey(TypeVideo, "abc", KindSong) {
			t.Error("expected identical keys")
		}
	})
}

func TestCache(t *testing.T) {
	t.Run("resolves cached items", func(t *testing.T) {
		cache := NewCache()
		song := &Song{Type: TypeLocal, ID: "a", Title: "first"}
		cache.Cache(song)

		got, err := cache.SongFromKey(KeyOf(song))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != song {
			t.Error("expected the cached instance back")
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		cache := NewCache()
		cache.Cache(&Song{Type: TypeLocal, ID: "a", Title: "first"})
		cache.Cache(&Song{Type: TypeLocal, ID: "a", Title: "second"})

		got, err := cache.SongFromKey(CreateKey(TypeLocal, "a", KindSong))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Title != "second" {
			t.Errorf("expected the replacement, got %q", got.Title)
		}
		if cache.Len() != 1 {
			t.Errorf("expected one item, got %d", cache.Len())
		}
	})

	t.Run("unknown keys fail loudly", func(t *testing.T) {
		cache := NewCache()
		_, err := cache.FromKey(CreateKey(TypeLocal, "missing", KindSong))
		if !errors.Is(err, shared.ErrNotCached) {
			t.Errorf("expected ErrNotCached, got %v", err)
		}
	})

	t.Run("kind mismatches fail loudly", func(t *testing.T) {
		cache := NewCache()
		artist := &ArtistPreview{Type: TypeLocal, ID: "a"}
		cache.Cache(artist)

		_, err := cache.SongFromKey(KeyOf(artist))
		if !errors.Is(err, shared.ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("FilledArtist", func(t *testing.T) {
		t.Run("inline references resolve without the cache", func(t *testing.T) {
			cache := NewCache()
			preview, err := cache.FilledArtist(ArtistRef{ID: "x", Title: "Inline"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if preview.Title != "Inline" {
				t.Errorf("expected inline title, got %q", preview.Title)
			}
		})

		t.Run("by-key references must be cached", func(t *testing.T) {
			cache := NewCache()
			_, err := cache.FilledArtist(ArtistRef{Key: CreateKey(TypeLocal, "ghost", KindArtistPreview)})
			if !errors.Is(err, shared.ErrNotCached) {
				t.Errorf("expected ErrNotCached, got %v", err)
			}

			cached := &ArtistPreview{Type: TypeLocal, ID: "real", Title: "Cached"}
			cache.Cache(cached)
			preview, err := cache.FilledArtist(ArtistRef{Key: KeyOf(cached)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if preview.Title != "Cached" {
				t.Errorf("expected cached title, got %q", preview.Title)
			}
		})
	})

	t.Run("FilledPlaylistSongs requires every song cached", func(t *testing.T) {
		cache := NewCache()
		a := &Song{Type: TypeLocal, ID: "a"}
		b := &Song{Type: TypeLocal, ID: "b"}
		cache.Cache(a)

		playlist := &Playlist{Songs: []Key{KeyOf(a), KeyOf(b)}}
		if _, err := cache.FilledPlaylistSongs(playlist); err == nil {
			t.Error("expected an error for the uncached song")
		}

		cache.Cache(b)
		songs, err := cache.FilledPlaylistSongs(playlist)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(songs) != 2 || songs[0] != a || songs[1] != b {
			t.Error("expected both songs in playlist order")
		}
	})
}
