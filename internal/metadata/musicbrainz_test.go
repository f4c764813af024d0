package metadata

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/shared"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newMusicBrainz(t *testing.T, recordingsJSON string) *MusicBrainz {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := shared.NewLogger(io.Discard)
	imgs, err := images.NewStore(db, logger)
	if err != nil {
		t.Fatalf("failed to create image store: %v", err)
	}

	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Host {
		case "musicbrainz.org":
			return textResponse(http.StatusOK, recordingsJSON), nil
		default:
			// Cover Art Archive has no front cover for the release group.
			return textResponse(http.StatusNotFound, ""), nil
		}
	})}

	return NewMusicBrainz(client, imgs, objects.NewCache(), logger)
}

func TestGuessFromFileName(t *testing.T) {
	t.Run("splits artist and title", func(t *testing.T) {
		lookup := guessFromFileName(Lookup{FileName: "Skrillex & Rick Ross - Purple Lamborghini (Official Video)"})
		if lookup.Title != "Purple Lamborghini" {
			t.Errorf("unexpected title: %q", lookup.Title)
		}
		if len(lookup.Artists) != 2 || lookup.Artists[0] != "Skrillex" || lookup.Artists[1] != "Rick Ross" {
			t.Errorf("unexpected artists: %v", lookup.Artists)
		}
	})

	t.Run("keeps hints that are already set", func(t *testing.T) {
		lookup := guessFromFileName(Lookup{
			FileName: "Wrong - Guess",
			Title:    "Right Title",
			Artists:  []string{"Right Artist"},
		})
		if lookup.Title != "Right Title" || lookup.Artists[0] != "Right Artist" {
			t.Errorf("unexpected lookup: %+v", lookup)
		}
	})

	t.Run("leaves names without a separator alone", func(t *testing.T) {
		lookup := guessFromFileName(Lookup{FileName: "recording001"})
		if lookup.Title != "" || len(lookup.Artists) != 0 {
			t.Errorf("unexpected lookup: %+v", lookup)
		}
	})
}

func TestMusicBrainz(t *testing.T) {
	ctx := context.Background()

	t.Run("parses the first recording with a release", func(t *testing.T) {
		mb := newMusicBrainz(t, `{
			"recordings": [{
				"id": "rec1",
				"title": "Purple Lamborghini",
				"length": 215000,
				"isrcs": ["USQ4E1600011"],
				"releases": [{
					"id": "rel1",
					"title": "Suicide Squad",
					"artist-credit": [
						{"name": "Skrillex", "artist": {"id": "art1", "name": "Skrillex"}}
					],
					"release-group": {"id": "rg1", "title": "Suicide Squad: The Album", "primary-type": "Album"}
				}]
			}]
		}`)

		meta, err := mb.GetMetadata(ctx, Lookup{ID: "song", Title: "Purple Lamborghini"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta == nil {
			t.Fatal("expected a result")
		}
		if meta.Title != "Purple Lamborghini" {
			t.Errorf("unexpected title: %q", meta.Title)
		}
		if meta.Album != "Suicide Squad: The Album" {
			t.Errorf("unexpected album: %q", meta.Album)
		}
		if meta.Duration != 215 {
			t.Errorf("unexpected duration: %v", meta.Duration)
		}
		if len(meta.ISRC) != 1 {
			t.Errorf("unexpected isrcs: %v", meta.ISRC)
		}
		if len(meta.Artists) != 1 || meta.Artists[0].Key == "" {
			t.Errorf("expected a by-key artist reference, got %v", meta.Artists)
		}
		if meta.Artwork != nil {
			t.Error("expected no artwork without a cover")
		}
	})

	t.Run("non-album release groups leave the album empty", func(t *testing.T) {
		mb := newMusicBrainz(t, `{
			"recordings": [{
				"id": "rec1",
				"title": "Song",
				"releases": [{
					"id": "rel1",
					"title": "Song",
					"release-group": {"id": "rg1", "title": "Song", "primary-type": "Single"}
				}]
			}]
		}`)

		meta, err := mb.GetMetadata(ctx, Lookup{Title: "Song"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta == nil || meta.Album != "" {
			t.Errorf("expected an empty album, got %+v", meta)
		}
	})

	t.Run("no recordings means no match", func(t *testing.T) {
		mb := newMusicBrainz(t, `{"recordings": []}`)

		meta, err := mb.GetMetadata(ctx, Lookup{Title: "Unknown"})
		if err != nil || meta != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", meta, err)
		}
	})

	t.Run("empty lookups never hit the network", func(t *testing.T) {
		mb := newMusicBrainz(t, `{"recordings": []}`)

		meta, err := mb.GetMetadata(ctx, Lookup{})
		if err != nil || meta != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", meta, err)
		}
	})
}
