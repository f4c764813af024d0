package music_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"

	"github.com/UniMusic-app/unimusic/internal/music"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/playback"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	tu "github.com/UniMusic-app/unimusic/internal/testing"
)

type fixture struct {
	provider *tu.FakeProvider
	prompter *tu.ScriptedPrompter
	playback *playback.State
	states   *state.Store
	service  *music.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := shared.NewLogger(io.Discard)
	states, err := state.NewStore(db, logger)
	if err != nil {
		t.Fatalf("failed to create state store: %v", err)
	}

	provider := tu.NewFakeProvider("fake")
	prompter := &tu.ScriptedPrompter{}
	playbackState := playback.NewState()
	service := music.NewService(provider, provider.Events, playbackState, states, prompter, nil, logger)

	return &fixture{
		provider: provider,
		prompter: prompter,
		playback: playbackState,
		states:   states,
		service:  service,
	}
}

// blockingProvider holds Initialize until released, for coalescing tests.
type blockingProvider struct {
	*tu.FakeProvider
	release chan struct{}
}

func (p *blockingProvider) Initialize(ctx context.Context) error {
	<-p.release
	return p.FakeProvider.Initialize(ctx)
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Initialize", func(t *testing.T) {
		t.Run("runs the provider hook once", func(t *testing.T) {
			f := newFixture(t)

			if err := f.service.Initialize(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := f.service.Initialize(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.InitializeCalls != 1 {
				t.Errorf("expected 1 initialization, got %d", f.provider.InitializeCalls)
			}
		})

		t.Run("coalesces concurrent callers", func(t *testing.T) {
			f := newFixture(t)
			blocking := &blockingProvider{FakeProvider: f.provider, release: make(chan struct{})}
			logger := shared.NewLogger(io.Discard)
			service := music.NewService(blocking, f.provider.Events, f.playback, f.states, f.prompter, nil, logger)

			const callers = 8
			errs := make([]error, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = service.Initialize(ctx)
				}(i)
			}
			close(blocking.release)
			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Errorf("caller %d failed: %v", i, err)
				}
			}
			if f.provider.InitializeCalls != 1 {
				t.Errorf("expected 1 initialization, got %d", f.provider.InitializeCalls)
			}
		})

		t.Run("does not cache failures", func(t *testing.T) {
			f := newFixture(t)
			f.provider.InitializeErr = shared.Silentf("backend down")

			if err := f.service.Initialize(ctx); err == nil {
				t.Fatal("expected the failure to surface")
			}

			f.provider.InitializeErr = nil
			if err := f.service.Initialize(ctx); err != nil {
				t.Fatalf("expected the retry to succeed: %v", err)
			}
			if f.provider.InitializeCalls != 2 {
				t.Errorf("expected 2 attempts, got %d", f.provider.InitializeCalls)
			}
		})
	})

	t.Run("Enable persists and restores", func(t *testing.T) {
		f := newFixture(t)

		if err := f.service.Enable(ctx); err != nil {
			t.Fatalf("failed to enable: %v", err)
		}
		if !f.service.Enabled() {
			t.Error("expected the service enabled")
		}

		// A fresh wrapper over the same store picks the choice up.
		logger := shared.NewLogger(io.Discard)
		provider := tu.NewFakeProvider("fake")
		restarted := music.NewService(provider, provider.Events, playback.NewState(), f.states, f.prompter, nil, logger)
		if err := restarted.RestoreState(ctx); err != nil {
			t.Fatalf("failed to restore: %v", err)
		}
		if !restarted.Enabled() {
			t.Error("expected the restored service enabled")
		}
	})

	t.Run("Disable persists even when deinitialization fails", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.Enable(ctx); err != nil {
			t.Fatalf("failed to enable: %v", err)
		}
		f.provider.DeinitializeErr = shared.Silentf("teardown failed")

		if err := f.service.Disable(ctx); err == nil {
			t.Error("expected the teardown failure to surface")
		}
		if f.service.Enabled() {
			t.Error("expected the service disabled")
		}

		logger := shared.NewLogger(io.Discard)
		provider := tu.NewFakeProvider("fake")
		restarted := music.NewService(provider, provider.Events, playback.NewState(), f.states, f.prompter, nil, logger)
		if err := restarted.RestoreState(ctx); err != nil {
			t.Fatalf("failed to restore: %v", err)
		}
		if restarted.Enabled() {
			t.Error("expected the disabled choice to persist")
		}
	})
}

func TestServiceErrorPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("unrecoverable", func(t *testing.T) {
		t.Run("ignore swallows the error", func(t *testing.T) {
			f := newFixture(t)
			f.provider.InitializeErr = errors.New("flaky")
			f.prompter.Choices = []music.PromptChoice{music.ChoiceIgnore}

			if err := f.service.Initialize(ctx); err != nil {
				t.Errorf("expected ignore to swallow, got %v", err)
			}
			if f.prompter.Calls != 1 {
				t.Errorf("expected 1 prompt, got %d", f.prompter.Calls)
			}
		})

		t.Run("retry reruns the hook", func(t *testing.T) {
			f := newFixture(t)
			f.provider.InitializeErr = errors.New("flaky")
			f.prompter.Choices = []music.PromptChoice{music.ChoiceRetry, music.ChoiceIgnore}

			if err := f.service.Initialize(ctx); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if f.provider.InitializeCalls != 2 {
				t.Errorf("expected 2 attempts, got %d", f.provider.InitializeCalls)
			}
		})

		t.Run("disable switches the service off and rethrows", func(t *testing.T) {
			f := newFixture(t)
			if err := f.service.Enable(ctx); err != nil {
				t.Fatalf("failed to enable: %v", err)
			}

			f.provider.PlayErr = errors.New("no stream")
			f.prompter.Choices = []music.PromptChoice{music.ChoiceDisable}

			song := &objects.Song{Type: "fake", ID: "a", Duration: 10}
			if err := f.service.ChangeSong(ctx, song); err != nil {
				t.Fatalf("failed to change song: %v", err)
			}
			if err := f.service.Play(ctx); err == nil {
				t.Error("expected the error to surface")
			}
			if f.service.Enabled() {
				t.Error("expected the service disabled")
			}
		})

		t.Run("silent errors never prompt", func(t *testing.T) {
			f := newFixture(t)
			f.provider.InitializeErr = shared.Silentf("already told the user")

			if err := f.service.Initialize(ctx); err == nil {
				t.Error("expected the silent error to surface")
			}
			if f.prompter.Calls != 0 {
				t.Errorf("expected no prompts, got %d", f.prompter.Calls)
			}
		})
	})

	t.Run("recoverable falls back without failing", func(t *testing.T) {
		f := newFixture(t)
		f.provider.SearchErr = errors.New("search exploded")

		results, err := f.service.SearchSongs(ctx, "query", 0)
		if err != nil {
			t.Errorf("expected the fallback, got %v", err)
		}
		if results != nil {
			t.Errorf("expected no results, got %v", results)
		}
		if f.prompter.Calls != 1 {
			t.Errorf("expected 1 prompt, got %d", f.prompter.Calls)
		}
	})
}

func TestServiceTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("ChangeSong", func(t *testing.T) {
		t.Run("resets the clock and defaults the duration", func(t *testing.T) {
			f := newFixture(t)
			f.playback.SetDuration(300)
			f.playback.SetTime(120)

			if err := f.service.ChangeSong(ctx, &objects.Song{Type: "fake", ID: "a"}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.playback.Time(); got != 0 {
				t.Errorf("expected time 0, got %v", got)
			}
			if got := f.playback.Duration(); got != 1 {
				t.Errorf("expected placeholder duration 1, got %v", got)
			}
		})

		t.Run("same song is a no-op", func(t *testing.T) {
			f := newFixture(t)
			song := &objects.Song{Type: "fake", ID: "a", Duration: 10}

			f.service.ChangeSong(ctx, song)
			f.service.Play(ctx)
			stops := f.provider.StopCalls

			if err := f.service.ChangeSong(ctx, song); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.StopCalls != stops {
				t.Error("expected no stop for the same song")
			}
		})

		t.Run("a different song stops current playback", func(t *testing.T) {
			f := newFixture(t)
			f.service.ChangeSong(ctx, &objects.Song{Type: "fake", ID: "a", Duration: 10})
			f.service.Play(ctx)

			if err := f.service.ChangeSong(ctx, &objects.Song{Type: "fake", ID: "b", Duration: 20}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.StopCalls != 1 {
				t.Errorf("expected 1 stop, got %d", f.provider.StopCalls)
			}
			if got := f.playback.Duration(); got != 20 {
				t.Errorf("expected duration 20, got %v", got)
			}
		})
	})

	t.Run("Play", func(t *testing.T) {
		t.Run("first play rewinds, applies volume and starts", func(t *testing.T) {
			f := newFixture(t)
			f.playback.SetVolume(0.5)
			song := &objects.Song{Type: "fake", ID: "a", Duration: 10}
			f.service.ChangeSong(ctx, song)

			if err := f.service.Play(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.PlayCalls != 1 {
				t.Errorf("expected 1 play, got %d", f.provider.PlayCalls)
			}
			if f.provider.PlayedSong != song {
				t.Error("expected the held song to play")
			}
			if f.provider.Volume != 0.5 {
				t.Errorf("expected volume 0.5, got %v", f.provider.Volume)
			}
			if f.provider.Position != 0 {
				t.Errorf("expected position 0, got %v", f.provider.Position)
			}
			if !f.playback.Playing() {
				t.Error("expected the playing flag set")
			}
		})

		t.Run("later plays resume", func(t *testing.T) {
			f := newFixture(t)
			f.service.ChangeSong(ctx, &objects.Song{Type: "fake", ID: "a", Duration: 10})
			f.service.Play(ctx)
			f.service.Pause(ctx)

			if err := f.service.Play(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.PlayCalls != 1 || f.provider.ResumeCalls != 1 {
				t.Errorf("expected play=1 resume=1, got %d/%d", f.provider.PlayCalls, f.provider.ResumeCalls)
			}
		})

		t.Run("stop forces the next play to start over", func(t *testing.T) {
			f := newFixture(t)
			song := &objects.Song{Type: "fake", ID: "a", Duration: 10}
			f.service.ChangeSong(ctx, song)
			f.service.Play(ctx)

			if err := f.service.Stop(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.playback.Playing() {
				t.Error("expected the playing flag cleared")
			}

			f.service.ChangeSong(ctx, song)
			if err := f.service.Play(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.provider.PlayCalls != 2 {
				t.Errorf("expected a full restart, got %d plays", f.provider.PlayCalls)
			}
		})

		t.Run("stops every other enabled service", func(t *testing.T) {
			f := newFixture(t)
			logger := shared.NewLogger(io.Discard)

			other := tu.NewFakeProvider("other")
			otherService := music.NewService(other, other.Events, f.playback, f.states, f.prompter, nil, logger)

			registry := music.NewRegistry()
			registry.Register(f.service)
			registry.Register(otherService)
			f.service.Enable(ctx)
			otherService.Enable(ctx)

			f.service.ChangeSong(ctx, &objects.Song{Type: "fake", ID: "a", Duration: 10})
			if err := f.service.Play(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if other.StopCalls != 1 {
				t.Errorf("expected the other service stopped once, got %d", other.StopCalls)
			}
			if f.provider.StopCalls != 0 {
				t.Errorf("expected the playing service untouched, got %d stops", f.provider.StopCalls)
			}
		})
	})
}

func TestServiceCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSongFromSearchResult caches the song", func(t *testing.T) {
		f := newFixture(t)
		song := &objects.Song{Type: "fake", ID: "hit", Title: "Hit"}
		f.provider.Songs = []*objects.Song{song}

		got, err := f.service.GetSongFromSearchResult(ctx, music.SearchResult{Type: "fake", ID: "hit"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != song {
			t.Error("expected the provider's song")
		}
		if f.service.GetCached("hit") != song {
			t.Error("expected the song cached")
		}
	})

	t.Run("RefreshSong updates matching queue entries", func(t *testing.T) {
		f := newFixture(t)
		queued := &objects.Song{Type: "fake", ID: "a", Title: "Old Title"}
		f.playback.SetQueue([]*objects.Song{queued})

		f.provider.Songs = []*objects.Song{{Type: "fake", ID: "a", Title: "New Title"}}

		refreshed, err := f.service.RefreshSong(ctx, queued)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if refreshed.Title != "New Title" {
			t.Errorf("expected the refreshed song, got %q", refreshed.Title)
		}
		if queued.Title != "New Title" {
			t.Errorf("expected the queue entry updated, got %q", queued.Title)
		}
	})

	t.Run("GetPlaylist without support fails with ErrNotSupported", func(t *testing.T) {
		f := newFixture(t)

		u, _ := url.Parse("https://example.com/playlist/1")
		_, err := f.service.GetPlaylist(ctx, u)
		if !errors.Is(err, shared.ErrNotSupported) {
			t.Errorf("expected ErrNotSupported, got %v", err)
		}
	})
}
