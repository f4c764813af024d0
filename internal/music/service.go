// package music is the playback engine core. Each provider is wrapped in
// a Service that owns its lifecycle, error policy and playback state
// transitions; the Registry fans operations out across every enabled
// service and the Player binds the result to the queue and the system
// media controls.
package music

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/metadata"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/playback"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
)

// SearchResult is a lightweight search hit. It carries enough to display
// and to resolve into a full song through its owning service.
type SearchResult struct {
	Type objects.ServiceType `json:"type"`

	ID      string              `json:"id"`
	Artists []string            `json:"artists"`
	Title   string              `json:"title,omitempty"`
	Album   string              `json:"album,omitempty"`
	Artwork *objects.LocalImage `json:"artwork,omitempty"`
}

// Provider implements one music source. Hooks are called only through the
// Service wrapper, which owns initialization, error handling and state.
type Provider interface {
	Type() objects.ServiceType
	Name() string
	Available() bool
	// Authorization returns the provider's authorization service, or nil
	// when the source needs none.
	Authorization() *auth.Service

	Initialize(ctx context.Context) error
	Deinitialize(ctx context.Context) error

	Play(ctx context.Context, song *objects.Song) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	SeekTo(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume float64) error

	GetSong(ctx context.Context, id string) (*objects.Song, error)
	RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error)
	LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error)
	RefreshLibrary(ctx context.Context) error
	SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error)
	SearchHints(ctx context.Context, term string) ([]string, error)
	SongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error)
}

// PlaylistFetcher is implemented by providers that can resolve a shared
// playlist URL.
type PlaylistFetcher interface {
	GetPlaylist(ctx context.Context, u *url.URL) (*objects.Playlist, error)
}

// AlbumLister is implemented by providers that can enumerate the albums
// of the user's library.
type AlbumLister interface {
	LibraryAlbums(ctx context.Context) ([]*objects.AlbumPreview, error)
}

// ArtistLister is implemented by providers that can enumerate the
// artists of the user's library.
type ArtistLister interface {
	LibraryArtists(ctx context.Context) ([]*objects.ArtistPreview, error)
}

// PlaylistLister is implemented by providers that can enumerate the
// playlists of the user's library.
type PlaylistLister interface {
	LibraryPlaylists(ctx context.Context) ([]*objects.PlaylistPreview, error)
}

// PromptChoice is the user's answer to an error prompt.
type PromptChoice int

const (
	ChoiceRetry PromptChoice = iota
	ChoiceIgnore
	ChoiceDisable
)

// Prompter asks the user how to proceed after a provider error.
type Prompter interface {
	PromptError(service string, unrecoverable bool, err error) PromptChoice
}

// serviceState is what survives restarts.
type serviceState struct {
	Enabled bool `json:"enabled"`
}

type flight struct {
	done chan struct{}
	err  error
}

// Service wraps a provider with lifecycle, error policy and playback
// state transitions.
type Service struct {
	provider Provider
	events   *Events
	state    *playback.State
	states   *state.Store
	prompter Prompter
	logger   *log.Logger

	// overrides may be nil; songs then pass through untouched.
	overrides *metadata.Overrides

	// registry is set on registration and used to stop every other
	// enabled service before this one starts playing.
	registry *Registry

	mu               sync.Mutex
	enabled          bool
	initialized      bool
	initialPlayed    bool
	song             *objects.Song
	initialization   *flight
	deinitialization *flight
	cache            map[string]*objects.Song
}

// NewService wraps a provider. The events bus must be the same one the
// provider emits on.
func NewService(
	provider Provider,
	events *Events,
	playbackState *playback.State,
	states *state.Store,
	prompter Prompter,
	overrides *metadata.Overrides,
	logger *log.Logger,
) *Service {
	s := &Service{
		provider:  provider,
		events:    events,
		state:     playbackState,
		states:    states,
		prompter:  prompter,
		overrides: overrides,
		logger:    shared.ServiceLogger(logger, provider.Name()),
		cache:     make(map[string]*objects.Song),
	}

	events.OnTimeUpdate(func(seconds float64) {
		s.state.SetTime(seconds)
	})

	return s
}

func (s *Service) Type() objects.ServiceType { return s.provider.Type() }
func (s *Service) Name() string              { return s.provider.Name() }
func (s *Service) Provider() Provider        { return s.provider }
func (s *Service) Events() *Events           { return s.events }

// Enabled reports whether the service is both available and switched on.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider.Available() && s.enabled
}

// Song returns the song the service currently holds.
func (s *Service) Song() *objects.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

func (s *Service) stateKey() string { return "MusicService-" + string(s.provider.Type()) }

// Enable switches the service on, initializes it and persists the choice.
func (s *Service) Enable(ctx context.Context) error {
	s.logger.Debug("enable")
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()

	if err := s.Initialize(ctx); err != nil {
		return err
	}
	return s.states.Set(s.stateKey(), serviceState{Enabled: true})
}

// Disable switches the service off, deinitializes it and persists the
// choice. The persisted flag flips even when deinitialization fails.
func (s *Service) Disable(ctx context.Context) error {
	s.logger.Debug("disable")
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()

	err := s.Deinitialize(ctx)
	return errors.Join(err, s.states.Set(s.stateKey(), serviceState{Enabled: false}))
}

// RestoreState re-enables the service if it was enabled last run.
func (s *Service) RestoreState(ctx context.Context) error {
	if !s.provider.Available() {
		return nil
	}

	var saved serviceState
	if err := s.states.Get(s.stateKey(), &saved); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		return err
	}

	if saved.Enabled {
		return s.Enable(ctx)
	}
	return nil
}

// #region Song cache

// CacheSong files a song under its id.
func (s *Service) CacheSong(song *objects.Song) *objects.Song {
	s.mu.Lock()
	s.cache[song.ID] = song
	s.mu.Unlock()
	return song
}

// GetCached returns the cached song with the id, or nil.
func (s *Service) GetCached(id string) *objects.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[id]
}

// #endregion

// #region Error policies

// unrecoverable runs fn under the unrecoverable error policy: silent
// errors pass straight through, anything else prompts the user. Retry
// reruns fn, ignore swallows the error, disable switches the service off
// and returns the error.
func (s *Service) unrecoverable(ctx context.Context, op string, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shared.IsSilent(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		s.logger.Error("unrecoverable error", "op", op, "err", err)
		switch s.prompter.PromptError(s.provider.Name(), true, err) {
		case ChoiceRetry:
			continue
		case ChoiceDisable:
			if derr := s.Disable(ctx); derr != nil {
				s.logger.Error("failed to disable service", "err", derr)
			}
			return err
		default:
			return nil
		}
	}
}

// recoverable runs fn under the recoverable error policy: the caller's
// fallback result stands whenever fn fails. Silent errors skip the
// prompt; disable additionally switches the service off.
func (s *Service) recoverable(ctx context.Context, op string, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shared.IsSilent(err) {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		s.logger.Error("recoverable error", "op", op, "err", err)
		switch s.prompter.PromptError(s.provider.Name(), false, err) {
		case ChoiceRetry:
			continue
		case ChoiceDisable:
			if derr := s.Disable(ctx); derr != nil {
				s.logger.Error("failed to disable service", "err", derr)
			}
			return nil
		default:
			return nil
		}
	}
}

// #endregion

// #region Lifecycle

// Initialize brings the provider up once. Concurrent callers share a
// single in-flight attempt; a failed attempt is not cached, the next call
// tries again.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if f := s.initialization; f != nil {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.initialization = f
	s.mu.Unlock()

	err := s.runInitialization(ctx)

	s.mu.Lock()
	if err == nil {
		s.initialized = true
	}
	f.err = err
	s.initialization = nil
	s.mu.Unlock()
	close(f.done)
	return err
}

func (s *Service) runInitialization(ctx context.Context) error {
	if authorization := s.provider.Authorization(); authorization != nil {
		err := s.unrecoverable(ctx, "passivelyAuthorize", func(ctx context.Context) error {
			_, err := authorization.PassivelyAuthorize(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	s.logger.Debug("initializing")
	return s.unrecoverable(ctx, "initialize", s.provider.Initialize)
}

// Deinitialize tears the provider down, coalescing concurrent callers.
func (s *Service) Deinitialize(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	if f := s.deinitialization; f != nil {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.deinitialization = f
	s.mu.Unlock()

	err := s.unrecoverable(ctx, "deinitialize", s.provider.Deinitialize)

	s.mu.Lock()
	if err == nil {
		s.initialized = false
	}
	f.err = err
	s.deinitialization = nil
	s.mu.Unlock()
	close(f.done)
	return err
}

// #endregion

// #region Transport

// ChangeSong hands the service a new song to play next. Changing to the
// song it already holds is a no-op; otherwise any current playback stops
// and the transport clock resets to the new song's duration.
func (s *Service) ChangeSong(ctx context.Context, song *objects.Song) error {
	s.logger.Debug("changeSong")

	s.mu.Lock()
	if s.song != nil && song != nil && s.song.ID == song.ID {
		s.mu.Unlock()
		return nil
	}
	initialized := s.initialized
	s.mu.Unlock()

	if initialized {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.song = song
	s.mu.Unlock()

	s.state.SetTime(0)
	s.state.SetDuration(song.Duration)
	return nil
}

// Play starts playback of the held song. The first play initializes the
// service, rewinds, applies the stored volume and stops every other
// enabled service so only one source ever plays; later plays just resume.
func (s *Service) Play(ctx context.Context) error {
	s.state.BeginLoading(playback.LoadingPlayPause)
	defer s.state.EndLoading(playback.LoadingPlayPause)

	s.mu.Lock()
	initialPlayed := s.initialPlayed
	song := s.song
	s.mu.Unlock()

	if initialPlayed {
		s.logger.Debug("resume")
		if err := s.unrecoverable(ctx, "resume", s.provider.Resume); err != nil {
			return err
		}
	} else {
		if err := s.Initialize(ctx); err != nil {
			return err
		}
		if err := s.SeekToTime(ctx, 0); err != nil {
			return err
		}
		if err := s.SetVolume(ctx, s.state.Volume()); err != nil {
			return err
		}

		if s.registry != nil {
			s.logger.Debug("stopping other services")
			if err := s.registry.StopOthers(ctx, s); err != nil {
				return err
			}
		}

		s.logger.Debug("play")
		err := s.unrecoverable(ctx, "play", func(ctx context.Context) error {
			return s.provider.Play(ctx, song)
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.initialPlayed = true
		s.mu.Unlock()
	}

	s.state.SetPlaying(true)
	return nil
}

// Pause suspends playback without losing the held song.
func (s *Service) Pause(ctx context.Context) error {
	s.logger.Debug("pause")
	s.state.BeginLoading(playback.LoadingPlayPause)
	defer s.state.EndLoading(playback.LoadingPlayPause)

	if err := s.unrecoverable(ctx, "pause", s.provider.Pause); err != nil {
		return err
	}
	s.state.SetPlaying(false)
	return nil
}

// Stop drops the held song entirely; the next Play is a full start.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Debug("stop")

	s.mu.Lock()
	s.song = nil
	s.initialPlayed = false
	s.mu.Unlock()

	s.state.BeginLoading(playback.LoadingPlayPause)
	defer s.state.EndLoading(playback.LoadingPlayPause)

	if err := s.unrecoverable(ctx, "stop", s.provider.Stop); err != nil {
		return err
	}
	s.state.SetPlaying(false)
	return nil
}

// TogglePlay pauses when playing and plays when paused.
func (s *Service) TogglePlay(ctx context.Context) error {
	s.logger.Debug("togglePlay")
	if s.state.Playing() {
		return s.Pause(ctx)
	}
	return s.Play(ctx)
}

// SeekToTime moves playback to the given position.
func (s *Service) SeekToTime(ctx context.Context, seconds float64) error {
	s.logger.Debug("seekToTime")
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	err := s.unrecoverable(ctx, "seekToTime", func(ctx context.Context) error {
		return s.provider.SeekTo(ctx, seconds)
	})
	if err != nil {
		return err
	}
	s.state.SetTime(seconds)
	return nil
}

// SetVolume applies the volume to the provider and records it.
func (s *Service) SetVolume(ctx context.Context, volume float64) error {
	s.logger.Debug("setVolume")
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	err := s.unrecoverable(ctx, "setVolume", func(ctx context.Context) error {
		return s.provider.SetVolume(ctx, volume)
	})
	if err != nil {
		return err
	}
	s.state.SetVolume(volume)
	return nil
}

// #endregion

// #region Catalog operations

func (s *Service) applyOverrides(song *objects.Song) {
	if s.overrides == nil || song == nil {
		return
	}
	if err := s.overrides.Apply(song); err != nil {
		s.logger.Warn("failed to apply metadata overrides", "song", song.ID, "err", err)
	}
}

// SearchSongs queries the provider; failures degrade to no results.
func (s *Service) SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error) {
	s.logger.Debug("searchSongs")
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var results []SearchResult
	err := s.recoverable(ctx, "searchSongs", func(ctx context.Context) error {
		var err error
		results, err = s.provider.SearchSongs(ctx, term, offset)
		return err
	})
	return results, err
}

// SearchHints queries the provider for completions; failures degrade to
// none.
func (s *Service) SearchHints(ctx context.Context, term string) ([]string, error) {
	s.logger.Debug("searchHints")
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var hints []string
	err := s.recoverable(ctx, "searchHints", func(ctx context.Context) error {
		var err error
		hints, err = s.provider.SearchHints(ctx, term)
		return err
	})
	return hints, err
}

// GetSongFromSearchResult resolves a search hit into a playable song.
func (s *Service) GetSongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error) {
	s.logger.Debug("getSongFromSearchResult")

	var song *objects.Song
	err := s.unrecoverable(ctx, "getSongFromSearchResult", func(ctx context.Context) error {
		var err error
		song, err = s.provider.SongFromSearchResult(ctx, result)
		return err
	})
	if err != nil {
		return nil, err
	}
	if song != nil {
		s.CacheSong(song)
	}
	return song, nil
}

// LibrarySongs returns a page of the user's library with overrides
// applied; failures degrade to an empty page.
func (s *Service) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	s.logger.Debug("librarySongs")
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var songs []*objects.Song
	err := s.recoverable(ctx, "librarySongs", func(ctx context.Context) error {
		var err error
		songs, err = s.provider.LibrarySongs(ctx, offset)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, song := range songs {
		s.applyOverrides(song)
	}
	return songs, nil
}

// RefreshLibrarySongs asks the provider to rescan its library.
func (s *Service) RefreshLibrarySongs(ctx context.Context) error {
	s.logger.Debug("refreshLibrarySongs")
	return s.recoverable(ctx, "refreshLibrarySongs", s.provider.RefreshLibrary)
}

// GetSong resolves a song by id, nil when the provider has no match.
func (s *Service) GetSong(ctx context.Context, id string) (*objects.Song, error) {
	s.logger.Debug("getSong")
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var song *objects.Song
	err := s.recoverable(ctx, "getSong", func(ctx context.Context) error {
		var err error
		song, err = s.provider.GetSong(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.applyOverrides(song)
	return song, nil
}

// RefreshSong re-resolves a song and propagates the fresh data into every
// queue entry holding it.
func (s *Service) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	s.logger.Debug("refreshSong")
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var refreshed *objects.Song
	err := s.recoverable(ctx, "refreshSong", func(ctx context.Context) error {
		var err error
		refreshed, err = s.provider.RefreshSong(ctx, song)
		return err
	})
	if err != nil || refreshed == nil {
		return nil, err
	}

	s.applyOverrides(refreshed)
	for _, entry := range s.state.Queue() {
		if entry.Song != nil && entry.Song.Type == refreshed.Type && entry.Song.ID == refreshed.ID {
			*entry.Song = *refreshed
		}
	}
	return refreshed, nil
}

// LibraryAlbums enumerates the user's albums, when the provider supports
// it; failures degrade to an empty listing.
func (s *Service) LibraryAlbums(ctx context.Context) ([]*objects.AlbumPreview, error) {
	lister, ok := s.provider.(AlbumLister)
	if !ok {
		return nil, shared.NotSupported(s.provider.Name(), "libraryAlbums")
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var albums []*objects.AlbumPreview
	err := s.recoverable(ctx, "libraryAlbums", func(ctx context.Context) error {
		var err error
		albums, err = lister.LibraryAlbums(ctx)
		return err
	})
	return albums, err
}

// LibraryArtists enumerates the user's artists, when the provider
// supports it; failures degrade to an empty listing.
func (s *Service) LibraryArtists(ctx context.Context) ([]*objects.ArtistPreview, error) {
	lister, ok := s.provider.(ArtistLister)
	if !ok {
		return nil, shared.NotSupported(s.provider.Name(), "libraryArtists")
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var artists []*objects.ArtistPreview
	err := s.recoverable(ctx, "libraryArtists", func(ctx context.Context) error {
		var err error
		artists, err = lister.LibraryArtists(ctx)
		return err
	})
	return artists, err
}

// LibraryPlaylists enumerates the user's playlists, when the provider
// supports it; failures degrade to an empty listing.
func (s *Service) LibraryPlaylists(ctx context.Context) ([]*objects.PlaylistPreview, error) {
	lister, ok := s.provider.(PlaylistLister)
	if !ok {
		return nil, shared.NotSupported(s.provider.Name(), "libraryPlaylists")
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	var playlists []*objects.PlaylistPreview
	err := s.recoverable(ctx, "libraryPlaylists", func(ctx context.Context) error {
		var err error
		playlists, err = lister.LibraryPlaylists(ctx)
		return err
	})
	return playlists, err
}

// GetPlaylist resolves a shared playlist URL, when the provider supports
// it.
func (s *Service) GetPlaylist(ctx context.Context, u *url.URL) (*objects.Playlist, error) {
	fetcher, ok := s.provider.(PlaylistFetcher)
	if !ok {
		return nil, shared.NotSupported(s.provider.Name(), "getPlaylist")
	}

	var playlist *objects.Playlist
	err := s.recoverable(ctx, "getPlaylist", func(ctx context.Context) error {
		var err error
		playlist, err = fetcher.GetPlaylist(ctx, u)
		return err
	})
	return playlist, err
}

// #endregion
