package music

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/metadata"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/charmbracelet/log"
	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/tcolgate/mp3"
)

// audioFormats maps playable file extensions to their container format.
var audioFormats = map[string]string{
	".mp3":  "mp3",
	".wav":  "wav",
	".flac": "flac",
	".ogg":  "ogg",
}

// Local plays music files from the configured directories. Tags come from
// the files themselves; untagged files fall back to the metadata
// providers. A filesystem watcher marks the library dirty so the next
// read rescans.
type Local struct {
	directories []string
	fs          platform.FileSystem
	output      platform.AudioOutput
	images      *images.Store
	metadata    *metadata.Registry
	events      *Events
	logger      *log.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	songs   []*objects.Song
	byID    map[string]*objects.Song
	scanned bool
	dirty   bool
}

// NewLocal creates the provider. The metadata registry may be nil;
// untagged files then stay untagged.
func NewLocal(
	directories []string,
	fs platform.FileSystem,
	output platform.AudioOutput,
	imgs *images.Store,
	metaRegistry *metadata.Registry,
	events *Events,
	logger *log.Logger,
) *Local {
	return &Local{
		directories: directories,
		fs:          fs,
		output:      output,
		images:      imgs,
		metadata:    metaRegistry,
		events:      events,
		logger:      logger,
		byID:        make(map[string]*objects.Song),
	}
}

func (l *Local) Type() objects.ServiceType    { return objects.TypeLocal }
func (l *Local) Name() string                 { return "Local" }
func (l *Local) Available() bool              { return true }
func (l *Local) Authorization() *auth.Service { return nil }

// armOutput points the shared audio output's callbacks at this service.
// Re-armed on every play since another service may have played in
// between.
func (l *Local) armOutput() {
	l.output.OnTime(func(seconds float64) {
		l.events.EmitTimeUpdate(seconds)
	})
	l.output.OnEnded(func() {
		l.events.EmitEnded()
	})
}

// Initialize starts watching the music directories for changes.
func (l *Local) Initialize(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create library watcher: %w", err)
	}
	for _, dir := range l.directories {
		if err := watcher.Add(dir); err != nil {
			l.logger.Warn("failed to watch music directory", "dir", dir, "err", err)
		}
	}

	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				l.mu.Lock()
				l.dirty = true
				l.mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("library watcher error", "err", err)
			}
		}
	}()

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()
	return nil
}

func (l *Local) Deinitialize(ctx context.Context) error {
	l.mu.Lock()
	watcher := l.watcher
	l.watcher = nil
	l.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			return err
		}
	}
	return l.output.Stop()
}

// #region Library

// scan reads every audio file under the configured directories. Results
// are kept until the library is marked dirty or force-refreshed.
func (l *Local) scan(ctx context.Context, force bool) ([]*objects.Song, error) {
	l.mu.Lock()
	if l.scanned && !l.dirty && !force {
		songs := l.songs
		l.mu.Unlock()
		return songs, nil
	}
	l.mu.Unlock()

	var songs []*objects.Song
	byID := make(map[string]*objects.Song)

	for _, dir := range l.directories {
		paths, err := l.fs.Traverse(dir)
		if err != nil {
			l.logger.Warn("failed to traverse music directory", "dir", dir, "err", err)
			continue
		}

		for _, path := range paths {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if _, ok := audioFormats[strings.ToLower(filepath.Ext(path))]; !ok {
				continue
			}

			song, err := l.parseSong(ctx, path)
			if err != nil {
				l.logger.Warn("failed to parse song", "path", path, "err", err)
				continue
			}
			songs = append(songs, song)
			byID[song.ID] = song
		}
	}

	l.mu.Lock()
	l.songs = songs
	l.byID = byID
	l.scanned = true
	l.dirty = false
	l.mu.Unlock()
	return songs, nil
}

// parseSong reads one file's tags into a song. The file path doubles as
// the song id.
func (l *Local) parseSong(ctx context.Context, path string) (*objects.Song, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	song := &objects.Song{
		Type:      objects.TypeLocal,
		ID:        path,
		Available: true,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Data:      objects.SongData{Path: path},
	}

	meta, err := tag.ReadFrom(file)
	if err == nil {
		song.Data.HasMetadata = meta.Title() != ""
		if meta.Title() != "" {
			song.Title = meta.Title()
		}
		song.Album = meta.Album()
		if meta.Artist() != "" {
			song.Artists = []objects.ArtistRef{{Title: meta.Artist()}}
		}
		if meta.Genre() != "" {
			song.Genres = []string{meta.Genre()}
		}
		disc, _ := meta.Disc()
		track, _ := meta.Track()
		song.Data.DiscNumber = disc
		song.Data.TrackNumber = track

		if picture := meta.Picture(); picture != nil {
			bounds := images.Bounds{Width: 256, Height: 256}
			if err := l.images.Associate(song.ID, picture.Data, &bounds); err != nil {
				l.logger.Warn("failed to store artwork", "path", path, "err", err)
			} else {
				song.Artwork = &objects.LocalImage{ID: song.ID}
				if style, err := l.images.Style(song.ID); err == nil {
					song.Style = &objects.Style{
						Foreground: style.Foreground,
						Background: style.Background,
						Gradient:   style.Gradient,
					}
				}
			}
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		song.Duration = l.mp3Duration(path)
	}

	if !song.Data.HasMetadata && l.metadata != nil {
		l.lookupMetadata(ctx, song)
	}

	return song, nil
}

// mp3Duration sums frame durations; tags alone do not carry length.
func (l *Local) mp3Duration(path string) float64 {
	file, err := l.fs.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	var total float64
	decoder := mp3.NewDecoder(file)
	skipped := 0

	var frame mp3.Frame
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if err != io.EOF {
				l.logger.Debug("failed to read mp3 frames", "path", path, "err", err)
			}
			break
		}
		total += frame.Duration().Seconds()
	}
	return total
}

// lookupMetadata fills an untagged song from the metadata providers.
func (l *Local) lookupMetadata(ctx context.Context, song *objects.Song) {
	lookup := metadata.Lookup{
		ID:       song.ID,
		Title:    song.Title,
		Album:    song.Album,
		Artists:  song.ArtistNames(),
		Duration: song.Duration,
		FilePath: song.Data.Path,
		FileName: strings.TrimSuffix(filepath.Base(song.Data.Path), filepath.Ext(song.Data.Path)),
	}

	meta, err := l.metadata.GetMetadata(ctx, lookup)
	if err != nil || meta == nil {
		return
	}

	if meta.Title != "" {
		song.Title = meta.Title
	}
	if meta.Album != "" {
		song.Album = meta.Album
	}
	if len(meta.Artists) > 0 {
		song.Artists = meta.Artists
	}
	if len(meta.Genres) > 0 {
		song.Genres = meta.Genres
	}
	if meta.Duration > 0 && song.Duration == 0 {
		song.Duration = meta.Duration
	}
	if meta.Artwork != nil {
		song.Artwork = meta.Artwork
	}
	song.Data.ISRC = meta.ISRC
	song.Data.HasMetadata = true
}

// LibrarySongs returns the scanned library. The library is small enough
// to hand out in one page.
func (l *Local) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	if offset > 0 {
		return nil, nil
	}
	return l.scan(ctx, false)
}

func (l *Local) RefreshLibrary(ctx context.Context) error {
	_, err := l.scan(ctx, true)
	return err
}

func (l *Local) GetSong(ctx context.Context, id string) (*objects.Song, error) {
	if _, err := l.scan(ctx, false); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byID[id], nil
}

func (l *Local) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	refreshed, err := l.parseSong(ctx, song.Data.Path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if existing, ok := l.byID[refreshed.ID]; ok {
		*existing = *refreshed
	}
	l.mu.Unlock()
	return refreshed, nil
}

// LibraryAlbums groups the scanned songs by album title.
func (l *Local) LibraryAlbums(ctx context.Context) ([]*objects.AlbumPreview, error) {
	songs, err := l.scan(ctx, false)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*objects.AlbumPreview)
	var albums []*objects.AlbumPreview
	for _, song := range songs {
		if song.Album == "" {
			continue
		}
		if album, ok := seen[song.Album]; ok {
			if album.Artwork == nil {
				album.Artwork = song.Artwork
			}
			continue
		}
		album := &objects.AlbumPreview{
			Type:    objects.TypeLocal,
			ID:      song.Album,
			Title:   song.Album,
			Artwork: song.Artwork,
			Artists: song.Artists,
		}
		seen[song.Album] = album
		albums = append(albums, album)
	}
	return albums, nil
}

// LibraryArtists lists the distinct artists across the scanned songs.
func (l *Local) LibraryArtists(ctx context.Context) ([]*objects.ArtistPreview, error) {
	songs, err := l.scan(ctx, false)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var artists []*objects.ArtistPreview
	for _, song := range songs {
		for _, name := range song.ArtistNames() {
			if seen[name] {
				continue
			}
			seen[name] = true
			artists = append(artists, &objects.ArtistPreview{
				Type:  objects.TypeLocal,
				ID:    name,
				Title: name,
			})
		}
	}
	return artists, nil
}

// #endregion

// #region Search

func (l *Local) SearchHints(ctx context.Context, term string) ([]string, error) {
	return nil, nil
}

// SearchSongs matches the term as a substring of title, artist, album or
// genre, case-insensitively.
func (l *Local) SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error) {
	if offset > 0 {
		return nil, nil
	}

	songs, err := l.scan(ctx, false)
	if err != nil {
		return nil, err
	}

	term = strings.ToLower(term)
	var results []SearchResult
	for _, song := range songs {
		if !matchesSong(song, term) {
			continue
		}
		results = append(results, SearchResult{
			Type:    objects.TypeLocal,
			ID:      song.ID,
			Artists: song.ArtistNames(),
			Title:   song.Title,
			Album:   song.Album,
			Artwork: song.Artwork,
		})
	}
	return results, nil
}

func matchesSong(song *objects.Song, term string) bool {
	if strings.Contains(strings.ToLower(song.Title), term) {
		return true
	}
	if strings.Contains(strings.ToLower(song.Album), term) {
		return true
	}
	for _, artist := range song.ArtistNames() {
		if strings.Contains(strings.ToLower(artist), term) {
			return true
		}
	}
	for _, genre := range song.Genres {
		if strings.Contains(strings.ToLower(genre), term) {
			return true
		}
	}
	return false
}

func (l *Local) SongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error) {
	song, err := l.GetSong(ctx, result.ID)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, fmt.Errorf("no local song with id %s", result.ID)
	}
	return song, nil
}

// #endregion

// #region Playback

func (l *Local) Play(ctx context.Context, song *objects.Song) error {
	if song == nil {
		return fmt.Errorf("no song to play")
	}

	format, ok := audioFormats[strings.ToLower(filepath.Ext(song.Data.Path))]
	if !ok {
		return fmt.Errorf("unsupported audio file: %s", song.Data.Path)
	}

	file, err := l.fs.Open(song.Data.Path)
	if err != nil {
		return err
	}

	l.armOutput()
	if err := l.output.Load(ctx, platform.AudioSource{Reader: file, Format: format}); err != nil {
		file.Close()
		return err
	}
	if err := l.output.Play(); err != nil {
		return err
	}

	l.events.EmitPlaying()
	return nil
}

func (l *Local) Resume(ctx context.Context) error {
	l.armOutput()
	if err := l.output.Resume(); err != nil {
		return err
	}
	l.events.EmitPlaying()
	return nil
}

func (l *Local) Pause(ctx context.Context) error {
	return l.output.Pause()
}

func (l *Local) Stop(ctx context.Context) error {
	return l.output.Stop()
}

func (l *Local) SeekTo(ctx context.Context, seconds float64) error {
	return l.output.SeekTo(seconds)
}

func (l *Local) SetVolume(ctx context.Context, volume float64) error {
	return l.output.SetVolume(volume)
}

// #endregion
