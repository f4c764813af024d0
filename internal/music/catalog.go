package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/charmbracelet/log"
)

const catalogPageSize = 25

// catalogSong is the wire shape of a catalog track.
type catalogSong struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string   `json:"name"`
		AlbumName        string   `json:"albumName"`
		ArtistName       string   `json:"artistName"`
		GenreNames       []string `json:"genreNames"`
		DurationInMillis int      `json:"durationInMillis"`
		ContentRating    string   `json:"contentRating"`
		Artwork          *struct {
			URL string `json:"url"`
		} `json:"artwork"`
		PlayParams *struct {
			ID string `json:"id"`
		} `json:"playParams"`
	} `json:"attributes"`
}

type catalogSongsResponse struct {
	Data []catalogSong `json:"data"`
}

type catalogSearchResponse struct {
	Results struct {
		Songs struct {
			Data []catalogSong `json:"data"`
		} `json:"songs"`
	} `json:"results"`
}

type catalogHintsResponse struct {
	Results struct {
		Terms []string `json:"terms"`
	} `json:"results"`
}

type catalogPlaylistResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name    string `json:"name"`
			Artwork *struct {
				URL string `json:"url"`
			} `json:"artwork"`
		} `json:"attributes"`
		Relationships struct {
			Tracks struct {
				Data []catalogSong `json:"data"`
			} `json:"tracks"`
		} `json:"relationships"`
	} `json:"data"`
}

type catalogStreamResponse struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Catalog plays songs from a streaming catalog. Every call goes through
// the oauth2-authenticated client; playback streams the track into the
// host audio output.
type Catalog struct {
	baseURL       string
	token         *auth.TokenHandler
	authorization *auth.Service
	output        platform.AudioOutput
	images        *images.Store
	cache         *objects.Cache
	events        *Events
	logger        *log.Logger

	// plain carries the rate limiter but no credentials, for artwork.
	plain *http.Client

	mu         sync.Mutex
	storefront string
}

// NewCatalog creates the provider. token/authorization come from
// auth.NewTokenService; plain is used for unauthenticated fetches.
func NewCatalog(
	baseURL string,
	token *auth.TokenHandler,
	authorization *auth.Service,
	output platform.AudioOutput,
	imgs *images.Store,
	cache *objects.Cache,
	plain *http.Client,
	events *Events,
	logger *log.Logger,
) *Catalog {
	return &Catalog{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         token,
		authorization: authorization,
		output:        output,
		images:        imgs,
		cache:         cache,
		plain:         plain,
		events:        events,
		logger:        logger,
	}
}

func (c *Catalog) Type() objects.ServiceType    { return objects.TypeCatalog }
func (c *Catalog) Name() string                 { return "Catalog" }
func (c *Catalog) Available() bool              { return c.baseURL != "" }
func (c *Catalog) Authorization() *auth.Service { return c.authorization }

// Initialize requires an authorized session; a declined authorization is
// silent since the user already answered a prompt.
func (c *Catalog) Initialize(ctx context.Context) error {
	if !c.authorization.Authorized() {
		if _, err := c.authorization.Authorize(ctx); err != nil {
			if errors.Is(err, shared.ErrAuthDeclined) {
				return shared.Silent(err)
			}
			return err
		}
	}

	storefront, err := c.fetchStorefront(ctx)
	if err != nil {
		c.logger.Warn("failed to resolve storefront, assuming us", "err", err)
		storefront = "us"
	}

	c.mu.Lock()
	c.storefront = storefront
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Deinitialize(ctx context.Context) error {
	return c.output.Stop()
}

// armOutput points the shared audio output's callbacks at this service.
func (c *Catalog) armOutput() {
	c.output.OnTime(func(seconds float64) {
		c.events.EmitTimeUpdate(seconds)
	})
	c.output.OnEnded(func() {
		c.events.EmitEnded()
	})
}

func (c *Catalog) fetchStorefront(ctx context.Context) (string, error) {
	var response struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/v1/me/storefront", nil, &response); err != nil {
		return "", err
	}
	if len(response.Data) == 0 {
		return "", fmt.Errorf("no storefront assigned")
	}
	return response.Data[0].ID, nil
}

func (c *Catalog) catalogPath(suffix string) string {
	c.mu.Lock()
	storefront := c.storefront
	c.mu.Unlock()
	if storefront == "" {
		storefront = "us"
	}
	return "/v1/catalog/" + storefront + suffix
}

func (c *Catalog) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	client, err := c.token.HTTPClient(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request %s failed: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// formatArtworkURL expands the {w}x{h} template carried by catalog
// artwork URLs.
func formatArtworkURL(template string, width, height int) string {
	u := strings.ReplaceAll(template, "{w}", strconv.Itoa(width))
	return strings.ReplaceAll(u, "{h}", strconv.Itoa(height))
}

// song maps a wire track into a Song.
func (c *Catalog) song(raw catalogSong) *objects.Song {
	attrs := raw.Attributes

	song := &objects.Song{
		Type:      objects.TypeCatalog,
		ID:        raw.ID,
		Available: attrs.PlayParams != nil,
		Explicit:  attrs.ContentRating == "explicit",
		Genres:    attrs.GenreNames,
		Title:     attrs.Name,
		Album:     attrs.AlbumName,
		Duration:  float64(attrs.DurationInMillis) / 1000,
		Data:      objects.SongData{CatalogID: raw.ID},
	}
	if attrs.ArtistName != "" {
		song.Artists = []objects.ArtistRef{{Title: attrs.ArtistName}}
	}
	if attrs.Artwork != nil {
		song.Artwork = &objects.LocalImage{URL: formatArtworkURL(attrs.Artwork.URL, 256, 256)}
	}

	c.cache.Cache(song)
	return song
}

// catalogIDType tells library ids from catalog ids; catalog ids are
// numeric.
func catalogIDType(id string) string {
	if _, err := strconv.Atoi(id); err == nil {
		return "catalog"
	}
	return "library"
}

// #region Catalog operations

func (c *Catalog) SearchHints(ctx context.Context, term string) ([]string, error) {
	if term == "" {
		return nil, nil
	}

	params := url.Values{"term": {term}}
	var response catalogHintsResponse
	if err := c.getJSON(ctx, c.catalogPath("/search/hints"), params, &response); err != nil {
		return nil, err
	}
	return response.Results.Terms, nil
}

func (c *Catalog) SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error) {
	params := url.Values{
		"term":   {term},
		"types":  {"songs"},
		"limit":  {strconv.Itoa(catalogPageSize)},
		"offset": {strconv.Itoa(offset)},
	}

	var response catalogSearchResponse
	if err := c.getJSON(ctx, c.catalogPath("/search"), params, &response); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, raw := range response.Results.Songs.Data {
		song := c.song(raw)
		results = append(results, SearchResult{
			Type:    objects.TypeCatalog,
			ID:      song.ID,
			Artists: song.ArtistNames(),
			Title:   song.Title,
			Album:   song.Album,
			Artwork: song.Artwork,
		})
	}
	return results, nil
}

func (c *Catalog) SongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error) {
	song, err := c.GetSong(ctx, result.ID)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, result.ID)
	}
	return song, nil
}

func (c *Catalog) GetSong(ctx context.Context, id string) (*objects.Song, error) {
	path := c.catalogPath("/songs/" + url.PathEscape(id))
	if catalogIDType(id) == "library" {
		path = "/v1/me/library/songs/" + url.PathEscape(id)
	}

	var response catalogSongsResponse
	if err := c.getJSON(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, nil
	}
	return c.song(response.Data[0]), nil
}

func (c *Catalog) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	refreshed, err := c.GetSong(ctx, song.ID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, song.ID)
	}
	return refreshed, nil
}

// LibrarySongs pages through the user's saved songs, skipping tracks
// that cannot be played.
func (c *Catalog) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(catalogPageSize)},
		"offset": {strconv.Itoa(offset)},
	}

	var response catalogSongsResponse
	if err := c.getJSON(ctx, "/v1/me/library/songs", params, &response); err != nil {
		return nil, err
	}

	var songs []*objects.Song
	for _, raw := range response.Data {
		if raw.Attributes.PlayParams == nil {
			continue
		}
		songs = append(songs, c.song(raw))
	}
	return songs, nil
}

type catalogCollectionResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name       string `json:"name"`
			ArtistName string `json:"artistName"`
			Artwork    *struct {
				URL string `json:"url"`
			} `json:"artwork"`
			TrackCount int `json:"trackCount"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Catalog) libraryCollection(ctx context.Context, path string) (*catalogCollectionResponse, error) {
	params := url.Values{"limit": {strconv.Itoa(catalogPageSize)}}
	var response catalogCollectionResponse
	if err := c.getJSON(ctx, path, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// LibraryAlbums lists the user's saved albums.
func (c *Catalog) LibraryAlbums(ctx context.Context) ([]*objects.AlbumPreview, error) {
	response, err := c.libraryCollection(ctx, "/v1/me/library/albums")
	if err != nil {
		return nil, err
	}

	var albums []*objects.AlbumPreview
	for _, raw := range response.Data {
		album := &objects.AlbumPreview{
			Type:  objects.TypeCatalog,
			ID:    raw.ID,
			Title: raw.Attributes.Name,
		}
		if raw.Attributes.ArtistName != "" {
			album.Artists = []objects.ArtistRef{{Title: raw.Attributes.ArtistName}}
		}
		if raw.Attributes.Artwork != nil {
			album.Artwork = &objects.LocalImage{URL: formatArtworkURL(raw.Attributes.Artwork.URL, 256, 256)}
		}
		albums = append(albums, album)
	}
	return albums, nil
}

// LibraryArtists lists the user's saved artists.
func (c *Catalog) LibraryArtists(ctx context.Context) ([]*objects.ArtistPreview, error) {
	response, err := c.libraryCollection(ctx, "/v1/me/library/artists")
	if err != nil {
		return nil, err
	}

	var artists []*objects.ArtistPreview
	for _, raw := range response.Data {
		artist := &objects.ArtistPreview{
			Type:  objects.TypeCatalog,
			ID:    raw.ID,
			Title: raw.Attributes.Name,
		}
		if raw.Attributes.Artwork != nil {
			artist.Artwork = &objects.LocalImage{URL: formatArtworkURL(raw.Attributes.Artwork.URL, 256, 256)}
		}
		artists = append(artists, artist)
	}
	return artists, nil
}

// LibraryPlaylists lists the user's playlists.
func (c *Catalog) LibraryPlaylists(ctx context.Context) ([]*objects.PlaylistPreview, error) {
	response, err := c.libraryCollection(ctx, "/v1/me/library/playlists")
	if err != nil {
		return nil, err
	}

	var playlists []*objects.PlaylistPreview
	for _, raw := range response.Data {
		playlist := &objects.PlaylistPreview{
			Type:      objects.TypeCatalog,
			ID:        raw.ID,
			Title:     raw.Attributes.Name,
			SongCount: raw.Attributes.TrackCount,
		}
		if raw.Attributes.Artwork != nil {
			playlist.Artwork = &objects.LocalImage{URL: formatArtworkURL(raw.Attributes.Artwork.URL, 256, 256)}
		}
		playlists = append(playlists, playlist)
	}
	return playlists, nil
}

func (c *Catalog) RefreshLibrary(ctx context.Context) error {
	// The library is served straight from the remote catalog; there is
	// nothing to rescan.
	return nil
}

// GetPlaylist imports a shared playlist URL, both the user-library and
// the public storefront form.
func (c *Catalog) GetPlaylist(ctx context.Context, u *url.URL) (*objects.Playlist, error) {
	idStart := strings.LastIndex(u.Path, "/")
	if idStart == -1 || idStart == len(u.Path)-1 {
		return nil, nil
	}
	playlistID := u.Path[idStart+1:]

	path := c.catalogPath("/playlists/" + url.PathEscape(playlistID))
	if strings.Contains(u.Path, "library") {
		path = "/v1/me/library/playlists/" + url.PathEscape(playlistID)
	}

	params := url.Values{"include": {"tracks"}}
	var response catalogPlaylistResponse
	if err := c.getJSON(ctx, path, params, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, nil
	}
	raw := response.Data[0]

	playlist := &objects.Playlist{
		Type:  objects.TypeUniMusic,
		ID:    shared.GenerateID(),
		Title: raw.Attributes.Name,
	}

	if raw.Attributes.Artwork != nil {
		if err := c.importArtwork(ctx, playlist.ID, raw.Attributes.Artwork.URL); err != nil {
			c.logger.Warn("failed to import playlist artwork", "err", err)
		} else {
			playlist.Artwork = &objects.LocalImage{ID: playlist.ID}
		}
	}

	for _, track := range raw.Relationships.Tracks.Data {
		song := c.song(track)
		playlist.Songs = append(playlist.Songs, objects.KeyOf(song))
	}
	return playlist, nil
}

func (c *Catalog) importArtwork(ctx context.Context, id, template string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formatArtworkURL(template, 512, 512), nil)
	if err != nil {
		return err
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch artwork: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return c.images.Associate(id, data, nil)
}

// #endregion

// #region Playback

// readSeekNopCloser adapts an in-memory stream to the audio output.
type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

// Play resolves the track's stream and loads it into the audio output.
func (c *Catalog) Play(ctx context.Context, song *objects.Song) error {
	if song == nil {
		return fmt.Errorf("no song to play")
	}

	var stream catalogStreamResponse
	if err := c.getJSON(ctx, "/v1/me/stream/"+url.PathEscape(song.ID), nil, &stream); err != nil {
		return err
	}
	if stream.URL == "" {
		return fmt.Errorf("%w: %s has no stream", shared.ErrSongNotFound, song.ID)
	}

	format := stream.Format
	if format == "" {
		format = "mp3"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return err
	}
	resp, err := c.plain.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch stream: status %d", resp.StatusCode)
	}

	// The output needs to seek, so the stream is buffered in full.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	source := platform.AudioSource{
		Reader: readSeekNopCloser{bytes.NewReader(data)},
		Format: format,
	}
	c.armOutput()
	if err := c.output.Load(ctx, source); err != nil {
		return err
	}
	if err := c.output.Play(); err != nil {
		return err
	}

	c.events.EmitPlaying()
	return nil
}

func (c *Catalog) Resume(ctx context.Context) error {
	c.armOutput()
	if err := c.output.Resume(); err != nil {
		return err
	}
	c.events.EmitPlaying()
	return nil
}

func (c *Catalog) Pause(ctx context.Context) error {
	return c.output.Pause()
}

func (c *Catalog) Stop(ctx context.Context) error {
	return c.output.Stop()
}

func (c *Catalog) SeekTo(ctx context.Context, seconds float64) error {
	return c.output.SeekTo(seconds)
}

func (c *Catalog) SetVolume(ctx context.Context, volume float64) error {
	return c.output.SetVolume(volume)
}

// #endregion
