package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/charmbracelet/log"
)

// videoItem is the wire shape of a video usable as a song.
type videoItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Album      string  `json:"album"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Unplayable bool    `json:"unplayable"`
}

type videoSearchResponse struct {
	Items         []videoItem `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

type videoStreamResponse struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Video plays the audio track of videos from a video platform. Search and
// resolution go through its REST API; playback pulls the audio stream
// into the host output.
type Video struct {
	baseURL string
	apiKey  string
	client  *http.Client
	output  platform.AudioOutput
	images  *images.Store
	cache   *objects.Cache
	events  *Events
	logger  *log.Logger
}

// NewVideo creates the provider. The client is expected to carry the
// shared rate limiter.
func NewVideo(
	baseURL string,
	apiKey string,
	client *http.Client,
	output platform.AudioOutput,
	imgs *images.Store,
	cache *objects.Cache,
	events *Events,
	logger *log.Logger,
) *Video {
	return &Video{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		output:  output,
		images:  imgs,
		cache:   cache,
		events:  events,
		logger:  logger,
	}
}

func (v *Video) Type() objects.ServiceType    { return objects.TypeVideo }
func (v *Video) Name() string                 { return "Video" }
func (v *Video) Available() bool              { return v.baseURL != "" }
func (v *Video) Authorization() *auth.Service { return nil }

func (v *Video) Initialize(ctx context.Context) error {
	return nil
}

// armOutput points the shared audio output's callbacks at this service.
func (v *Video) armOutput() {
	v.output.OnTime(func(seconds float64) {
		v.events.EmitTimeUpdate(seconds)
	})
	v.output.OnEnded(func() {
		v.events.EmitEnded()
	})
}

func (v *Video) Deinitialize(ctx context.Context) error {
	return v.output.Stop()
}

func (v *Video) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if v.apiKey != "" {
		params.Set("key", v.apiKey)
	}

	endpoint := v.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video request %s failed: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// song maps a video into a Song, importing its thumbnail as artwork.
func (v *Video) song(ctx context.Context, item videoItem) *objects.Song {
	song := &objects.Song{
		Type:      objects.TypeVideo,
		ID:        item.ID,
		Available: !item.Unplayable,
		Title:     item.Title,
		Album:     item.Album,
		Duration:  item.Duration,
		Data:      objects.SongData{MusicVideo: true},
	}
	if item.Author != "" {
		song.Artists = []objects.ArtistRef{{Title: item.Author}}
	}

	if item.Thumbnail != "" {
		if err := v.importThumbnail(ctx, item.ID, item.Thumbnail); err != nil {
			v.logger.Debug("failed to import thumbnail", "video", item.ID, "err", err)
			song.Artwork = &objects.LocalImage{URL: item.Thumbnail}
		} else {
			song.Artwork = &objects.LocalImage{ID: item.ID}
		}
	}

	v.cache.Cache(song)
	return song
}

func (v *Video) importThumbnail(ctx context.Context, id, thumbnailURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch thumbnail: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	bounds := images.Bounds{Width: 256, Height: 256}
	return v.images.Associate(id, data, &bounds)
}

// #region Catalog operations

func (v *Video) SearchHints(ctx context.Context, term string) ([]string, error) {
	if term == "" {
		return nil, nil
	}

	var response struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := v.getJSON(ctx, "/search/suggestions", url.Values{"q": {term}}, &response); err != nil {
		return nil, err
	}
	return response.Suggestions, nil
}

func (v *Video) SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error) {
	params := url.Values{
		"q":      {term},
		"type":   {"song"},
		"offset": {strconv.Itoa(offset)},
	}

	var response videoSearchResponse
	if err := v.getJSON(ctx, "/search", params, &response); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, item := range response.Items {
		result := SearchResult{
			Type:  objects.TypeVideo,
			ID:    item.ID,
			Title: item.Title,
			Album: item.Album,
		}
		if item.Author != "" {
			result.Artists = []string{item.Author}
		}
		if item.Thumbnail != "" {
			result.Artwork = &objects.LocalImage{URL: item.Thumbnail}
		}
		results = append(results, result)
	}
	return results, nil
}

func (v *Video) SongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error) {
	song, err := v.GetSong(ctx, result.ID)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, result.ID)
	}
	return song, nil
}

// GetSong resolves a watch id into a song.
func (v *Video) GetSong(ctx context.Context, id string) (*objects.Song, error) {
	var item videoItem
	if err := v.getJSON(ctx, "/videos/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return v.song(ctx, item), nil
}

func (v *Video) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	refreshed, err := v.GetSong(ctx, song.ID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, song.ID)
	}
	return refreshed, nil
}

// LibrarySongs returns nothing; the video platform has no user library
// here.
func (v *Video) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	return nil, nil
}

func (v *Video) RefreshLibrary(ctx context.Context) error {
	return nil
}

// #endregion

// #region Playback

// Play resolves the audio stream of the video and loads it into the
// output.
func (v *Video) Play(ctx context.Context, song *objects.Song) error {
	if song == nil {
		return fmt.Errorf("no song to play")
	}

	var stream videoStreamResponse
	if err := v.getJSON(ctx, "/videos/"+url.PathEscape(song.ID)+"/stream", nil, &stream); err != nil {
		return err
	}
	if stream.URL == "" {
		return fmt.Errorf("%w: %s has no audio stream", shared.ErrSongNotFound, song.ID)
	}

	format := stream.Format
	if format == "" {
		format = "mp3"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch stream: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	source := platform.AudioSource{
		Reader: readSeekNopCloser{bytes.NewReader(data)},
		Format: format,
	}
	v.armOutput()
	if err := v.output.Load(ctx, source); err != nil {
		return err
	}
	if err := v.output.Play(); err != nil {
		return err
	}

	v.events.EmitPlaying()
	return nil
}

func (v *Video) Resume(ctx context.Context) error {
	v.armOutput()
	if err := v.output.Resume(); err != nil {
		return err
	}
	v.events.EmitPlaying()
	return nil
}

func (v *Video) Pause(ctx context.Context) error {
	return v.output.Pause()
}

func (v *Video) Stop(ctx context.Context) error {
	return v.output.Stop()
}

func (v *Video) SeekTo(ctx context.Context, seconds float64) error {
	return v.output.SeekTo(seconds)
}

func (v *Video) SetVolume(ctx context.Context, volume float64) error {
	return v.output.SetVolume(volume)
}

// #endregion
