package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/charmbracelet/log"
)

// https://github.com/tranxuanthang/lrclib
const lrclibEndpoint = "https://lrclib.net/api/"

type lrclibGetResponse struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLIB fetches lyrics from lrclib.net.
type LRCLIB struct {
	client *http.Client
	cache  *objects.Cache
	logger *log.Logger
}

// NewLRCLIB creates the provider. The client is expected to carry the
// shared rate limiter.
func NewLRCLIB(client *http.Client, cache *objects.Cache, logger *log.Logger) *LRCLIB {
	return &LRCLIB{client: client, cache: cache, logger: logger}
}

func (l *LRCLIB) Name() string { return "LRCLIB" }

func (l *LRCLIB) GetLyrics(ctx context.Context, song *objects.Song) (*Lyrics, error) {
	endpoint, err := url.Parse(lrclibEndpoint + "get")
	if err != nil {
		return nil, err
	}

	params := endpoint.Query()
	if song.Title != "" {
		params.Set("track_name", song.Title)
	}
	if song.Album != "" && !strings.Contains(song.Album, "- Single") {
		params.Set("album_name", song.Album)
	}
	if song.Duration > 0 {
		params.Set("duration", fmt.Sprint(int(song.Duration)))
	}
	if len(song.Artists) > 0 {
		if artist, err := l.cache.FilledArtist(song.Artists[0]); err == nil && artist.Title != "" {
			params.Set("artist_name", artist.Title)
		}
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed fetching lyrics for %s: %w", song.Title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var response lrclibGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	lyrics := &Lyrics{
		Provider: ProviderInfo{Title: "LRCLIB", URL: "https://lrclib.net/"},
		Lyrics:   ParseLines(response.PlainLyrics),
	}
	if response.SyncedLyrics != "" {
		lyrics.SyncedLyrics = ParseSyncedLines(response.SyncedLyrics)
	}
	return lyrics, nil
}
