package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/charmbracelet/log"
)

const (
	musicBrainzEndpoint    = "https://musicbrainz.org/ws/2/"
	coverArtArchiveBaseURL = "https://coverartarchive.org/"
)

type musicBrainzArtistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type musicBrainzReleaseGroup struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PrimaryType string `json:"primary-type"`
}

type musicBrainzRelease struct {
	ID           string                    `json:"id"`
	Title        string                    `json:"title"`
	ArtistCredit []musicBrainzArtistCredit `json:"artist-credit"`
	ReleaseGroup musicBrainzReleaseGroup   `json:"release-group"`
}

type musicBrainzRecording struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Length   int                  `json:"length"`
	Releases []musicBrainzRelease `json:"releases"`
	ISRCs    []string             `json:"isrcs"`
}

type musicBrainzResponse struct {
	Recordings []musicBrainzRecording `json:"recordings"`
}

// MusicBrainz identifies songs by searching the MusicBrainz recording
// database with whatever textual hints the lookup carries. Artwork comes
// from the Cover Art Archive.
type MusicBrainz struct {
	client *http.Client
	images *images.Store
	cache  *objects.Cache
	logger *log.Logger
}

// NewMusicBrainz creates the provider. The client is expected to carry
// the shared rate limiter.
func NewMusicBrainz(client *http.Client, imgs *images.Store, cache *objects.Cache, logger *log.Logger) *MusicBrainz {
	return &MusicBrainz{client: client, images: imgs, cache: cache, logger: logger}
}

func (m *MusicBrainz) Name() string { return "MusicBrainz" }

func (m *MusicBrainz) Description() string {
	return "Looks up song information in the MusicBrainz recording database."
}

func (m *MusicBrainz) Available() bool { return true }

// fileNamePattern splits "Artist - Title" shaped file names.
var (
	fileNamePattern   = regexp.MustCompile(`\s+?-\s+?`)
	artistListPattern = regexp.MustCompile(`\s*(?:&|,)\s+`)
	parentheticalTail = regexp.MustCompile(`\(.+`)
)

// guessFromFileName fills missing title and artists from an
// "Artist - Title" shaped file name.
func guessFromFileName(lookup Lookup) Lookup {
	if lookup.FileName == "" {
		return lookup
	}

	parts := fileNamePattern.Split(lookup.FileName, 2)
	if len(parts) != 2 {
		return lookup
	}

	if lookup.Title == "" {
		lookup.Title = strings.TrimSpace(parentheticalTail.ReplaceAllString(parts[1], ""))
	}
	if len(lookup.Artists) == 0 {
		lookup.Artists = artistListPattern.Split(parts[0], -1)
	}
	return lookup
}

func (m *MusicBrainz) GetMetadata(ctx context.Context, lookup Lookup) (*Metadata, error) {
	lookup = guessFromFileName(lookup)

	var query strings.Builder
	if lookup.Title != "" {
		fmt.Fprintf(&query, "recording:%s", lookup.Title)
	}
	if lookup.Album != "" {
		fmt.Fprintf(&query, " AND album:%s", lookup.Album)
	}
	if len(lookup.Artists) > 0 {
		fmt.Fprintf(&query, " AND artist:%s", lookup.Artists[0])
	}
	if lookup.Duration > 0 {
		// MusicBrainz measures duration in ms, allow 2s of leeway.
		duration := int(lookup.Duration * 1000)
		fmt.Fprintf(&query, " AND dur:[%d TO %d]", duration-2000, duration+2000)
	}
	if query.Len() == 0 {
		return nil, nil
	}

	endpoint, err := url.Parse(musicBrainzEndpoint + "recording")
	if err != nil {
		return nil, err
	}
	params := endpoint.Query()
	params.Set("query", strings.TrimSpace(query.String()))
	params.Set("fmt", "json")
	endpoint.RawQuery = params.Encode()

	var response musicBrainzResponse
	if err := m.getJSON(ctx, endpoint.String(), &response); err != nil {
		return nil, fmt.Errorf("failed to lookup metadata: %w", err)
	}

	return m.parseRecordings(ctx, lookup, response)
}

// lookupRecording fetches a single recording by its MusicBrainz id.
func (m *MusicBrainz) lookupRecording(ctx context.Context, lookup Lookup, id string) (*Metadata, error) {
	endpoint := musicBrainzEndpoint + "recording/" + url.PathEscape(id) + "?fmt=json&inc=releases+artist-credits+isrcs"

	var recording musicBrainzRecording
	if err := m.getJSON(ctx, endpoint, &recording); err != nil {
		return nil, fmt.Errorf("failed to lookup recording %s: %w", id, err)
	}

	return m.parseRecordings(ctx, lookup, musicBrainzResponse{Recordings: []musicBrainzRecording{recording}})
}

// parseRecordings turns a recording search response into Metadata,
// taking the first recording with a release.
func (m *MusicBrainz) parseRecordings(ctx context.Context, lookup Lookup, response musicBrainzResponse) (*Metadata, error) {
	if len(response.Recordings) == 0 {
		return nil, nil
	}
	recording := response.Recordings[0]
	if len(recording.Releases) == 0 {
		return nil, nil
	}
	release := recording.Releases[0]

	meta := &Metadata{Title: recording.Title, ISRC: recording.ISRCs}
	if recording.Length > 0 {
		meta.Duration = float64(recording.Length) / 1000
	}
	if release.ReleaseGroup.PrimaryType == "Album" {
		meta.Album = release.ReleaseGroup.Title
	}

	for _, credit := range release.ArtistCredit {
		preview := &objects.ArtistPreview{
			Type:  objects.TypeLocal,
			ID:    credit.Artist.ID,
			Title: credit.Artist.Name,
		}
		m.cache.Cache(preview)
		meta.Artists = append(meta.Artists, objects.ArtistRef{Key: objects.KeyOf(preview)})
	}

	artwork, err := m.fetchArtwork(ctx, lookup, "release-group", release.ReleaseGroup.ID)
	if err != nil {
		m.logger.Warn("failed to get artwork", "release-group", release.ReleaseGroup.ID, "err", err)
	} else {
		meta.Artwork = artwork
	}

	return meta, nil
}

// fetchArtwork pulls the front cover from the Cover Art Archive and files
// it in the image store under the lookup id.
func (m *MusicBrainz) fetchArtwork(ctx context.Context, lookup Lookup, kind, id string) (*objects.LocalImage, error) {
	endpoint := coverArtArchiveBaseURL + url.PathEscape(kind) + "/" + url.PathEscape(id) + "/front"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get artwork for %s %s: status %d", kind, id, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := m.images.Associate(lookup.ID, data, nil); err != nil {
		return nil, err
	}
	return &objects.LocalImage{ID: lookup.ID}, nil
}

func (m *MusicBrainz) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
