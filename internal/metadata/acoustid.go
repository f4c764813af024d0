package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
)

const acoustIDEndpoint = "https://api.acoustid.org/v2/lookup"

type acoustIDArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type acoustIDReleaseGroup struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type acoustIDRecording struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Duration      float64                `json:"duration"`
	Artists       []acoustIDArtist       `json:"artists"`
	ReleaseGroups []acoustIDReleaseGroup `json:"releasegroups"`
}

type acoustIDResult struct {
	ID         string              `json:"id"`
	Score      float64             `json:"score"`
	Recordings []acoustIDRecording `json:"recordings"`
}

type acoustIDResponse struct {
	Status  string           `json:"status"`
	Results []acoustIDResult `json:"results"`
}

// AcoustID identifies songs by their acoustic fingerprint, so a local file
// is recognized no matter how it is tagged or named. Results are cached by
// both song id and fingerprint.
type AcoustID struct {
	client        *http.Client
	images        *images.Store
	cache         *objects.Cache
	fingerprinter platform.Fingerprinter
	apiKey        string

	// AcoustID responses may carry only a MusicBrainz recording id; the
	// MusicBrainz provider then resolves it.
	musicBrainz *MusicBrainz

	results *lookupCache
	logger  *log.Logger
}

// NewAcoustID creates the provider. The client is expected to carry the
// shared rate limiter.
func NewAcoustID(
	client *http.Client,
	imgs *images.Store,
	cache *objects.Cache,
	fingerprinter platform.Fingerprinter,
	apiKey string,
	states *state.Store,
	logger *log.Logger,
) *AcoustID {
	return &AcoustID{
		client:        client,
		images:        imgs,
		cache:         cache,
		fingerprinter: fingerprinter,
		apiKey:        apiKey,
		musicBrainz:   NewMusicBrainz(client, imgs, cache, logger),
		results:       newLookupCache(states, "AcoustID"),
		logger:        logger,
	}
}

func (a *AcoustID) Name() string { return "AcoustID" }

func (a *AcoustID) Description() string {
	return "Uses AcoustID fingerprinting for metadata retrieval, it can be energy taxing."
}

// Available requires a fingerprinting bridge and a configured client key.
func (a *AcoustID) Available() bool {
	return a.apiKey != "" && a.fingerprinter != nil && a.fingerprinter.Available()
}

func (a *AcoustID) GetMetadata(ctx context.Context, lookup Lookup) (*Metadata, error) {
	if cached, ok := a.results.get(lookup.ID); ok {
		a.logger.Debug("metadata cache hit", "id", lookup.ID)
		return cached, nil
	}

	if lookup.FilePath == "" {
		return nil, nil
	}

	fingerprint, duration, err := a.fingerprinter.Fingerprint(ctx, lookup.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", lookup.FilePath, err)
	}
	if fingerprint == "" {
		a.logger.Debug("no fingerprint read from file", "path", lookup.FilePath)
		return nil, nil
	}

	if cached, ok := a.results.get(fingerprint); ok {
		a.logger.Debug("metadata cache hit from fingerprint", "id", lookup.ID)
		a.results.put(lookup.ID, cached)
		return cached, nil
	}

	if duration == 0 {
		duration = int(math.Round(lookup.Duration))
	}

	meta, err := a.lookupFingerprint(ctx, lookup, fingerprint, duration)
	if err != nil {
		return nil, err
	}

	a.results.put(lookup.ID, meta)
	a.results.put(fingerprint, meta)
	return meta, nil
}

func (a *AcoustID) lookupFingerprint(ctx context.Context, lookup Lookup, fingerprint string, duration int) (*Metadata, error) {
	endpoint, err := url.Parse(acoustIDEndpoint)
	if err != nil {
		return nil, err
	}
	params := endpoint.Query()
	params.Set("client", a.apiKey)
	params.Set("duration", fmt.Sprint(duration))
	params.Set("meta", "compress recordings releases releasegroups tracks")
	params.Set("fingerprint", fingerprint)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to lookup metadata by fingerprint: status %d", resp.StatusCode)
	}

	var response acoustIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	return a.parseResults(ctx, lookup, response)
}

func (a *AcoustID) parseResults(ctx context.Context, lookup Lookup, response acoustIDResponse) (*Metadata, error) {
	var recording *acoustIDRecording
	var bare *acoustIDRecording
	for _, result := range response.Results {
		for i, rec := range result.Recordings {
			if len(rec.ReleaseGroups) > 0 {
				recording = &result.Recordings[i]
				break
			}
			if bare == nil {
				bare = &result.Recordings[i]
			}
		}
		if recording != nil {
			break
		}
	}

	if recording == nil {
		// Only a MusicBrainz id present, resolve the rest there.
		if bare != nil && bare.ID != "" {
			a.logger.Debug("no release groups present, resolving recording via MusicBrainz", "recording", bare.ID)
			return a.musicBrainz.lookupRecording(ctx, lookup, bare.ID)
		}
		return nil, nil
	}

	meta := &Metadata{Title: recording.Title}
	if recording.Duration > 0 {
		meta.Duration = recording.Duration
	}
	for _, group := range recording.ReleaseGroups {
		if group.Type == "Album" {
			meta.Album = group.Title
			break
		}
	}

	for _, artist := range recording.Artists {
		preview := &objects.ArtistPreview{
			Type:  objects.TypeLocal,
			ID:    artist.ID,
			Title: artist.Name,
		}
		a.cache.Cache(preview)
		meta.Artists = append(meta.Artists, objects.ArtistRef{Key: objects.KeyOf(preview)})
	}

	group := recording.ReleaseGroups[0]
	artwork, err := a.musicBrainz.fetchArtwork(ctx, lookup, "release-group", group.ID)
	if err != nil {
		a.logger.Warn("failed to get artwork", "release-group", group.ID, "err", err)
	} else {
		meta.Artwork = artwork
	}

	return meta, nil
}
