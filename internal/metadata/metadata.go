// package metadata enriches songs with externally sourced tags. Providers
// are consulted in a user-configurable order and the first one returning a
// result wins; manual per-song overrides sit on top of whatever the
// providers found.
package metadata

import (
	"context"

	"github.com/UniMusic-app/unimusic/internal/objects"
)

const userAgent = "UniMusic/0.1 (https://github.com/UniMusic-app/unimusic)"

// Lookup describes the song a provider should identify. Every field is a
// hint; providers use whichever subset they understand.
type Lookup struct {
	// ID keys the result, and any artwork it produces, in local stores.
	ID string

	Title    string
	Album    string
	Artists  []string
	Duration float64
	ISRC     string

	// FilePath and FileName let fingerprinting providers reach the audio
	// itself.
	FilePath string
	FileName string
}

// Metadata is what a provider managed to find. Zero-valued fields were
// simply not found.
type Metadata struct {
	ISRC []string `json:"isrc,omitempty"`

	Title   string              `json:"title,omitempty"`
	Album   string              `json:"album,omitempty"`
	Artists []objects.ArtistRef `json:"artists,omitempty"`
	Genres  []string            `json:"genres,omitempty"`

	Duration float64             `json:"duration,omitempty"`
	Artwork  *objects.LocalImage `json:"artwork,omitempty"`

	DiscNumber  int `json:"discNumber,omitempty"`
	TrackNumber int `json:"trackNumber,omitempty"`
}

// Provider identifies songs against an external source. GetMetadata
// returns (nil, nil) when the source has no match; errors are reserved for
// failures worth reporting.
type Provider interface {
	Name() string
	Description() string
	Available() bool
	GetMetadata(ctx context.Context, lookup Lookup) (*Metadata, error)
}
