// package objects defines the shared entity model for every music service:
// songs, albums, artists and playlists, their preview forms, and the stable
// keys used for weak references between them.
package objects

import (
	"fmt"
	"net/url"
	"strings"
)

// ServiceType identifies the provider an entity belongs to.
type ServiceType string

const (
	TypeLocal   ServiceType = "local"
	TypeCatalog ServiceType = "catalog"
	TypeVideo   ServiceType = "video"

	// TypeUniMusic owns entities created by this app itself (playlists).
	TypeUniMusic ServiceType = "unimusic"
)

// Kind discriminates entity shapes sharing a ServiceType.
type Kind string

const (
	KindSong            Kind = "song"
	KindSongPreview     Kind = "songPreview"
	KindAlbum           Kind = "album"
	KindAlbumPreview    Kind = "albumPreview"
	KindArtist          Kind = "artist"
	KindArtistPreview   Kind = "artistPreview"
	KindPlaylist        Kind = "playlist"
	KindPlaylistPreview Kind = "playlistPreview"
)

// Identifiable is implemented by every cacheable entity.
// (type, id, kind) forms a globally unique, stable identity.
type Identifiable interface {
	Identity() (ServiceType, string, Kind)
}

// Key is the stable string form of an entity identity, used for weak
// back-references between entities. Never an ownership relation.
type Key string

// CreateKey builds a Key from its parts. Parts are URL-escaped so ids may
// contain the separator.
func CreateKey(t ServiceType, id string, kind Kind) Key {
	return Key(url.PathEscape(string(t)) + "/" + url.PathEscape(id) + "/" + url.PathEscape(string(kind)))
}

// KeyOf returns the Key for an entity.
func KeyOf(item Identifiable) Key {
	t, id, kind := item.Identity()
	return CreateKey(t, id, kind)
}

// ParseKey unpacks a Key into its parts.
func ParseKey(key Key) (ServiceType, string, Kind, error) {
	parts := strings.Split(string(key), "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("tried unpacking invalid key %q", key)
	}

	t, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", "", fmt.Errorf("invalid key %q: %w", key, err)
	}
	id, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", "", fmt.Errorf("invalid key %q: %w", key, err)
	}
	kind, err := url.PathUnescape(parts[2])
	if err != nil {
		return "", "", "", fmt.Errorf("invalid key %q: %w", key, err)
	}

	return ServiceType(t), id, Kind(kind), nil
}

// LocalImage points at artwork: either an external URL or an id into the
// local image store. Exactly one of the fields is set.
type LocalImage struct {
	URL string `json:"url,omitempty"`
	ID  string `json:"id,omitempty"`
}

// Style is the display style derived once from an entity's artwork.
type Style struct {
	Foreground string `json:"fgColor"`
	Background string `json:"bgColor"`
	Gradient   string `json:"gradient"`
}

// ArtistRef references an artist either by key or inline, for display
// before full resolution.
type ArtistRef struct {
	Key Key `json:"key,omitempty"`

	// Inline preview fields, used when Key is empty.
	ID      string      `json:"id,omitempty"`
	Title   string      `json:"title,omitempty"`
	Artwork *LocalImage `json:"artwork,omitempty"`
}

// Inline reports whether the reference carries its own display data.
func (r ArtistRef) Inline() bool { return r.Key == "" }

// SongRef references a song either by key or as an inline preview.
type SongRef struct {
	Key     Key          `json:"key,omitempty"`
	Preview *SongPreview `json:"preview,omitempty"`
}

// Inline reports whether the reference carries its own song preview.
func (r SongRef) Inline() bool { return r.Key == "" }
