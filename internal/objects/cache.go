package objects

import (
	"fmt"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/shared"
)

// Cache is the item cache shared by every service. It is the source of
// truth for key resolution: referencing a key that was never cached is a
// programming error and fails loudly.
type Cache struct {
	mu    sync.RWMutex
	items map[Key]Identifiable
}

// NewCache creates an empty item cache.
func NewCache() *Cache {
	return &Cache{items: make(map[Key]Identifiable)}
}

// Cache stores an item under its identity key, replacing any previous
// value. Writes are idempotent replacement; the last writer wins.
func (c *Cache) Cache(item Identifiable) Identifiable {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[KeyOf(item)] = item
	return item
}

// Remove drops an item from the cache.
func (c *Cache) Remove(item Identifiable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, KeyOf(item))
}

// Clear drops every cached item.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]Identifiable)
}

// Get resolves an identity to a cached item.
func (c *Cache) Get(t ServiceType, id string, kind Kind) (Identifiable, error) {
	return c.FromKey(CreateKey(t, id, kind))
}

// FromKey resolves a key to a cached item. A key that was never cached
// yields an error, never a nil item.
func (c *Cache) FromKey(key Key) (Identifiable, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotCached, key)
	}
	return item, nil
}

// All returns every cached item of the given type and kind.
func (c *Cache) All(t ServiceType, kind Kind) []Identifiable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var items []Identifiable
	for _, item := range c.items {
		itemType, _, itemKind := item.Identity()
		if itemType == t && itemKind == kind {
			items = append(items, item)
		}
	}
	return items
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SongFromKey resolves a key to a cached *Song.
func (c *Cache) SongFromKey(key Key) (*Song, error) {
	item, err := c.FromKey(key)
	if err != nil {
		return nil, err
	}
	song, ok := item.(*Song)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a song", shared.ErrInvalidKey, key)
	}
	return song, nil
}

// ArtistFromKey resolves a key to a cached *Artist.
func (c *Cache) ArtistFromKey(key Key) (*Artist, error) {
	item, err := c.FromKey(key)
	if err != nil {
		return nil, err
	}
	artist, ok := item.(*Artist)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an artist", shared.ErrInvalidKey, key)
	}
	return artist, nil
}

// FilledArtist resolves an artist reference into a displayable preview.
// By-key references must already be cached.
func (c *Cache) FilledArtist(ref ArtistRef) (*ArtistPreview, error) {
	if ref.Inline() {
		return &ArtistPreview{ID: ref.ID, Title: ref.Title, Artwork: ref.Artwork}, nil
	}

	item, err := c.FromKey(ref.Key)
	if err != nil {
		return nil, fmt.Errorf("tried to retrieve artist %s: %w", ref.Key, err)
	}

	switch artist := item.(type) {
	case *Artist:
		return &ArtistPreview{Type: artist.Type, ID: artist.ID, Title: artist.Title, Artwork: artist.Artwork}, nil
	case *ArtistPreview:
		return artist, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an artist", shared.ErrInvalidKey, ref.Key)
	}
}

// FilledAlbumSong resolves an album's song slot. By-key references must
// already be cached.
func (c *Cache) FilledAlbumSong(albumSong AlbumSong) (*SongPreview, error) {
	if albumSong.Song.Inline() {
		return albumSong.Song.Preview, nil
	}

	item, err := c.FromKey(albumSong.Song.Key)
	if err != nil {
		return nil, fmt.Errorf("album tried to retrieve song %s: %w", albumSong.Song.Key, err)
	}

	switch song := item.(type) {
	case *Song:
		return song.Preview(), nil
	case *SongPreview:
		return song, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a song", shared.ErrInvalidKey, albumSong.Song.Key)
	}
}

// FilledPlaylistSongs resolves every song of a playlist. All songs of a
// playlist must already be cached.
func (c *Cache) FilledPlaylistSongs(playlist *Playlist) ([]*Song, error) {
	songs := make([]*Song, 0, len(playlist.Songs))
	for _, key := range playlist.Songs {
		song, err := c.SongFromKey(key)
		if err != nil {
			return nil, fmt.Errorf("playlist tried to retrieve song %s: %w", key, err)
		}
		songs = append(songs, song)
	}
	return songs, nil
}
