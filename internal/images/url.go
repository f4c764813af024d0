package images

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// URLHandle is a reference-counted materialized URL for a stored image.
// Callers must Release every handle; the backing file is removed when the
// last reference drops. Cleanup timing is therefore explicit, not left to
// garbage collection.
type URLHandle struct {
	table *urlTable
	key   string

	url  string
	path string
	refs int
}

// URL returns the materialized file URL.
func (h *URLHandle) URL() string { return h.url }

// Retain adds a reference to the handle.
func (h *URLHandle) Retain() *URLHandle {
	h.table.mu.Lock()
	defer h.table.mu.Unlock()
	h.refs++
	return h
}

// Release drops a reference. The final release removes the backing file
// and evicts the cache entry.
func (h *URLHandle) Release() {
	h.table.mu.Lock()
	defer h.table.mu.Unlock()

	h.refs--
	if h.refs > 0 {
		return
	}

	delete(h.table.entries, h.key)
	os.Remove(h.path)
}

// urlTable caches live handles keyed by id+size.
type urlTable struct {
	mu      sync.Mutex
	entries map[string]*URLHandle
}

func newURLTable() *urlTable {
	return &urlTable{entries: make(map[string]*URLHandle)}
}

func (t *urlTable) evict(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, handle := range t.entries {
		if handle.refs > 0 && (key == id+"/large" || key == id+"/small") {
			delete(t.entries, key)
			os.Remove(handle.path)
		}
	}
}

func (t *urlTable) evictAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, handle := range t.entries {
		delete(t.entries, key)
		os.Remove(handle.path)
	}
}

// BlobURL lazily materializes an ephemeral URL for a stored image variant.
// Repeated calls for the same id and size share one handle; the id's alias
// chain is flattened first.
func (s *Store) BlobURL(id string, size Size) (*URLHandle, error) {
	canonical, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	key := canonical + "/" + string(size)

	s.urls.mu.Lock()
	if handle, ok := s.urls.entries[key]; ok {
		handle.refs++
		s.urls.mu.Unlock()
		return handle, nil
	}
	s.urls.mu.Unlock()

	data, mime, err := s.Blob(canonical, size)
	if err != nil {
		return nil, err
	}

	ext := ".png"
	if mime == "image/jpeg" {
		ext = ".jpg"
	}

	file, err := os.CreateTemp("", "unimusic-image-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize image %s: %w", id, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to materialize image %s: %w", id, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to materialize image %s: %w", id, err)
	}

	path := file.Name()
	handle := &URLHandle{
		table: s.urls,
		key:   key,
		url:   "file://" + filepath.ToSlash(path),
		path:  path,
		refs:  1,
	}

	s.urls.mu.Lock()
	// Another caller may have raced us here; prefer the existing handle.
	if existing, ok := s.urls.entries[key]; ok {
		existing.refs++
		s.urls.mu.Unlock()
		os.Remove(path)
		return existing, nil
	}
	s.urls.entries[key] = handle
	s.urls.mu.Unlock()

	return handle, nil
}
