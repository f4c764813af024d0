// package syncstore keeps watched music directories synchronized with a
// shared remote document store. The remote itself is opaque; this package
// owns the bookkeeping of which local files changed, which remote entries
// are new and which disappeared since the last run.
package syncstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
)

// ErrInvalidPath rejects sync paths that escape their directory or
// normalize to nothing.
var ErrInvalidPath = errors.New("invalid sync path")

// Ticket is an opaque sharing token for a namespace.
type Ticket string

// FileEntry describes a file as the remote knows it.
type FileEntry struct {
	ContentHash string `json:"contentHash"`
	Size        int64  `json:"size"`
}

// Remote is the synchronization backend. Namespaces are replicated
// document sets; files inside them are addressed by relative sync paths.
type Remote interface {
	CreateNamespace(ctx context.Context) (string, error)
	DeleteNamespace(ctx context.Context, namespace string) error

	WriteFile(ctx context.Context, namespace, syncPath, sourcePath string) error
	DeleteFile(ctx context.Context, namespace, syncPath string) error
	Export(ctx context.Context, namespace, syncPath, destinationPath string) error
	ExportHash(ctx context.Context, fileHash, destinationPath string) error
	GetFiles(ctx context.Context, namespace string) (map[string]FileEntry, error)

	Share(ctx context.Context, namespace string) (Ticket, error)
	Import(ctx context.Context, ticket Ticket) (string, error)

	Sync(ctx context.Context, namespace string) error
	Reconnect(ctx context.Context) error
}

// FileInfo is what the store remembers about a local file between runs.
type FileInfo struct {
	SourcePath string     `json:"sourcePath"`
	Mtime      int64      `json:"mtime"`
	Size       int64      `json:"size"`
	Entry      *FileEntry `json:"entry,omitempty"`
}

// syncData is the persisted bookkeeping.
type syncData struct {
	// Namespaces maps namespace id to the watched directory.
	Namespaces map[string]string `json:"namespaces"`
	// Recorded maps namespace id to the per-file info of the last run.
	Recorded map[string]map[string]FileInfo `json:"watchedDirectories"`
}

const syncStateKey = "UniMusicSync"

// audioExtensions limits synchronization to music files.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// Store drives synchronization between watched directories and the
// remote.
type Store struct {
	remote Remote
	fs     platform.FileSystem
	states *state.Store
	logger *log.Logger

	mu      sync.Mutex
	syncing bool
	data    syncData
}

// NewStore restores the persisted namespace bookkeeping.
func NewStore(remote Remote, fs platform.FileSystem, states *state.Store, logger *log.Logger) (*Store, error) {
	s := &Store{
		remote: remote,
		fs:     fs,
		states: states,
		logger: logger,
		data: syncData{
			Namespaces: make(map[string]string),
			Recorded:   make(map[string]map[string]FileInfo),
		},
	}

	if err := states.Get(syncStateKey, &s.data); err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	if s.data.Namespaces == nil {
		s.data.Namespaces = make(map[string]string)
	}
	if s.data.Recorded == nil {
		s.data.Recorded = make(map[string]map[string]FileInfo)
	}
	return s, nil
}

func (s *Store) persistLocked() error {
	return s.states.Set(syncStateKey, s.data)
}

// Namespaces returns namespace id to directory of everything watched.
func (s *Store) Namespaces() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	namespaces := make(map[string]string, len(s.data.Namespaces))
	for namespace, dir := range s.data.Namespaces {
		namespaces[namespace] = dir
	}
	return namespaces
}

var slashRun = regexp.MustCompile(`/+`)

// NormalizeRelativePath canonicalizes a sync path: windows separators
// become slashes, leading and trailing slashes drop, and paths escaping
// the directory are rejected.
func NormalizeRelativePath(path string) (string, error) {
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.Trim(path, "/")

	var segments []string
	for _, segment := range slashRun.Split(path, -1) {
		switch segment {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidPath
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return "", fmt.Errorf("%w: %q is empty after normalization", ErrInvalidPath, path)
	}
	return strings.Join(segments, "/"), nil
}

// GetOrCreateNamespace returns the namespace watching a directory,
// creating one on the remote when none exists yet.
func (s *Store) GetOrCreateNamespace(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	for namespace, namespacePath := range s.data.Namespaces {
		if namespacePath == path {
			s.mu.Unlock()
			return namespace, nil
		}
	}
	s.mu.Unlock()

	namespace, err := s.remote.CreateNamespace(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.data.Namespaces[namespace] = path
	err = s.persistLocked()
	s.mu.Unlock()
	return namespace, err
}

// DeleteNamespace forgets a namespace locally and deletes it remotely.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	delete(s.data.Namespaces, namespace)
	delete(s.data.Recorded, namespace)
	err := s.persistLocked()
	s.mu.Unlock()

	return errors.Join(err, s.remote.DeleteNamespace(ctx, namespace))
}

// ShareNamespace returns a ticket another device can import.
func (s *Store) ShareNamespace(ctx context.Context, namespace string) (Ticket, error) {
	return s.remote.Share(ctx, namespace)
}

// ImportNamespace joins a shared namespace and watches it at path.
// Importing an already-watched namespace is an error; remove it first.
func (s *Store) ImportNamespace(ctx context.Context, ticket Ticket, path string) (string, error) {
	namespace, err := s.remote.Import(ctx, ticket)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Namespaces[namespace]; ok {
		return "", fmt.Errorf("namespace %s was already imported, remove it first if you want to move it", namespace)
	}

	s.data.Namespaces[namespace] = path
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return namespace, nil
}

// SyncFiles runs one full push/pull pass over every namespace. A pass
// already in flight makes this a no-op.
func (s *Store) SyncFiles(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}
	s.syncing = true
	namespaces := make(map[string]string, len(s.data.Namespaces))
	for namespace, dir := range s.data.Namespaces {
		namespaces[namespace] = dir
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	s.logger.Debug("reconnecting")
	if err := s.remote.Reconnect(ctx); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	for namespace, dir := range namespaces {
		if err := s.syncNamespace(ctx, namespace, dir); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("failed to sync namespace", "namespace", namespace, "err", err)
		}
	}

	s.logger.Debug("sync finished")
	return nil
}

func (s *Store) syncNamespace(ctx context.Context, namespace, dir string) error {
	s.logger.Debug("syncing namespace", "namespace", namespace, "dir", dir)

	if err := s.remote.Sync(ctx, namespace); err != nil {
		s.logger.Warn("remote sync failed, continuing with last known state", "namespace", namespace, "err", err)
	}

	remoteFiles, err := s.remote.GetFiles(ctx, namespace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	lastRecorded := s.data.Recorded[namespace]
	s.mu.Unlock()

	recorded := make(map[string]FileInfo)

	paths, err := s.fs.Traverse(dir)
	if err != nil {
		return err
	}

	for _, absolutePath := range paths {
		if !audioExtensions[strings.ToLower(filepath.Ext(absolutePath))] {
			continue
		}

		relative, err := filepath.Rel(dir, absolutePath)
		if err != nil {
			continue
		}
		syncPath, err := NormalizeRelativePath(relative)
		if err != nil {
			s.logger.Warn("skipping unsyncable path", "path", absolutePath, "err", err)
			continue
		}

		info, err := s.fs.Stat(absolutePath)
		if err != nil {
			return err
		}

		mtime := info.ModTime.UnixMilli()
		lastInfo, hasLast := lastRecorded[syncPath]
		entry, hasEntry := remoteFiles[syncPath]

		switch {
		case !hasEntry || !hasLast:
			s.logger.Debug("pushing new local file", "path", syncPath)
			err = s.remote.WriteFile(ctx, namespace, syncPath, absolutePath)
		case lastInfo.Entry != nil && entry.ContentHash != lastInfo.Entry.ContentHash:
			s.logger.Debug("pulling new remote value", "path", syncPath)
			err = s.remote.ExportHash(ctx, entry.ContentHash, absolutePath)
		case lastInfo.Mtime != mtime || lastInfo.Size != info.Size:
			s.logger.Debug("pushing modified file", "path", syncPath)
			err = s.remote.WriteFile(ctx, namespace, syncPath, absolutePath)
		default:
			// Already up to date.
		}
		if err != nil {
			return err
		}

		recordedEntry := FileInfo{SourcePath: absolutePath, Mtime: mtime, Size: info.Size}
		if hasEntry {
			recordedEntry.Entry = &entry
		}
		recorded[syncPath] = recordedEntry
	}

	// Remote entries not seen locally: deleted here, or missing and to be
	// retrieved.
	for syncPath, entry := range remoteFiles {
		if _, seen := recorded[syncPath]; seen {
			continue
		}

		if _, hadBefore := lastRecorded[syncPath]; hadBefore {
			s.logger.Debug("propagating local deletion", "path", syncPath)
			if err := s.remote.DeleteFile(ctx, namespace, syncPath); err != nil {
				return err
			}
			continue
		}

		destination := filepath.Join(dir, filepath.FromSlash(syncPath))
		s.logger.Debug("retrieving missing file", "path", syncPath, "to", destination)
		if err := s.remote.Export(ctx, namespace, syncPath, destination); err != nil {
			return err
		}
		recorded[syncPath] = FileInfo{SourcePath: destination, Size: entry.Size, Entry: &entry}
	}

	s.mu.Lock()
	s.data.Recorded[namespace] = recorded
	err = s.persistLocked()
	s.mu.Unlock()
	return err
}
