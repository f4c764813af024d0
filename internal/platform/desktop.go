package platform

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/shared"
)

// NewDesktopBridge assembles the desktop capability set.
func NewDesktopBridge() *Bridge {
	return &Bridge{
		Platform:      PlatformDesktop,
		FileSystem:    DesktopFileSystem{},
		Fingerprinter: NoFingerprinter{},
		MediaSession:  &NoopMediaSession{},
		AudioOutput:   NewBeepOutput(),
	}
}

// DesktopFileSystem is the os-backed FileSystem.
type DesktopFileSystem struct{}

func (DesktopFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (DesktopFileSystem) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}

func (DesktopFileSystem) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (DesktopFileSystem) Traverse(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// NoFingerprinter is used where no chromaprint bridge exists.
type NoFingerprinter struct{}

func (NoFingerprinter) Available() bool { return false }

func (NoFingerprinter) Fingerprint(ctx context.Context, path string) (string, int, error) {
	return "", 0, shared.ErrNotSupported
}

// NoopMediaSession is used on hosts without system media controls. It
// remembers handlers so tests can drive them.
type NoopMediaSession struct {
	Handlers SessionHandlers
	Playing  bool
	Title    string
	Artist   string
	Album    string
	Artwork  string
}

func (s *NoopMediaSession) SetMetadata(title, artist, album, artworkURL string) {
	s.Title, s.Artist, s.Album, s.Artwork = title, artist, album, artworkURL
}

func (s *NoopMediaSession) SetPlaybackState(playing bool) { s.Playing = playing }

func (s *NoopMediaSession) SetHandlers(handlers SessionHandlers) { s.Handlers = handlers }

func (s *NoopMediaSession) Clear() {
	s.Title, s.Artist, s.Album, s.Artwork = "", "", "", ""
	s.Playing = false
}
