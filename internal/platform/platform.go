// package platform defines the capability bridge between the playback
// engine and the host platform. Every capability is an interface injected
// at startup; the engine never reaches for ambient globals. Failures from
// the bridge are ordinary errors.
package platform

import (
	"context"
	"io"
	"time"
)

// Platform discriminates the host at runtime.
type Platform string

const (
	PlatformDesktop  Platform = "desktop"
	PlatformElectron Platform = "electron"
	PlatformIOS      Platform = "ios"
	PlatformAndroid  Platform = "android"
	PlatformWeb      Platform = "web"
)

// FileInfo describes a file for library scanning and sync snapshots.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// FileSystem exposes the host's file access.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Open(path string) (io.ReadSeekCloser, error)
	Stat(path string) (FileInfo, error)
	// Traverse walks root recursively and returns regular-file paths,
	// skipping hidden files.
	Traverse(root string) ([]string, error)
}

// Fingerprinter computes acoustic content signatures for local audio
// files, identifying a recording independent of its tags or filename.
type Fingerprinter interface {
	Available() bool
	Fingerprint(ctx context.Context, path string) (fingerprint string, duration int, err error)
}

// SessionHandlers receive transport commands from the system media UI.
type SessionHandlers struct {
	Play     func()
	Pause    func()
	Next     func()
	Previous func()
}

// MediaSession bridges to the system media controls.
type MediaSession interface {
	SetMetadata(title, artist, album, artworkURL string)
	SetPlaybackState(playing bool)
	SetHandlers(handlers SessionHandlers)
	Clear()
}

// AudioSource is a seekable stream of encoded audio plus its container
// format ("mp3" or "wav").
type AudioSource struct {
	Reader io.ReadSeekCloser
	Format string
}

// AudioOutput plays decoded audio on the host. One song is loaded at a
// time; Stop releases the decoder.
type AudioOutput interface {
	Load(ctx context.Context, src AudioSource) error
	Play() error
	Pause() error
	Resume() error
	Stop() error
	SeekTo(seconds float64) error
	SetVolume(volume float64) error
	Duration() float64

	OnEnded(fn func())
	OnTime(fn func(seconds float64))
}

// Bridge bundles the capabilities a platform provides.
type Bridge struct {
	Platform      Platform
	FileSystem    FileSystem
	Fingerprinter Fingerprinter
	MediaSession  MediaSession
	AudioOutput   AudioOutput
}
