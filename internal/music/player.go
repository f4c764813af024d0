package music

import (
	"context"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/playback"
	"github.com/charmbracelet/log"
)

// Player ties the queue to the services: it resolves the current queue
// entry to its owning service, drives song changes, auto-advances when a
// song ends and mirrors everything into the system media controls.
type Player struct {
	registry *Registry
	state    *playback.State
	session  platform.MediaSession
	images   *images.Store
	logger   *log.Logger

	mu sync.Mutex
	// autoplayArmed turns true after the first song change, so restoring
	// a queue on startup does not blast music unasked.
	autoplayArmed bool
	artwork       *images.URLHandle
}

// NewPlayer binds the registry, playback state and media session. The
// image store may be nil; artwork then only reaches the session for songs
// with external URLs.
func NewPlayer(
	registry *Registry,
	playbackState *playback.State,
	session platform.MediaSession,
	imgs *images.Store,
	logger *log.Logger,
) *Player {
	p := &Player{
		registry: registry,
		state:    playbackState,
		session:  session,
		images:   imgs,
		logger:   logger,
	}
	p.setSessionHandlers()
	return p
}

// AttachService registers a service and hooks its playback events up to
// the player.
func (p *Player) AttachService(svc *Service) {
	p.registry.Register(svc)

	svc.Events().OnPlaying(func() {
		// Handlers must be re-set after playback actually starts, some
		// hosts drop them otherwise.
		p.setSessionHandlers()
		p.session.SetPlaybackState(true)
	})
	svc.Events().OnEnded(func() {
		p.handleEnded()
	})
}

func (p *Player) setSessionHandlers() {
	p.session.SetHandlers(platform.SessionHandlers{
		Play: func() {
			if err := p.Play(context.Background()); err != nil {
				p.logger.Error("session play failed", "err", err)
			}
		},
		Pause: func() {
			if err := p.Pause(context.Background()); err != nil {
				p.logger.Error("session pause failed", "err", err)
			}
		},
		Next: func() {
			if err := p.SkipNext(context.Background()); err != nil {
				p.logger.Error("session skip failed", "err", err)
			}
		},
		Previous: func() {
			if err := p.SkipPrevious(context.Background()); err != nil {
				p.logger.Error("session skip failed", "err", err)
			}
		},
	})
}

// CurrentService resolves the owning service of the current queue entry.
func (p *Player) CurrentService() (*Service, error) {
	song := p.state.CurrentSong()
	if song == nil {
		return nil, nil
	}
	return p.registry.GetService(song.Type)
}

// SyncCurrentSong pushes the current queue entry into its service. An
// empty queue stops everything. Whether the new song starts playing
// follows the autoplay mode: on always plays, off never does, auto plays
// from the second change onward.
func (p *Player) SyncCurrentSong(ctx context.Context) error {
	song := p.state.CurrentSong()
	if song == nil {
		p.updateSession(nil)
		return p.registry.StopOthers(ctx, nil)
	}

	svc, err := p.registry.GetService(song.Type)
	if err != nil {
		return err
	}

	if err := svc.ChangeSong(ctx, song); err != nil {
		return err
	}

	p.mu.Lock()
	armed := p.autoplayArmed
	p.autoplayArmed = true
	p.mu.Unlock()

	play := false
	switch p.state.Autoplay() {
	case playback.AutoplayOn:
		play = true
	case playback.AutoplayAuto:
		play = armed
	}

	if play {
		err = svc.Play(ctx)
	} else {
		err = svc.Initialize(ctx)
	}
	if err != nil {
		return err
	}

	p.updateSession(song)
	return nil
}

// Play starts or resumes the current queue entry.
func (p *Player) Play(ctx context.Context) error {
	svc, err := p.CurrentService()
	if err != nil || svc == nil {
		return err
	}

	song := p.state.CurrentSong()
	if err := svc.ChangeSong(ctx, song); err != nil {
		return err
	}
	if err := svc.Play(ctx); err != nil {
		return err
	}

	p.updateSession(song)
	p.session.SetPlaybackState(true)
	return nil
}

// Pause suspends the current service.
func (p *Player) Pause(ctx context.Context) error {
	svc, err := p.CurrentService()
	if err != nil || svc == nil {
		return err
	}
	if err := svc.Pause(ctx); err != nil {
		return err
	}
	p.session.SetPlaybackState(false)
	return nil
}

// TogglePlay pauses when playing and plays when paused.
func (p *Player) TogglePlay(ctx context.Context) error {
	if p.state.Playing() {
		return p.Pause(ctx)
	}
	return p.Play(ctx)
}

// SkipNext advances the queue and syncs the new entry.
func (p *Player) SkipNext(ctx context.Context) error {
	if !p.state.SkipNext() {
		return nil
	}
	return p.SyncCurrentSong(ctx)
}

// SkipPrevious moves the queue back and syncs the new entry.
func (p *Player) SkipPrevious(ctx context.Context) error {
	if !p.state.SkipPrevious() {
		return nil
	}
	return p.SyncCurrentSong(ctx)
}

// PlayAt jumps to a queue position and syncs it.
func (p *Player) PlayAt(ctx context.Context, index int) error {
	p.state.SetQueueIndex(index)
	return p.SyncCurrentSong(ctx)
}

// SetVolume records the volume and applies it to the current service.
func (p *Player) SetVolume(ctx context.Context, volume float64) error {
	p.state.SetVolume(volume)

	svc, err := p.CurrentService()
	if err != nil || svc == nil {
		return err
	}
	return svc.SetVolume(ctx, p.state.Volume())
}

// SeekTo moves the current service to the given position.
func (p *Player) SeekTo(ctx context.Context, seconds float64) error {
	svc, err := p.CurrentService()
	if err != nil || svc == nil {
		return err
	}
	return svc.SeekToTime(ctx, seconds)
}

// handleEnded auto-advances the queue when the current song finishes.
func (p *Player) handleEnded() {
	if p.state.Autoplay() == playback.AutoplayOff || !p.state.HasNext() {
		p.state.SetPlaying(false)
		p.session.SetPlaybackState(false)
		return
	}

	if err := p.SkipNext(context.Background()); err != nil {
		p.logger.Error("failed to advance queue", "err", err)
	}
}

// updateSession mirrors a song into the system media controls.
func (p *Player) updateSession(song *objects.Song) {
	p.mu.Lock()
	if p.artwork != nil {
		p.artwork.Release()
		p.artwork = nil
	}
	p.mu.Unlock()

	if song == nil {
		p.session.Clear()
		return
	}

	artworkURL := ""
	if song.Artwork != nil {
		switch {
		case song.Artwork.URL != "":
			artworkURL = song.Artwork.URL
		case song.Artwork.ID != "" && p.images != nil:
			handle, err := p.images.BlobURL(song.Artwork.ID, images.SizeSmall)
			if err != nil {
				p.logger.Warn("failed to resolve artwork", "id", song.Artwork.ID, "err", err)
			} else {
				artworkURL = handle.URL()
				p.mu.Lock()
				p.artwork = handle
				p.mu.Unlock()
			}
		}
	}

	p.session.SetMetadata(song.Title, strings.Join(song.ArtistNames(), ", "), song.Album, artworkURL)
}
