package lyrics

import (
	"context"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/charmbracelet/log"
)

// Registry consults providers in registration order, first match wins.
type Registry struct {
	providers []Provider
	logger    *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// GetLyrics returns the first provider result for the song, or (nil, nil)
// when no provider has a match. A failing provider is logged and skipped.
func (r *Registry) GetLyrics(ctx context.Context, song *objects.Song) (*Lyrics, error) {
	for _, p := range r.providers {
		lyrics, err := p.GetLyrics(ctx, song)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			r.logger.Warn("lyrics provider failed", "provider", p.Name(), "err", err)
			continue
		}
		if lyrics != nil {
			return lyrics, nil
		}
	}
	return nil, nil
}

// GetLyricsFromISRC tries only the providers that can resolve an ISRC.
func (r *Registry) GetLyricsFromISRC(ctx context.Context, isrc string) (*Lyrics, error) {
	for _, p := range r.providers {
		byISRC, ok := p.(ISRCLookup)
		if !ok {
			continue
		}

		lyrics, err := byISRC.GetLyricsFromISRC(ctx, isrc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			r.logger.Warn("lyrics provider failed", "provider", p.Name(), "err", err)
			continue
		}
		if lyrics != nil {
			return lyrics, nil
		}
	}
	return nil, nil
}
