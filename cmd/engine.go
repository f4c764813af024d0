package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/lyrics"
	"github.com/UniMusic-app/unimusic/internal/metadata"
	"github.com/UniMusic-app/unimusic/internal/music"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/playback"
	"github.com/UniMusic-app/unimusic/internal/ratelimit"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// Engine is the fully wired application: every store, registry and
// service, constructed explicitly from the configuration.
type Engine struct {
	config *shared.Config
	logger *log.Logger

	db        *sql.DB
	states    *state.Store
	images    *images.Store
	cache     *objects.Cache
	overrides *metadata.Overrides

	bridge   *platform.Bridge
	playback *playback.State
	metadata *metadata.Registry
	lyrics   *lyrics.Registry

	registry *music.Registry
	player   *music.Player

	// catalogAuth is nil when no catalog is configured.
	catalogAuth *auth.Service
}

// routedTransport sends hosts with a configured rate limit through the
// limiter and everything else (artwork CDNs, audio streams) straight to
// the default transport.
type routedTransport struct {
	limits  map[string]time.Duration
	limiter *ratelimit.Limiter
}

func (t routedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := t.limits[req.URL.Hostname()]; ok {
		return t.limiter.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// buildEngine assembles the application from the configuration. Services
// are registered but not enabled; restore does that from persisted state.
func buildEngine(config *shared.Config, prompter music.Prompter, flow auth.CodeFlow, logger *log.Logger) (*Engine, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, err
	}

	states, err := state.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	imageStore, err := images.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	overrides, err := metadata.NewOverrides(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	cache := objects.NewCache()
	bridge := platform.NewDesktopBridge()

	limits := config.RateLimitDurations()
	limiter := ratelimit.New(limits, nil)
	limited := limiter.Client()
	web := &http.Client{Transport: routedTransport{limits: limits, limiter: limiter}}

	metaRegistry := metadata.NewRegistry(states, logger)
	metaRegistry.Register(metadata.NewMusicBrainz(limited, imageStore, cache, logger))
	metaRegistry.Register(metadata.NewAcoustID(
		limited, imageStore, cache,
		bridge.Fingerprinter,
		config.Credentials.Metadata.AcoustIDAPIKey,
		states, logger,
	))

	lyricsRegistry := lyrics.NewRegistry(logger)
	lyricsRegistry.Register(lyrics.NewLRCLIB(limited, cache, logger))

	playbackState := playback.NewState()
	registry := music.NewRegistry()
	player := music.NewPlayer(registry, playbackState, bridge.MediaSession, imageStore, logger)

	engine := &Engine{
		config:    config,
		logger:    logger,
		db:        db,
		states:    states,
		images:    imageStore,
		cache:     cache,
		overrides: overrides,
		bridge:    bridge,
		playback:  playbackState,
		metadata:  metaRegistry,
		lyrics:    lyricsRegistry,
		registry:  registry,
		player:    player,
	}

	localEvents := music.NewEvents()
	local := music.NewLocal(
		config.Library.Directories,
		bridge.FileSystem,
		bridge.AudioOutput,
		imageStore,
		metaRegistry,
		localEvents,
		shared.ServiceLogger(logger, "Local"),
	)
	player.AttachService(music.NewService(local, localEvents, playbackState, states, prompter, overrides, logger))

	if catalog := config.Credentials.Catalog; catalog.BaseURL != "" {
		oauthConfig := &oauth2.Config{
			ClientID:     catalog.ClientID,
			ClientSecret: catalog.ClientSecret,
			RedirectURL:  catalog.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  catalog.AuthURL,
				TokenURL: catalog.TokenURL,
			},
		}
		token, authorization := auth.NewTokenService("Catalog", oauthConfig, flow, states, logger)
		engine.catalogAuth = authorization

		catalogEvents := music.NewEvents()
		provider := music.NewCatalog(
			catalog.BaseURL,
			token,
			authorization,
			bridge.AudioOutput,
			imageStore,
			cache,
			web,
			catalogEvents,
			shared.ServiceLogger(logger, "Catalog"),
		)
		player.AttachService(music.NewService(provider, catalogEvents, playbackState, states, prompter, overrides, logger))
	}

	if video := config.Credentials.Video; video.BaseURL != "" {
		videoEvents := music.NewEvents()
		provider := music.NewVideo(
			video.BaseURL,
			video.APIKey,
			web,
			bridge.AudioOutput,
			imageStore,
			cache,
			videoEvents,
			shared.ServiceLogger(logger, "Video"),
		)
		player.AttachService(music.NewService(provider, videoEvents, playbackState, states, prompter, overrides, logger))
	}

	return engine, nil
}

// restore re-enables the services the user had enabled last run. A fresh
// database enables the local service so the first run can already play
// files.
func (e *Engine) restore(ctx context.Context) error {
	for _, svc := range e.registry.Services() {
		if err := svc.RestoreState(ctx); err != nil {
			e.logger.Warn("failed to restore service", "service", svc.Name(), "err", err)
		}
	}

	if len(e.registry.EnabledServices()) == 0 {
		if svc, ok := e.service(objects.TypeLocal); ok {
			return svc.Enable(ctx)
		}
	}
	return nil
}

// service looks a service up regardless of its enabled state.
func (e *Engine) service(t objects.ServiceType) (*music.Service, bool) {
	for _, svc := range e.registry.Services() {
		if svc.Type() == t {
			return svc, true
		}
	}
	return nil, false
}

// Close deinitializes the enabled services and closes the database.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, svc := range e.registry.EnabledServices() {
		if err := svc.Deinitialize(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, e.db.Close())
	return errors.Join(errs...)
}
