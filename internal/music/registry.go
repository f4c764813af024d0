package music

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/shared"
)

// Registry holds every wrapped service, keyed by service type, and fans
// catalog operations out across the enabled ones. Result order always
// follows registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []objects.ServiceType
	services map[objects.ServiceType]*Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[objects.ServiceType]*Service)}
}

// Register adds a service. Registering the same type twice replaces the
// service but keeps its original position.
func (r *Registry) Register(svc *Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[svc.Type()]; !ok {
		r.order = append(r.order, svc.Type())
	}
	r.services[svc.Type()] = svc
	svc.registry = r
}

// Services returns every registered service in registration order.
func (r *Registry) Services() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*Service, 0, len(r.order))
	for _, t := range r.order {
		services = append(services, r.services[t])
	}
	return services
}

// EnabledServices returns the enabled services in registration order.
func (r *Registry) EnabledServices() []*Service {
	var enabled []*Service
	for _, svc := range r.Services() {
		if svc.Enabled() {
			enabled = append(enabled, svc)
		}
	}
	return enabled
}

// GetService returns the service of the given type only when it is
// registered and enabled.
func (r *Registry) GetService(t objects.ServiceType) (*Service, error) {
	r.mu.RLock()
	svc := r.services[t]
	r.mu.RUnlock()

	if svc == nil || !svc.Enabled() {
		return nil, fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, t)
	}
	return svc, nil
}

// StopOthers stops every enabled service except the given one, so a
// starting service never plays over another.
func (r *Registry) StopOthers(ctx context.Context, except *Service) error {
	var errs []error
	for _, svc := range r.EnabledServices() {
		if svc == except {
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAllServices runs fn against every enabled service concurrently and
// joins the failures.
func (r *Registry) WithAllServices(ctx context.Context, fn func(svc *Service) error) error {
	services := r.EnabledServices()
	errs := make([]error, len(services))

	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			errs[i] = fn(svc)
		}(i, svc)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// SearchSongs queries every enabled service and concatenates the results
// in registration order.
func (r *Registry) SearchSongs(ctx context.Context, term string, offset int) ([]SearchResult, error) {
	services := r.EnabledServices()
	pages := make([][]SearchResult, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		var err error
		pages[i], err = svc.SearchSongs(ctx, term, offset)
		return err
	})

	var results []SearchResult
	for _, page := range pages {
		results = append(results, page...)
	}
	return results, err
}

// SearchHints queries every enabled service and concatenates the hints in
// registration order.
func (r *Registry) SearchHints(ctx context.Context, term string) ([]string, error) {
	services := r.EnabledServices()
	pages := make([][]string, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		var err error
		pages[i], err = svc.SearchHints(ctx, term)
		return err
	})

	var hints []string
	for _, page := range pages {
		hints = append(hints, page...)
	}
	return hints, err
}

// LibrarySongs returns a library page from every enabled service,
// concatenated in registration order.
func (r *Registry) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	services := r.EnabledServices()
	pages := make([][]*objects.Song, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		var err error
		pages[i], err = svc.LibrarySongs(ctx, offset)
		return err
	})

	var songs []*objects.Song
	for _, page := range pages {
		songs = append(songs, page...)
	}
	return songs, err
}

// LibraryAlbums concatenates album listings from the services that
// support them, in registration order.
func (r *Registry) LibraryAlbums(ctx context.Context) ([]*objects.AlbumPreview, error) {
	services := r.EnabledServices()
	pages := make([][]*objects.AlbumPreview, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		albums, err := svc.LibraryAlbums(ctx)
		if errors.Is(err, shared.ErrNotSupported) {
			return nil
		}
		pages[i] = albums
		return err
	})

	var albums []*objects.AlbumPreview
	for _, page := range pages {
		albums = append(albums, page...)
	}
	return albums, err
}

// LibraryArtists concatenates artist listings from the services that
// support them, in registration order.
func (r *Registry) LibraryArtists(ctx context.Context) ([]*objects.ArtistPreview, error) {
	services := r.EnabledServices()
	pages := make([][]*objects.ArtistPreview, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		artists, err := svc.LibraryArtists(ctx)
		if errors.Is(err, shared.ErrNotSupported) {
			return nil
		}
		pages[i] = artists
		return err
	})

	var artists []*objects.ArtistPreview
	for _, page := range pages {
		artists = append(artists, page...)
	}
	return artists, err
}

// LibraryPlaylists concatenates playlist listings from the services that
// support them, in registration order.
func (r *Registry) LibraryPlaylists(ctx context.Context) ([]*objects.PlaylistPreview, error) {
	services := r.EnabledServices()
	pages := make([][]*objects.PlaylistPreview, len(services))

	err := r.withIndexedServices(ctx, services, func(ctx context.Context, i int, svc *Service) error {
		playlists, err := svc.LibraryPlaylists(ctx)
		if errors.Is(err, shared.ErrNotSupported) {
			return nil
		}
		pages[i] = playlists
		return err
	})

	var playlists []*objects.PlaylistPreview
	for _, page := range pages {
		playlists = append(playlists, page...)
	}
	return playlists, err
}

// RefreshLibrarySongs asks every enabled service to rescan its library.
func (r *Registry) RefreshLibrarySongs(ctx context.Context) error {
	return r.WithAllServices(ctx, func(svc *Service) error {
		return svc.RefreshLibrarySongs(ctx)
	})
}

// RefreshSong dispatches the refresh to the song's owning service.
func (r *Registry) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	svc, err := r.GetService(song.Type)
	if err != nil {
		return nil, err
	}
	return svc.RefreshSong(ctx, song)
}

// GetSongFromSearchResult dispatches the resolution to the hit's owning
// service.
func (r *Registry) GetSongFromSearchResult(ctx context.Context, result SearchResult) (*objects.Song, error) {
	svc, err := r.GetService(result.Type)
	if err != nil {
		return nil, err
	}
	return svc.GetSongFromSearchResult(ctx, result)
}

func (r *Registry) withIndexedServices(
	ctx context.Context,
	services []*Service,
	fn func(ctx context.Context, i int, svc *Service) error,
) error {
	errs := make([]error, len(services))

	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			errs[i] = fn(ctx, i, svc)
		}(i, svc)
	}
	wg.Wait()

	return errors.Join(errs...)
}
