package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
)

// Settings are the persisted per-provider preferences.
type Settings struct {
	Enabled bool `json:"enabled"`
	Order   int  `json:"order"`
}

// Registry holds the registered providers and their persisted settings.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	settings  map[string]Settings

	states *state.Store
	logger *log.Logger
}

// NewRegistry creates an empty registry persisting settings in states.
func NewRegistry(states *state.Store, logger *log.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		settings:  make(map[string]Settings),
		states:    states,
		logger:    logger,
	}
}

func settingsKey(name string) string {
	return "MetadataService-" + name
}

// Register adds a provider, restoring its persisted settings. New
// providers start enabled.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	settings := Settings{Enabled: true}
	if err := r.states.Get(settingsKey(p.Name()), &settings); err != nil && !errors.Is(err, state.ErrNotFound) {
		r.logger.Warn("failed to restore metadata provider settings", "provider", p.Name(), "err", err)
	}

	r.providers[p.Name()] = p
	r.settings[p.Name()] = settings
}

// Providers returns every registered provider, sorted by name.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name() < providers[j].Name() })
	return providers
}

// Enabled returns the enabled providers in consultation order: ascending
// order value, ties broken by name.
func (r *Registry) Enabled() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for name, p := range r.providers {
		if r.settings[name].Enabled {
			providers = append(providers, p)
		}
	}
	sort.Slice(providers, func(i, j int) bool {
		a, b := providers[i], providers[j]
		if r.settings[a.Name()].Order != r.settings[b.Name()].Order {
			return r.settings[a.Name()].Order < r.settings[b.Name()].Order
		}
		return a.Name() < b.Name()
	})
	return providers
}

// Get returns a provider only when it is registered and enabled.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok || !r.settings[name].Enabled {
		return nil, false
	}
	return p, true
}

// SetEnabled toggles a provider and persists the change.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	return r.updateSettings(name, func(s *Settings) { s.Enabled = enabled })
}

// SetOrder changes a provider's position in the consultation order.
func (r *Registry) SetOrder(name string, order int) error {
	return r.updateSettings(name, func(s *Settings) { s.Order = order })
}

func (r *Registry) updateSettings(name string, change func(*Settings)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("unknown metadata provider: %s", name)
	}

	settings := r.settings[name]
	change(&settings)
	r.settings[name] = settings
	return r.states.Set(settingsKey(name), settings)
}

// GetMetadata consults the enabled providers in order and returns the
// first result. A failing provider is logged and skipped; only having no
// match at all yields (nil, nil).
func (r *Registry) GetMetadata(ctx context.Context, lookup Lookup) (*Metadata, error) {
	for _, p := range r.Enabled() {
		if !p.Available() {
			continue
		}

		meta, err := p.GetMetadata(ctx, lookup)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			r.logger.Warn("metadata provider failed", "provider", p.Name(), "err", err)
			continue
		}
		if meta != nil {
			return meta, nil
		}
	}
	return nil, nil
}
