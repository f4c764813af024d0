package metadata

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
)

type fakeProvider struct {
	name        string
	unavailable bool
	meta        *Metadata
	err         error
	calls       int
}

func (p *fakeProvider) Name() string        { return p.name }
func (p *fakeProvider) Description() string { return "fake provider" }
func (p *fakeProvider) Available() bool     { return !p.unavailable }

func (p *fakeProvider) GetMetadata(ctx context.Context, lookup Lookup) (*Metadata, error) {
	p.calls++
	return p.meta, p.err
}

func newStates(t *testing.T) *state.Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	states, err := state.NewStore(db, shared.NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("failed to create state store: %v", err)
	}
	return states
}

func providerNames(providers []Provider) []string {
	var names []string
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("new providers start enabled", func(t *testing.T) {
		registry := NewRegistry(newStates(t), logger)
		registry.Register(&fakeProvider{name: "alpha"})

		if _, ok := registry.Get("alpha"); !ok {
			t.Error("expected the provider enabled")
		}
	})

	t.Run("Enabled orders by order value, ties broken by name", func(t *testing.T) {
		registry := NewRegistry(newStates(t), logger)
		registry.Register(&fakeProvider{name: "charlie"})
		registry.Register(&fakeProvider{name: "alpha"})
		registry.Register(&fakeProvider{name: "bravo"})

		names := providerNames(registry.Enabled())
		expected := []string{"alpha", "bravo", "charlie"}
		for i := range expected {
			if names[i] != expected[i] {
				t.Fatalf("expected %v, got %v", expected, names)
			}
		}

		if err := registry.SetOrder("charlie", -1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if names := providerNames(registry.Enabled()); names[0] != "charlie" {
			t.Errorf("expected charlie first, got %v", names)
		}
	})

	t.Run("SetEnabled excludes the provider", func(t *testing.T) {
		registry := NewRegistry(newStates(t), logger)
		registry.Register(&fakeProvider{name: "alpha"})

		if err := registry.SetEnabled("alpha", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := registry.Get("alpha"); ok {
			t.Error("expected the provider disabled")
		}
		if len(registry.Enabled()) != 0 {
			t.Error("expected no enabled providers")
		}
		if len(registry.Providers()) != 1 {
			t.Error("expected the provider still registered")
		}
	})

	t.Run("unknown providers cannot be toggled", func(t *testing.T) {
		registry := NewRegistry(newStates(t), logger)
		if err := registry.SetEnabled("ghost", true); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("settings survive a restart", func(t *testing.T) {
		states := newStates(t)

		registry := NewRegistry(states, logger)
		registry.Register(&fakeProvider{name: "alpha"})
		if err := registry.SetEnabled("alpha", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		restarted := NewRegistry(states, logger)
		restarted.Register(&fakeProvider{name: "alpha"})
		if _, ok := restarted.Get("alpha"); ok {
			t.Error("expected the persisted disable to hold")
		}
	})

	t.Run("GetMetadata", func(t *testing.T) {
		t.Run("first result wins", func(t *testing.T) {
			empty := &fakeProvider{name: "alpha"}
			hit := &fakeProvider{name: "bravo", meta: &Metadata{Title: "Found"}}
			late := &fakeProvider{name: "charlie", meta: &Metadata{Title: "Too Late"}}

			registry := NewRegistry(newStates(t), logger)
			registry.Register(empty)
			registry.Register(hit)
			registry.Register(late)

			meta, err := registry.GetMetadata(ctx, Lookup{Title: "x"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta == nil || meta.Title != "Found" {
				t.Errorf("unexpected result: %+v", meta)
			}
			if late.calls != 0 {
				t.Error("expected later providers untouched")
			}
		})

		t.Run("failing providers are skipped", func(t *testing.T) {
			broken := &fakeProvider{name: "alpha", err: errors.New("exploded")}
			hit := &fakeProvider{name: "bravo", meta: &Metadata{Title: "Found"}}

			registry := NewRegistry(newStates(t), logger)
			registry.Register(broken)
			registry.Register(hit)

			meta, err := registry.GetMetadata(ctx, Lookup{Title: "x"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta == nil || meta.Title != "Found" {
				t.Errorf("unexpected result: %+v", meta)
			}
		})

		t.Run("unavailable and disabled providers are skipped", func(t *testing.T) {
			offline := &fakeProvider{name: "alpha", unavailable: true, meta: &Metadata{Title: "Offline"}}
			off := &fakeProvider{name: "bravo", meta: &Metadata{Title: "Off"}}

			registry := NewRegistry(newStates(t), logger)
			registry.Register(offline)
			registry.Register(off)
			if err := registry.SetEnabled("bravo", false); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			meta, err := registry.GetMetadata(ctx, Lookup{Title: "x"})
			if err != nil || meta != nil {
				t.Errorf("expected (nil, nil), got (%+v, %v)", meta, err)
			}
			if offline.calls != 0 || off.calls != 0 {
				t.Error("expected neither provider consulted")
			}
		})

		t.Run("no match at all yields nothing", func(t *testing.T) {
			registry := NewRegistry(newStates(t), logger)
			registry.Register(&fakeProvider{name: "alpha"})

			meta, err := registry.GetMetadata(ctx, Lookup{Title: "x"})
			if err != nil || meta != nil {
				t.Errorf("expected (nil, nil), got (%+v, %v)", meta, err)
			}
		})
	})
}
