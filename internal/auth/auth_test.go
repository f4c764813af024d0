package auth

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
)

type fakeHandler struct {
	passiveData any
	passiveErr  error

	interactiveData any
	interactiveErr  error

	revokeErr error

	passiveCalls     int
	interactiveCalls int
	revokeCalls      int
}

func (h *fakeHandler) HandlePassivelyAuthorize(ctx context.Context) (any, error) {
	h.passiveCalls++
	return h.passiveData, h.passiveErr
}

func (h *fakeHandler) HandleAuthorize(ctx context.Context) (any, error) {
	h.interactiveCalls++
	return h.interactiveData, h.interactiveErr
}

func (h *fakeHandler) HandleUnauthorize(ctx context.Context) error {
	h.revokeCalls++
	return h.revokeErr
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

func TestService(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	type credentials struct {
		Token string `json:"token"`
	}

	t.Run("PassivelyAuthorize", func(t *testing.T) {
		t.Run("persists restored credentials", func(t *testing.T) {
			states := newStates(t)
			handler := &fakeHandler{passiveData: credentials{Token: "restored"}}
			svc := NewService("test", handler, states, logger)

			data, err := svc.PassivelyAuthorize(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data == nil || !svc.Authorized() {
				t.Error("expected an authorized session")
			}

			var remembered credentials
			if err := svc.Remembered(&remembered); err != nil {
				t.Fatalf("expected persisted credentials: %v", err)
			}
			if remembered.Token != "restored" {
				t.Errorf("unexpected credentials: %+v", remembered)
			}
		})

		t.Run("nothing to restore leaves the session unauthorized without error", func(t *testing.T) {
			states := newStates(t)
			svc := NewService("test", &fakeHandler{}, states, logger)

			data, err := svc.PassivelyAuthorize(ctx)
			if err != nil || data != nil {
				t.Fatalf("expected (nil, nil), got (%v, %v)", data, err)
			}
			if svc.Authorized() {
				t.Error("expected an unauthorized session")
			}
		})
	})

	t.Run("Authorize", func(t *testing.T) {
		t.Run("prefers the passive flow", func(t *testing.T) {
			states := newStates(t)
			handler := &fakeHandler{passiveData: credentials{Token: "passive"}}
			svc := NewService("test", handler, states, logger)

			if _, err := svc.Authorize(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if handler.interactiveCalls != 0 {
				t.Error("expected the interactive flow to be skipped")
			}
		})

		t.Run("falls back to the interactive flow", func(t *testing.T) {
			states := newStates(t)
			handler := &fakeHandler{interactiveData: credentials{Token: "interactive"}}
			svc := NewService("test", handler, states, logger)

			if _, err := svc.Authorize(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if handler.passiveCalls != 1 || handler.interactiveCalls != 1 {
				t.Errorf("expected passive then interactive, got %d/%d", handler.passiveCalls, handler.interactiveCalls)
			}
			if !svc.Authorized() {
				t.Error("expected an authorized session")
			}
		})

		t.Run("interactive failure wraps ErrAuthFailed", func(t *testing.T) {
			states := newStates(t)
			handler := &fakeHandler{interactiveErr: errors.New("denied")}
			svc := NewService("test", handler, states, logger)

			_, err := svc.Authorize(ctx)
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if svc.Authorized() {
				t.Error("expected an unauthorized session")
			}
		})
	})

	t.Run("Unauthorize clears credentials even when revocation fails", func(t *testing.T) {
		states := newStates(t)
		handler := &fakeHandler{passiveData: credentials{Token: "x"}, revokeErr: errors.New("offline")}
		svc := NewService("test", handler, states, logger)

		if _, err := svc.PassivelyAuthorize(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := svc.Unauthorize(ctx); err == nil {
			t.Error("expected the revocation error to surface")
		}
		if svc.Authorized() {
			t.Error("expected an unauthorized session")
		}

		var remembered credentials
		if err := svc.Remembered(&remembered); !errors.Is(err, shared.ErrNoCredentials) {
			t.Errorf("expected credentials gone, got %v", err)
		}
	})

	t.Run("credentials survive a restart under the same key", func(t *testing.T) {
		states := newStates(t)
		handler := &fakeHandler{passiveData: credentials{Token: "kept"}}
		svc := NewService("test", handler, states, logger)
		if _, err := svc.PassivelyAuthorize(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		restarted := NewService("test", &fakeHandler{}, states, logger)
		var remembered credentials
		if err := restarted.Remembered(&remembered); err != nil {
			t.Fatalf("expected persisted credentials: %v", err)
		}
		if remembered.Token != "kept" {
			t.Errorf("unexpected credentials: %+v", remembered)
		}
	})

	t.Run("OnChange observes transitions", func(t *testing.T) {
		states := newStates(t)
		handler := &fakeHandler{passiveData: credentials{Token: "x"}}
		svc := NewService("test", handler, states, logger)

		var transitions []bool
		svc.OnChange(func(authorized bool) { transitions = append(transitions, authorized) })

		svc.PassivelyAuthorize(ctx)
		svc.Unauthorize(ctx)

		if len(transitions) != 2 || !transitions[0] || transitions[1] {
			t.Errorf("expected [true false], got %v", transitions)
		}
	})
}
