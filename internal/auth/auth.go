// package auth implements the credential state machine shared by
// provider-specific authorizations: passive restore from persisted
// credentials, interactive acquisition, and revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
)

// Handler supplies the provider-specific pieces of an authorization flow.
type Handler interface {
	// HandlePassivelyAuthorize attempts a silent restore from persisted
	// credentials, without user interaction. Returns (nil, nil) when there
	// is nothing to restore.
	HandlePassivelyAuthorize(ctx context.Context) (any, error)

	// HandleAuthorize runs the interactive credential flow.
	HandleAuthorize(ctx context.Context) (any, error)

	// HandleUnauthorize revokes provider-side session state.
	HandleUnauthorize(ctx context.Context) error
}

// Service wraps a Handler with persistence and state tracking.
type Service struct {
	key     string
	handler Handler
	states  *state.Store
	logger  *log.Logger

	mu         sync.Mutex
	authorized bool
	listeners  []func(authorized bool)
}

// NewService creates an authorization service persisting under Auth-<key>.
func NewService(key string, handler Handler, states *state.Store, logger *log.Logger) *Service {
	return &Service{
		key:     key,
		handler: handler,
		states:  states,
		logger:  shared.ServiceLogger(logger, "Authorization-"+key),
	}
}

// Authorized reports the current credential state.
func (s *Service) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

// OnChange registers a listener invoked on every authorized/unauthorized
// transition.
func (s *Service) OnChange(fn func(authorized bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) emit(authorized bool) {
	s.mu.Lock()
	s.authorized = authorized
	listeners := make([]func(bool), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(authorized)
	}
}

// PassivelyAuthorize attempts a silent restore. State is persisted only on
// success; failure emits unauthorized without erroring the caller out of
// initialization (callers decide what a missing session means).
func (s *Service) PassivelyAuthorize(ctx context.Context) (any, error) {
	s.logger.Debug("passivelyAuthorize")

	data, err := s.handler.HandlePassivelyAuthorize(ctx)
	if err != nil {
		s.emit(false)
		return nil, err
	}
	if data == nil {
		s.emit(false)
		return nil, nil
	}

	if err := s.Remember(data); err != nil {
		return nil, err
	}
	s.emit(true)
	return data, nil
}

// Authorize attempts passive authorization first and falls back to the
// interactive flow. Failure leaves the state unauthorized and errors.
func (s *Service) Authorize(ctx context.Context) (any, error) {
	s.logger.Debug("authorize")

	if data, err := s.PassivelyAuthorize(ctx); err == nil && data != nil {
		return data, nil
	}

	data, err := s.handler.HandleAuthorize(ctx)
	if err != nil {
		s.emit(false)
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	if err := s.Remember(data); err != nil {
		return nil, err
	}
	s.emit(true)
	return data, nil
}

// Unauthorize clears persisted credentials and emits unauthorized
// unconditionally, even if provider-side revocation fails.
func (s *Service) Unauthorize(ctx context.Context) error {
	s.logger.Debug("unauthorize")

	err := s.handler.HandleUnauthorize(ctx)

	if forgetErr := s.Forget(); forgetErr != nil {
		err = errors.Join(err, forgetErr)
	}
	s.emit(false)
	return err
}

func (s *Service) stateKey() string { return "Auth-" + s.key }

// Remember persists credential data.
func (s *Service) Remember(data any) error {
	return s.states.Set(s.stateKey(), data)
}

// Forget clears persisted credential data.
func (s *Service) Forget() error {
	return s.states.Delete(s.stateKey())
}

// Remembered restores persisted credential data into v.
func (s *Service) Remembered(v any) error {
	err := s.states.Get(s.stateKey(), v)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("%w: %w", shared.ErrNoCredentials, err)
	}
	return err
}
