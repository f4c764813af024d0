package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// CodeFlow is the interactive collaborator that obtains an authorization
// code from the user (a native credential prompt or browser redirect).
// Implementations return shared.ErrAuthDeclined when the user backs out.
type CodeFlow interface {
	RequestCode(ctx context.Context, authURL string) (string, error)
}

// TokenHandler implements Handler for oauth2 token flows, used by the
// streaming catalog authorization.
type TokenHandler struct {
	config  *oauth2.Config
	flow    CodeFlow
	service *Service
}

// NewTokenService wires an oauth2 config and an interactive code flow into
// an authorization Service persisting under Auth-<key>.
func NewTokenService(key string, config *oauth2.Config, flow CodeFlow, states *state.Store, logger *log.Logger) (*TokenHandler, *Service) {
	h := &TokenHandler{config: config, flow: flow}
	h.service = NewService(key, h, states, logger)
	return h, h.service
}

// HandlePassivelyAuthorize restores the persisted token, refreshing it
// through the config's token source when expired.
func (h *TokenHandler) HandlePassivelyAuthorize(ctx context.Context) (any, error) {
	var token oauth2.Token
	if err := h.service.Remembered(&token); err != nil {
		if errors.Is(err, shared.ErrNoCredentials) {
			return nil, nil
		}
		return nil, err
	}

	if token.Valid() {
		return &token, nil
	}

	refreshed, err := h.config.TokenSource(ctx, &token).Token()
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// HandleAuthorize runs the interactive oauth2 code flow.
func (h *TokenHandler) HandleAuthorize(ctx context.Context) (any, error) {
	authURL := h.config.AuthCodeURL(shared.GenerateID(), oauth2.AccessTypeOffline)

	code, err := h.flow.RequestCode(ctx, authURL)
	if err != nil {
		if errors.Is(err, shared.ErrAuthDeclined) {
			// The user saw and dismissed the prompt themselves.
			return nil, shared.Silent(err)
		}
		return nil, err
	}

	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// HandleUnauthorize has no provider-side session to tear down; clearing
// the persisted token is handled by the Service.
func (h *TokenHandler) HandleUnauthorize(ctx context.Context) error {
	return nil
}

// Token returns the currently persisted token, if any.
func (h *TokenHandler) Token() (*oauth2.Token, error) {
	var token oauth2.Token
	if err := h.service.Remembered(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// HTTPClient returns an oauth2-authenticated client backed by the
// persisted token.
func (h *TokenHandler) HTTPClient(ctx context.Context) (*http.Client, error) {
	token, err := h.Token()
	if err != nil {
		return nil, err
	}
	return h.config.Client(ctx, token), nil
}
