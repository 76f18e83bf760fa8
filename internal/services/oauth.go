package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/bcx/internal/shared"
	"golang.org/x/oauth2"
)

// NewOAuthConfig builds the OAuth2 client for mail providers that accept bearer tokens.
func NewOAuthConfig(cfg shared.OAuthConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: oauth.client_id is required", shared.ErrMissingCredentials)
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: oauth.auth_url and oauth.token_url are required", shared.ErrInvalidConfig)
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}, nil
}

// AuthURL returns the consent page URL. Offline access is requested so the provider issues a
// refresh token.
func AuthURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// RefreshTokenSource returns a token source that mints access tokens from a stored refresh token.
func RefreshTokenSource(ctx context.Context, config *oauth2.Config, refreshToken string) (oauth2.TokenSource, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	return config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}
