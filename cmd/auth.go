package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/bcx/internal/server"
	"github.com/desertthunder/bcx/internal/services"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

var authTimeout = 2 * time.Minute

// AuthOAuth authorizes IMAP access through the browser and stores the refresh token.
func (r *Runner) AuthOAuth(ctx context.Context, cmd *cli.Command) error {
	mail := r.config.Mail
	if mail.Username == "" {
		return fmt.Errorf("%w: mail.username is not set", shared.ErrMissingArgument)
	}

	config, err := services.NewOAuthConfig(r.config.OAuth)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, config)
	if err != nil {
		return err
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("%w: provider returned no refresh token", shared.ErrNoRefreshToken)
	}

	store, err := r.secretStore()
	if err != nil {
		return err
	}
	if err := store.Set(shared.RefreshTokenKey(mail.Server, mail.Username), token.RefreshToken); err != nil {
		return err
	}

	r.logger.Info("refresh token stored", "account", mail.Username)
	r.writePlain("✓ Authorization complete for %s\n", mail.Username)
	if mail.Auth != "oauth" {
		r.writePlain("Set mail.auth = \"oauth\" in %s to use it\n", r.configPath)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	oauthHandler := server.NewOAuthHandler(config, state)
	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(r.logger))
	router.Handler(oauthHandler)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	serverAddr := r.config.Server.Address()
	ready := make(chan string, 1)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		serverErrors <- server.Serve(ctx, server.NewHTTPServer(serverAddr, router), ready)
	}()

	select {
	case <-ready:
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	}

	authURL := services.AuthURL(config, state)
	r.writePlain("→ Opening browser for authorization...\n")
	if err := r.browser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", authTimeout)

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, authTimeout)
		}
		return nil, ctx.Err()
	}

	cancel()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}
