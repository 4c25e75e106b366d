package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/server"
	"github.com/desertthunder/ytgate/internal/shared"
)

// callbackAddr returns the loopback address the redirect URI points at.
func callbackAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: redirect_uri %q is not a URL", shared.ErrInvalidConfig, redirectURI)
	}

	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "80"
	}
	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return "", fmt.Errorf("%w: redirect_uri must point at localhost for a CLI login, got %q", shared.ErrInvalidConfig, host)
		}
	}
	return net.JoinHostPort(host, port), nil
}

// AuthURL prints a consent URL and the state it carries.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	oauth, err := r.oauthFlow(config)
	if err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}
	return r.writePlain("%s\n", oauth.AuthCodeURL(state))
}

// AuthLogin runs the authorization code flow against a loopback callback server, then opens
// a session for the returned credential and prints its token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	oauth, err := r.oauthFlow(config)
	if err != nil {
		return err
	}

	addr, err := callbackAddr(config.OAuth.RedirectURI)
	if err != nil {
		return err
	}

	cred, err := r.doOAuth(ctx, oauth, addr, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	token, session, err := store.Create(ctx, cred, models.SessionMeta{UserAgent: "ytgate-cli", ClientIP: "127.0.0.1"})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(server.CallbackResponse{
			Message:      "Authentication successful",
			SessionToken: token,
			ExpiresAt:    session.ExpiresAt,
		}, true)
	}

	r.writeSuccess("Authorization successful")
	r.writePlain("Session token: %s\n", token)
	r.writePlain("Expires at:    %s\n", session.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (r *Runner) doOAuth(ctx context.Context, oauth server.OAuthFlow, addr string, timeout time.Duration) (models.Credential, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return models.Credential{}, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewCallbackHandler(oauth, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return models.Credential{}, fmt.Errorf("failed to listen for the OAuth callback: %w", err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := oauth.AuthCodeURL(state)
	r.writePlain("→ Opening browser for Google sign-in...\n")
	if err := r.browser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlain("\n⚠ Could not open browser automatically.\n")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-handler.Result():
		if result.Err != nil {
			return models.Credential{}, fmt.Errorf("authorization failed: %w", result.Err)
		}
		return result.Credential, nil
	case err := <-serverErrors:
		return models.Credential{}, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return models.Credential{}, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	}
}

var _ server.OAuthFlow = (*auth.OAuthClient)(nil)
