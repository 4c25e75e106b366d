package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
)

// OAuthClient performs the Google authorization code flow and token refresh.
type OAuthClient struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

// OAuthOption configures an [OAuthClient].
type OAuthOption func(*OAuthClient)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) OAuthOption {
	return func(o *OAuthClient) { o.client = c }
}

// WithEndpoint overrides the Google endpoint.
func WithEndpoint(e oauth2.Endpoint) OAuthOption {
	return func(o *OAuthClient) { o.config.Endpoint = e }
}

// WithIDTokenVerifier verifies the id_token returned with each exchange and records its
// subject and email on the credential.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) OAuthOption {
	return func(o *OAuthClient) { o.verifier = v }
}

// NewOAuthClient builds a client from config. When verify_id_token is enabled, ID tokens are
// checked against the configured issuer and JWKS endpoint.
func NewOAuthClient(cfg shared.OAuthConfig, opts ...OAuthOption) (*OAuthClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: google client id and secret", shared.ErrMissingCredentials)
	}

	c := &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
	}

	if cfg.VerifyIDToken {
		keys := oidc.NewRemoteKeySet(context.Background(), cfg.JWKSURL)
		c.verifier = oidc.NewVerifier(cfg.Issuer, keys, &oidc.Config{ClientID: cfg.ClientID})
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the underlying oauth2 configuration.
func (c *OAuthClient) Config() *oauth2.Config { return c.config }

func (c *OAuthClient) ctx(ctx context.Context) context.Context {
	if c.client != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.client)
	}
	return ctx
}

// AuthCodeURL returns the consent page URL. Offline access and a forced consent prompt make
// Google return a refresh token on every login.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a credential. Failures are never retried.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (models.Credential, error) {
	if code == "" {
		return models.Credential{}, ErrMissingCode
	}

	tok, err := c.config.Exchange(c.ctx(ctx), code)
	if err != nil {
		return models.Credential{}, exchangeError(err)
	}

	cred := c.credential(tok)
	if c.verifier != nil {
		raw, _ := tok.Extra("id_token").(string)
		if raw == "" {
			return models.Credential{}, &OAuthExchangeError{Reason: "missing id_token"}
		}
		idt, err := c.verifier.Verify(ctx, raw)
		if err != nil {
			return models.Credential{}, &OAuthExchangeError{Reason: "invalid id_token", Err: err}
		}

		var claims struct {
			Email string `json:"email"`
		}
		if err := idt.Claims(&claims); err != nil {
			return models.Credential{}, &OAuthExchangeError{Reason: "invalid id_token claims", Err: err}
		}
		cred.Subject = idt.Subject
		cred.Email = claims.Email
	}

	return cred, nil
}

// Refresh obtains a new access token with the credential's refresh token and returns the
// next version of the credential.
func (c *OAuthClient) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return models.Credential{}, ErrNoRefreshToken
	}

	expired := &oauth2.Token{RefreshToken: cred.RefreshToken, Expiry: time.Unix(1, 0)}
	tok, err := c.config.TokenSource(c.ctx(ctx), expired).Token()
	if err != nil {
		return models.Credential{}, exchangeError(err)
	}

	// a refresh may return the same refresh token; WithToken keeps the old one when it is empty
	refresh := tok.RefreshToken
	if refresh == cred.RefreshToken {
		refresh = ""
	}
	return cred.WithToken(tok.AccessToken, refresh, tok.Expiry), nil
}

func (c *OAuthClient) credential(tok *oauth2.Token) models.Credential {
	scopes := c.config.Scopes
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		scopes = models.ParseScopes(s)
	}

	return models.Credential{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     c.config.Endpoint.TokenURL,
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Scopes:       append([]string(nil), scopes...),
		Expiry:       tok.Expiry.UTC(),
	}
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		reason := re.ErrorCode
		if re.ErrorDescription != "" {
			reason += ": " + re.ErrorDescription
		}
		if reason == "" && re.Response != nil {
			reason = re.Response.Status
		}
		return &OAuthExchangeError{Reason: reason, Err: err}
	}
	return &OAuthExchangeError{Reason: "token endpoint unreachable", Err: err}
}
