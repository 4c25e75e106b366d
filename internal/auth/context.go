package auth

import (
	"context"

	"github.com/desertthunder/ytgate/internal/models"
)

type contextKey int

const (
	credentialKey contextKey = iota
	sessionTokenKey
)

// WithCredential returns a context carrying the verified credential for the request.
func WithCredential(ctx context.Context, c *models.Credential) context.Context {
	return context.WithValue(ctx, credentialKey, c)
}

// CredentialFromContext returns the credential stored by [WithCredential].
func CredentialFromContext(ctx context.Context) (*models.Credential, bool) {
	c, ok := ctx.Value(credentialKey).(*models.Credential)
	return c, ok && c != nil
}

// WithSessionToken stores the bearer token the request authenticated with.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

// SessionTokenFromContext returns the token stored by [WithSessionToken].
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(sessionTokenKey).(string)
	return t, ok && t != ""
}
