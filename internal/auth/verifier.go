package auth

import (
	"context"
	"strings"

	"github.com/desertthunder/ytgate/internal/models"
)

const DefaultScopePrefix = "https://www.googleapis.com/auth/youtube"

// Verifier turns an Authorization header into a verified credential.
type Verifier interface {
	Verify(ctx context.Context, header string) (*models.Credential, error)
}

// Resolver looks up the credential behind a session token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.StoredCredential, error)
}

// SessionVerifier authenticates bearer session tokens against a [Resolver] and then applies
// the scope policy. Identity failures are [ErrInvalidCredential] (401); a known identity
// without a matching scope is [ErrInsufficientScope] (403).
type SessionVerifier struct {
	Store               Resolver
	RequiredScopePrefix string
}

// NewSessionVerifier creates a verifier requiring a scope starting with prefix.
func NewSessionVerifier(store Resolver, prefix string) *SessionVerifier {
	if prefix == "" {
		prefix = DefaultScopePrefix
	}
	return &SessionVerifier{Store: store, RequiredScopePrefix: prefix}
}

func (v *SessionVerifier) Verify(ctx context.Context, header string) (*models.Credential, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	stored, err := v.Store.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if !stored.HasScopePrefix(v.RequiredScopePrefix) {
		return nil, ErrInsufficientScope
	}
	return &stored.Credential, nil
}

// BearerToken extracts the token from "Bearer <token>". The scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidCredential
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidCredential
	}
	return token, nil
}
