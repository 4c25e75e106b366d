package models

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	ErrEmptyToken       = errors.New("access token is required")
	ErrMissingClient    = errors.New("client id is required")
	ErrMissingTokenURI  = errors.New("token uri is required")
	ErrMissingSession   = errors.New("session token digest is required")
	ErrMissingReference = errors.New("credential reference is required")
	ErrInvalidExpiry    = errors.New("session must expire after it is created")
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() int64            // ID returns the database identifier, zero before insert
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks if the model's data is valid
}

// Repository defines the storage operations shared by persistent models.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) (T, error) // Create inserts a model and returns it with its ID set
	Get(ctx context.Context, id int64) (T, error)   // Get retrieves a model by its ID
	Delete(ctx context.Context, id int64) error     // Delete removes a model by its ID
}

// Credential is an OAuth2 authorization for the YouTube Data API.
//
// Values are never mutated after construction. Scopes is copied on every accessor that
// hands it out so callers cannot alter a shared credential.
type Credential struct {
	Token        string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Expiry       time.Time
	Subject      string
	Email        string
}

// GrantedScopes returns a copy of the credential's scopes.
func (c Credential) GrantedScopes() []string {
	return slices.Clone(c.Scopes)
}

// HasScopePrefix reports whether at least one granted scope starts with prefix.
func (c Credential) HasScopePrefix(prefix string) bool {
	for _, s := range c.Scopes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// ScopeString joins the scopes with spaces, the form stored in the database.
func (c Credential) ScopeString() string {
	return strings.Join(c.Scopes, " ")
}

// ParseScopes splits a space-delimited scope string.
func ParseScopes(s string) []string {
	return strings.Fields(s)
}

// WithToken returns a copy of c carrying a new access token and expiry.
// An empty refreshToken keeps the current one, which Google omits on refresh.
func (c Credential) WithToken(token, refreshToken string, expiry time.Time) Credential {
	next := c
	next.Scopes = slices.Clone(c.Scopes)
	next.Token = token
	next.Expiry = expiry
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	return next
}

// Validate checks the fields required to persist and later refresh the credential.
func (c Credential) Validate() error {
	switch {
	case strings.TrimSpace(c.Token) == "":
		return ErrEmptyToken
	case c.ClientID == "":
		return ErrMissingClient
	case c.TokenURI == "":
		return ErrMissingTokenURI
	}
	return nil
}

// StoredCredential is a [Credential] with its database identity.
type StoredCredential struct {
	Credential
	id        int64
	createdAt time.Time
	updatedAt time.Time
}

// NewStoredCredential wraps a credential loaded from or written to the database.
func NewStoredCredential(id int64, cred Credential, createdAt, updatedAt time.Time) *StoredCredential {
	return &StoredCredential{Credential: cred, id: id, createdAt: createdAt, updatedAt: updatedAt}
}

func (s *StoredCredential) ID() int64            { return s.id }
func (s *StoredCredential) CreatedAt() time.Time { return s.createdAt }
func (s *StoredCredential) UpdatedAt() time.Time { return s.updatedAt }

// SessionMeta is the request information recorded when a session is opened.
type SessionMeta struct {
	UserAgent string
	ClientIP  string
}

// Session is a server-issued bearer session. TokenHash is the SHA-256 digest of the opaque
// token handed to the client; the token itself is never stored.
type Session struct {
	id           int64
	CredentialID int64
	TokenHash    string
	Created      time.Time
	ExpiresAt    time.Time
	Active       bool
	RevokedAt    *time.Time
	Meta         SessionMeta
}

// NewSession creates an active session for credentialID that expires ttl after now.
func NewSession(credentialID int64, tokenHash string, now time.Time, ttl time.Duration, meta SessionMeta) *Session {
	now = now.UTC()
	return &Session{
		CredentialID: credentialID,
		TokenHash:    tokenHash,
		Created:      now,
		ExpiresAt:    now.Add(ttl),
		Active:       true,
		Meta:         meta,
	}
}

func (s *Session) ID() int64            { return s.id }
func (s *Session) SetID(id int64)       { s.id = id }
func (s *Session) CreatedAt() time.Time { return s.Created }

// Usable reports whether the session may authenticate a request at now.
// The expiry instant itself is no longer usable.
func (s *Session) Usable(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// Validate checks that the session references a credential and expires after creation.
func (s *Session) Validate() error {
	switch {
	case s.TokenHash == "":
		return ErrMissingSession
	case s.CredentialID <= 0:
		return ErrMissingReference
	case !s.ExpiresAt.After(s.Created):
		return ErrInvalidExpiry
	}
	return nil
}
