package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/repositories"
	"github.com/desertthunder/ytgate/internal/shared"
)

const (
	DefaultSessionTTL = time.Hour
	sessionTokenBytes = 32
)

// Refresher obtains a new version of a credential from the OAuth authority.
type Refresher interface {
	Refresh(ctx context.Context, cred models.Credential) (models.Credential, error)
}

// SessionStore issues, resolves and revokes server-side sessions.
//
// Clients only ever see the opaque token returned by [SessionStore.Create]; the database holds
// its SHA-256 digest.
type SessionStore struct {
	db          *sql.DB
	credentials *repositories.CredentialRepository
	sessions    *repositories.SessionRepository
	ttl         time.Duration
	now         func() time.Time
}

// NewSessionStore creates a store over a migrated database. A nil clock uses [time.Now].
func NewSessionStore(db *sql.DB, dialect shared.Dialect, ttl time.Duration, now func() time.Time) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		db:          db,
		credentials: repositories.NewCredentialRepository(db, dialect),
		sessions:    repositories.NewSessionRepository(db, dialect),
		ttl:         ttl,
		now:         now,
	}
}

// TTL returns the lifetime given to new sessions.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create persists cred, or updates the stored credential already holding the same client and
// refresh token, and opens a session for it in the same transaction. The returned token is
// not recoverable later.
func (s *SessionStore) Create(ctx context.Context, cred models.Credential, meta models.SessionMeta) (string, *models.Session, error) {
	token, err := shared.GenerateToken(sessionTokenBytes)
	if err != nil {
		return "", nil, err
	}

	var session *models.Session
	err = repositories.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		credentials := s.credentials.Tx(tx)

		stored, err := credentials.FindByRefreshToken(ctx, cred.ClientID, cred.RefreshToken)
		switch {
		case err == nil:
			stored, err = credentials.Replace(ctx, stored.ID(), cred)
		case errors.Is(err, shared.ErrNotFound):
			stored, err = credentials.Insert(ctx, cred)
		}
		if err != nil {
			return err
		}

		session = models.NewSession(stored.ID(), shared.HashToken(token), s.now(), s.ttl, meta)
		session, err = s.sessions.Tx(tx).Create(ctx, session)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// Lookup returns the session and credential for token.
//
// Unknown and revoked tokens return [ErrSessionNotFound]. A session is expired from its
// expiry instant onwards and returns [ErrSessionExpired].
func (s *SessionStore) Lookup(ctx context.Context, token string) (*models.Session, *models.StoredCredential, error) {
	if token == "" {
		return nil, nil, ErrSessionNotFound
	}

	session, cred, err := s.sessions.FindByTokenHash(ctx, shared.HashToken(token))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if !session.Active {
		return nil, nil, ErrSessionNotFound
	}
	if !session.Usable(s.now()) {
		return nil, nil, ErrSessionExpired
	}
	return session, cred, nil
}

// Resolve returns the credential behind an active, unexpired session.
func (s *SessionStore) Resolve(ctx context.Context, token string) (*models.StoredCredential, error) {
	_, cred, err := s.Lookup(ctx, token)
	return cred, err
}

// Invalidate revokes the session for token. The row is kept with its revocation time.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return ErrSessionNotFound
	}
	err := s.sessions.Revoke(ctx, shared.HashToken(token), s.now())
	if errors.Is(err, shared.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// RevokeSession revokes a session by ID.
func (s *SessionStore) RevokeSession(ctx context.Context, id int64) error {
	err := s.sessions.RevokeID(ctx, id, s.now())
	if errors.Is(err, shared.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// PurgeExpired deletes every session at or past its expiry and returns how many were removed.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.PurgeExpired(ctx, s.now())
}

// DeleteCredential removes a credential and all of its sessions.
func (s *SessionStore) DeleteCredential(ctx context.Context, id int64) error {
	return s.credentials.Delete(ctx, id)
}

// ListSessions lists sessions for a credential, or every session when credentialID is zero.
func (s *SessionStore) ListSessions(ctx context.Context, credentialID int64) ([]*models.Session, error) {
	return s.sessions.List(ctx, credentialID)
}

// ListCredentials lists every stored credential.
func (s *SessionStore) ListCredentials(ctx context.Context) ([]*models.StoredCredential, error) {
	return s.credentials.List(ctx)
}

// CountActive returns the number of sessions that can still authenticate.
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	return s.sessions.CountActive(ctx, s.now())
}

// Refresh renews the access token behind a session and stores the new credential version.
// The session's own expiry is unchanged.
func (s *SessionStore) Refresh(ctx context.Context, token string, r Refresher) (*models.StoredCredential, error) {
	_, stored, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	next, err := r.Refresh(ctx, stored.Credential)
	if err != nil {
		return nil, err
	}

	updated, err := s.credentials.Replace(ctx, stored.ID(), next)
	if err != nil {
		return nil, fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	return updated, nil
}
