package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
)

const sessionColumns = `s.id, s.credential_id, s.session_token, s.created_at, s.expires_at,
	s.is_active, s.revoked_at, s.user_agent, s.client_ip`

// SessionRepository implements [models.Repository] for [models.Session] persistence.
type SessionRepository struct {
	q       DBTX
	dialect shared.Dialect
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB, dialect shared.Dialect) *SessionRepository {
	return &SessionRepository{q: db, dialect: dialect}
}

// Tx returns a copy of the repository whose statements run inside tx.
func (r *SessionRepository) Tx(tx *sql.Tx) *SessionRepository {
	c := *r
	c.q = tx
	return &c
}

// Create inserts a session row and sets its ID.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	id, err := insertReturningID(ctx, r.q, r.dialect, `
		INSERT INTO sessions (credential_id, session_token, created_at, expires_at, is_active,
			revoked_at, user_agent, client_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.CredentialID, s.TokenHash, s.Created.UTC(), s.ExpiresAt.UTC(), s.Active,
		nullTime(s.RevokedAt), nullString(s.Meta.UserAgent), nullString(s.Meta.ClientIP),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert session: %v", shared.ErrDatabase, err)
	}

	s.SetID(id)
	return s, nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id int64) (*models.Session, error) {
	row := r.q.QueryRowContext(ctx, shared.Rebind(r.dialect, "SELECT "+sessionColumns+" FROM sessions s WHERE s.id = ?"), id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query session: %v", shared.ErrDatabase, err)
	}
	return s, nil
}

// FindByTokenHash loads a session and its credential in one query.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (*models.Session, *models.StoredCredential, error) {
	query := "SELECT " + sessionColumns + `,
		c.id, c.token, c.refresh_token, c.token_uri, c.client_id, c.client_secret, c.scopes,
		c.expiry, c.subject, c.email, c.created_at, c.updated_at
		FROM sessions s JOIN credentials c ON c.id = s.credential_id
		WHERE s.session_token = ?`

	var (
		s    sessionRow
		cred credentialRow
	)
	dest := append(s.dest(), cred.dest()...)
	err := r.q.QueryRowContext(ctx, shared.Rebind(r.dialect, query), hash).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: session", shared.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to query session: %v", shared.ErrDatabase, err)
	}
	return s.session(), cred.credential(), nil
}

// Revoke marks the session with the given digest inactive. Revoking an already
// inactive session succeeds and keeps the first revocation time.
func (r *SessionRepository) Revoke(ctx context.Context, hash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, shared.Rebind(r.dialect, `
		UPDATE sessions SET is_active = ?, revoked_at = COALESCE(revoked_at, ?)
		WHERE session_token = ?`), false, at.UTC(), hash)
	if err != nil {
		return fmt.Errorf("%w: failed to revoke session: %v", shared.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session", shared.ErrNotFound)
	}
	return nil
}

// RevokeID marks a session inactive by ID.
func (r *SessionRepository) RevokeID(ctx context.Context, id int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, shared.Rebind(r.dialect, `
		UPDATE sessions SET is_active = ?, revoked_at = COALESCE(revoked_at, ?)
		WHERE id = ?`), false, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to revoke session: %v", shared.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %d", shared.ErrNotFound, id)
	}
	return nil
}

// PurgeExpired deletes every session whose expiry is at or before now.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, shared.Rebind(r.dialect, "DELETE FROM sessions WHERE expires_at <= ?"), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to purge sessions: %v", shared.ErrDatabase, err)
	}
	return res.RowsAffected()
}

// Delete removes a session row.
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, shared.Rebind(r.dialect, "DELETE FROM sessions WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", shared.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %d", shared.ErrNotFound, id)
	}
	return nil
}

// List returns sessions ordered by ID. A zero credentialID lists every session.
func (r *SessionRepository) List(ctx context.Context, credentialID int64) ([]*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions s"
	var args []any
	if credentialID > 0 {
		query += " WHERE s.credential_id = ?"
		args = append(args, credentialID)
	}
	query += " ORDER BY s.id"

	rows, err := r.q.QueryContext(ctx, shared.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list sessions: %v", shared.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan session: %v", shared.ErrDatabase, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountActive returns the number of active sessions that have not reached expiry at now.
func (r *SessionRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, shared.Rebind(r.dialect,
		"SELECT COUNT(*) FROM sessions WHERE is_active = ? AND expires_at > ?"), true, now.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count sessions: %v", shared.ErrDatabase, err)
	}
	return n, nil
}

type sessionRow struct {
	id, credentialID     int64
	hash                 string
	createdAt, expiresAt time.Time
	active               bool
	revokedAt            sql.NullTime
	userAgent, clientIP  sql.NullString
}

func (s *sessionRow) dest() []any {
	return []any{&s.id, &s.credentialID, &s.hash, &s.createdAt, &s.expiresAt, &s.active,
		&s.revokedAt, &s.userAgent, &s.clientIP}
}

func (s *sessionRow) session() *models.Session {
	out := &models.Session{
		CredentialID: s.credentialID,
		TokenHash:    s.hash,
		Created:      s.createdAt.UTC(),
		ExpiresAt:    s.expiresAt.UTC(),
		Active:       s.active,
		Meta:         models.SessionMeta{UserAgent: s.userAgent.String, ClientIP: s.clientIP.String},
	}
	out.SetID(s.id)
	if s.revokedAt.Valid {
		t := s.revokedAt.Time.UTC()
		out.RevokedAt = &t
	}
	return out
}

func scanSession(sc scanner) (*models.Session, error) {
	var s sessionRow
	if err := sc.Scan(s.dest()...); err != nil {
		return nil, err
	}
	return s.session(), nil
}

type credentialRow struct {
	id                   int64
	c                    models.Credential
	refresh, subj, email sql.NullString
	scopes               string
	expiry               sql.NullTime
	createdAt, updatedAt time.Time
}

func (r *credentialRow) dest() []any {
	return []any{&r.id, &r.c.Token, &r.refresh, &r.c.TokenURI, &r.c.ClientID, &r.c.ClientSecret,
		&r.scopes, &r.expiry, &r.subj, &r.email, &r.createdAt, &r.updatedAt}
}

func (r *credentialRow) credential() *models.StoredCredential {
	c := r.c
	c.RefreshToken = r.refresh.String
	c.Scopes = models.ParseScopes(r.scopes)
	c.Subject = r.subj.String
	c.Email = r.email.String
	if r.expiry.Valid {
		c.Expiry = r.expiry.Time.UTC()
	}
	return models.NewStoredCredential(r.id, c, r.createdAt.UTC(), r.updatedAt.UTC())
}
