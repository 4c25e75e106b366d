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

const credentialColumns = `id, token, refresh_token, token_uri, client_id, client_secret, scopes,
	expiry, subject, email, created_at, updated_at`

// CredentialRepository implements [models.Repository] for [models.StoredCredential] persistence.
type CredentialRepository struct {
	db      *sql.DB
	q       DBTX
	dialect shared.Dialect
	now     func() time.Time
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB, dialect shared.Dialect) *CredentialRepository {
	return &CredentialRepository{db: db, q: db, dialect: dialect, now: time.Now}
}

// Tx returns a copy of the repository whose statements run inside tx.
func (r *CredentialRepository) Tx(tx *sql.Tx) *CredentialRepository {
	c := *r
	c.q = tx
	return &c
}

// Create inserts the credential and returns it with its generated ID.
func (r *CredentialRepository) Create(ctx context.Context, c *models.StoredCredential) (*models.StoredCredential, error) {
	return r.Insert(ctx, c.Credential)
}

// Insert persists a credential value.
func (r *CredentialRepository) Insert(ctx context.Context, c models.Credential) (*models.StoredCredential, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := r.now().UTC()
	id, err := insertReturningID(ctx, r.q, r.dialect, `
		INSERT INTO credentials (token, refresh_token, token_uri, client_id, client_secret, scopes,
			expiry, subject, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Token, nullString(c.RefreshToken), c.TokenURI, c.ClientID, c.ClientSecret, c.ScopeString(),
		nullTime(&c.Expiry), nullString(c.Subject), nullString(c.Email), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert credential: %v", shared.ErrDatabase, err)
	}

	return models.NewStoredCredential(id, c, now, now), nil
}

// Get retrieves a credential by ID.
func (r *CredentialRepository) Get(ctx context.Context, id int64) (*models.StoredCredential, error) {
	row := r.q.QueryRowContext(ctx, shared.Rebind(r.dialect, "SELECT "+credentialColumns+" FROM credentials WHERE id = ?"), id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: credential %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query credential: %v", shared.ErrDatabase, err)
	}
	return c, nil
}

// FindByRefreshToken returns the most recent credential issued to clientID with refreshToken.
func (r *CredentialRepository) FindByRefreshToken(ctx context.Context, clientID, refreshToken string) (*models.StoredCredential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: credential without refresh token", shared.ErrNotFound)
	}

	query := "SELECT " + credentialColumns + ` FROM credentials
		WHERE client_id = ? AND refresh_token = ? ORDER BY id DESC LIMIT 1`
	c, err := scanCredential(r.q.QueryRowContext(ctx, shared.Rebind(r.dialect, query), clientID, refreshToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: credential for client %s", shared.ErrNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query credential: %v", shared.ErrDatabase, err)
	}
	return c, nil
}

// Replace stores a new version of the credential under the same ID.
func (r *CredentialRepository) Replace(ctx context.Context, id int64, c models.Credential) (*models.StoredCredential, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	res, err := r.q.ExecContext(ctx, shared.Rebind(r.dialect, `
		UPDATE credentials SET token = ?, refresh_token = ?, scopes = ?, expiry = ?, updated_at = ?
		WHERE id = ?`),
		c.Token, nullString(c.RefreshToken), c.ScopeString(), nullTime(&c.Expiry), now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to update credential: %v", shared.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: credential %d", shared.ErrNotFound, id)
	}

	return models.NewStoredCredential(id, c, existing.CreatedAt(), now), nil
}

// Delete removes a credential and every session that references it in one transaction.
func (r *CredentialRepository) Delete(ctx context.Context, id int64) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, shared.Rebind(r.dialect, "DELETE FROM sessions WHERE credential_id = ?"), id); err != nil {
			return fmt.Errorf("%w: failed to delete sessions: %v", shared.ErrDatabase, err)
		}

		res, err := tx.ExecContext(ctx, shared.Rebind(r.dialect, "DELETE FROM credentials WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("%w: failed to delete credential: %v", shared.ErrDatabase, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: credential %d", shared.ErrNotFound, id)
		}
		return nil
	})
}

// List returns every stored credential ordered by ID.
func (r *CredentialRepository) List(ctx context.Context) ([]*models.StoredCredential, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+credentialColumns+" FROM credentials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list credentials: %v", shared.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*models.StoredCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan credential: %v", shared.ErrDatabase, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*models.StoredCredential, error) {
	var r credentialRow
	if err := s.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.credential(), nil
}
