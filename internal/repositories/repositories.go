package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytgate/internal/shared"
)

// DBTX is satisfied by both [*sql.DB] and [*sql.Tx].
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrDatabase, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", shared.ErrDatabase, err)
	}
	return nil
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func insertReturningID(ctx context.Context, q DBTX, d shared.Dialect, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, shared.Rebind(d, query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
