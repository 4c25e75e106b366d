package guard

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/desertthunder/ytgate/internal/repositories"
	"github.com/desertthunder/ytgate/internal/shared"
)

// SQLCounter is a [Counter] backed by the guard_events table, letting several gateway
// instances enforce one limit. Each call prunes, counts and inserts inside one transaction;
// on postgres the key is additionally serialized with a transaction-scoped advisory lock.
type SQLCounter struct {
	db      *sql.DB
	dialect shared.Dialect
	now     Clock
	maxSpan atomic.Int64
}

// NewSQLCounter creates a counter over a migrated database. A nil clock uses [time.Now].
func NewSQLCounter(db *sql.DB, dialect shared.Dialect, now Clock) *SQLCounter {
	if now == nil {
		now = time.Now
	}
	return &SQLCounter{db: db, dialect: dialect, now: now}
}

func (c *SQLCounter) q(query string) string { return shared.Rebind(c.dialect, query) }

func (c *SQLCounter) noteSpan(span time.Duration) {
	for {
		cur := c.maxSpan.Load()
		if int64(span) <= cur || c.maxSpan.CompareAndSwap(cur, int64(span)) {
			return
		}
	}
}

// prune locks the key where the dialect supports it and deletes events outside the window.
func (c *SQLCounter) prune(ctx context.Context, tx *sql.Tx, key string, span time.Duration, now time.Time) error {
	c.noteSpan(span)
	if c.dialect == shared.DialectPostgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return fmt.Errorf("%w: failed to lock %s: %v", shared.ErrDatabase, key, err)
		}
	}
	cutoff := now.Add(-span).UnixNano()
	if _, err := tx.ExecContext(ctx, c.q("DELETE FROM guard_events WHERE bucket_key = ? AND occurred_at <= ?"), key, cutoff); err != nil {
		return fmt.Errorf("%w: failed to prune %s: %v", shared.ErrDatabase, key, err)
	}
	return nil
}

func (c *SQLCounter) count(ctx context.Context, tx *sql.Tx, key string) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, c.q("SELECT COUNT(*) FROM guard_events WHERE bucket_key = ?"), key).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %v", shared.ErrDatabase, key, err)
	}
	return n, nil
}

func (c *SQLCounter) insert(ctx context.Context, tx *sql.Tx, key string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, c.q("INSERT INTO guard_events (bucket_key, occurred_at) VALUES (?, ?)"), key, now.UnixNano()); err != nil {
		return fmt.Errorf("%w: failed to record %s: %v", shared.ErrDatabase, key, err)
	}
	return nil
}

func (c *SQLCounter) RecordAndCheck(ctx context.Context, key string, span time.Duration, max int) (bool, int, error) {
	if span <= 0 || max <= 0 {
		return false, 0, ErrInvalidLimit
	}

	var (
		allowed bool
		n       int
	)
	err := repositories.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		now := c.now()
		if err := c.prune(ctx, tx, key, span, now); err != nil {
			return err
		}
		var err error
		if n, err = c.count(ctx, tx, key); err != nil {
			return err
		}
		if n >= max {
			return nil
		}
		if err := c.insert(ctx, tx, key, now); err != nil {
			return err
		}
		allowed = true
		n++
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return allowed, n, nil
}

func (c *SQLCounter) Record(ctx context.Context, key string, span time.Duration) (int, error) {
	if span <= 0 {
		return 0, ErrInvalidLimit
	}

	var n int
	err := repositories.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		now := c.now()
		if err := c.prune(ctx, tx, key, span, now); err != nil {
			return err
		}
		if err := c.insert(ctx, tx, key, now); err != nil {
			return err
		}
		var err error
		n, err = c.count(ctx, tx, key)
		return err
	})
	return n, err
}

func (c *SQLCounter) Count(ctx context.Context, key string, span time.Duration) (int, error) {
	var n int
	cutoff := c.now().Add(-span).UnixNano()
	err := c.db.QueryRowContext(ctx, c.q("SELECT COUNT(*) FROM guard_events WHERE bucket_key = ? AND occurred_at > ?"), key, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %v", shared.ErrDatabase, key, err)
	}
	return n, nil
}

func (c *SQLCounter) Oldest(ctx context.Context, key string, span time.Duration) (time.Time, bool, error) {
	var oldest sql.NullInt64
	cutoff := c.now().Add(-span).UnixNano()
	err := c.db.QueryRowContext(ctx, c.q("SELECT MIN(occurred_at) FROM guard_events WHERE bucket_key = ? AND occurred_at > ?"), key, cutoff).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: failed to read %s: %v", shared.ErrDatabase, key, err)
	}
	if !oldest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, oldest.Int64), true, nil
}

func (c *SQLCounter) Reset(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, c.q("DELETE FROM guard_events WHERE bucket_key = ?"), key); err != nil {
		return fmt.Errorf("%w: failed to reset %s: %v", shared.ErrDatabase, key, err)
	}
	return nil
}

// Sweep deletes every event older than the longest window this counter has been asked about.
func (c *SQLCounter) Sweep(ctx context.Context) (int64, error) {
	span := time.Duration(c.maxSpan.Load())
	if span == 0 {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx, c.q("DELETE FROM guard_events WHERE occurred_at <= ?"), c.now().Add(-span).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to sweep guard events: %v", shared.ErrDatabase, err)
	}
	return res.RowsAffected()
}
