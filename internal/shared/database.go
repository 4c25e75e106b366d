package shared

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour a connection speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driver returns the database/sql driver name registered for the dialect.
func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// ParseDatabaseURL splits a configured database URL into a dialect and driver DSN.
//
// SQLite connections always enable foreign keys so ON DELETE CASCADE is honoured.
func ParseDatabaseURL(raw string) (Dialect, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", "", fmt.Errorf("%w: empty database url", ErrInvalidConfig)
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DialectPostgres, raw, nil
	case strings.Contains(raw, "://") && !strings.HasPrefix(raw, "sqlite://"):
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedStore, raw)
	}

	dsn := strings.TrimPrefix(raw, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return DialectSQLite, dsn + sep + "_foreign_keys=on&_busy_timeout=5000", nil
}

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
// Returns an open database connection or an error if connection fails.
func NewDatabase(path string) (*sql.DB, error) {
	db, _, err := OpenDatabase(path)
	return db, err
}

// OpenDatabase opens and pings the database named by a configured URL.
func OpenDatabase(url string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseDatabaseURL(url)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	// every :memory: connection is a separate database
	if dialect == DialectSQLite && strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// Recommended for production use to limit connections and improve performance.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
