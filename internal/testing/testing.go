// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time; pass the method value wherever a clock func is expected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// NewTestDB opens an in-memory sqlite database with every migration applied.
// The database is closed when the test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(context.Background(), db, shared.DialectSQLite); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCredential returns a credential holding a YouTube scope.
func TestCredential() models.Credential {
	return models.Credential{
		Token:        "ya29.test-access-token",
		RefreshToken: "1//test-refresh-token",
		TokenURI:     "https://oauth2.googleapis.com/token",
		ClientID:     "test-client.apps.googleusercontent.com",
		ClientSecret: "test-secret",
		Scopes:       []string{"https://www.googleapis.com/auth/youtube"},
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// StaticVerifier resolves every header through a fixed map; unknown headers return Err.
type StaticVerifier struct {
	Credentials map[string]*models.Credential
	Err         error
}

func (v *StaticVerifier) Verify(ctx context.Context, header string) (*models.Credential, error) {
	if c, ok := v.Credentials[header]; ok {
		return c, nil
	}
	return nil, v.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
