package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestGenerateToken(t *testing.T) {
	t.Run("encodes 256 bits as base64url", func(t *testing.T) {
		tok, err := GenerateToken(32)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if len(tok) != 43 {
			t.Errorf("expected 43 characters, got %d", len(tok))
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Errorf("token %q is not unpadded base64url", tok)
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 100 {
			tok, err := GenerateToken(32)
			if err != nil {
				t.Fatalf("GenerateToken failed: %v", err)
			}
			if seen[tok] {
				t.Fatalf("duplicate token %q", tok)
			}
			seen[tok] = true
		}
	})

	t.Run("rejects short tokens", func(t *testing.T) {
		if _, err := GenerateToken(8); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
	if a != HashToken("token-a") {
		t.Error("hash should be deterministic")
	}
	if a == HashToken("token-b") {
		t.Error("different tokens should hash differently")
	}
}

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{" WARN ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"chatty", log.InfoLevel},
	}
	for _, tt := range tc {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "component", "security")
	logger.Warn("lockout")
	if !strings.Contains(buf.String(), "component=security") {
		t.Errorf("expected child logger fields in output, got %q", buf.String())
	}
}

func TestParseDatabaseURL(t *testing.T) {
	tc := []struct {
		name    string
		url     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{name: "file path", url: "./ytgate.db", dialect: DialectSQLite, dsn: "./ytgate.db?_foreign_keys=on&_busy_timeout=5000"},
		{name: "memory", url: ":memory:", dialect: DialectSQLite, dsn: ":memory:?_foreign_keys=on&_busy_timeout=5000"},
		{name: "sqlite scheme with query", url: "sqlite://gate.db?cache=shared", dialect: DialectSQLite, dsn: "gate.db?cache=shared&_foreign_keys=on&_busy_timeout=5000"},
		{name: "postgres", url: "postgres://u:p@db/gate", dialect: DialectPostgres, dsn: "postgres://u:p@db/gate"},
		{name: "postgresql", url: "postgresql://db/gate", dialect: DialectPostgres, dsn: "postgresql://db/gate"},
		{name: "mysql", url: "mysql://db/gate", wantErr: true},
		{name: "empty", url: "  ", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			d, dsn, err := ParseDatabaseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d != tt.dialect || dsn != tt.dsn {
				t.Errorf("got (%s, %s), want (%s, %s)", d, dsn, tt.dialect, tt.dsn)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM sessions WHERE session_token = ? AND expires_at > ?"
	if got := Rebind(DialectSQLite, q); got != q {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
	want := "SELECT * FROM sessions WHERE session_token = $1 AND expires_at > $2"
	if got := Rebind(DialectPostgres, q); got != want {
		t.Errorf("Rebind() = %q, want %q", got, want)
	}
}

func TestNewDatabaseForeignKeys(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var on int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if on != 1 {
		t.Error("expected foreign keys to be enabled")
	}
}

func TestBrowserCommand(t *testing.T) {
	tc := []struct {
		goos string
		name string
	}{
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"windows", "rundll32"},
	}
	for _, tt := range tc {
		name, args, err := browserCommand(tt.goos, "https://accounts.google.com")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.goos, err)
		}
		if name != tt.name || args[len(args)-1] != "https://accounts.google.com" {
			t.Errorf("%s: got %s %v", tt.goos, name, args)
		}
	}
	if _, _, err := browserCommand("plan9", "x"); err == nil {
		t.Error("expected error for unsupported platform")
	}
}
