package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
	tu "github.com/desertthunder/ytgate/internal/testing"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeFlow hands out consent URLs that point straight back at the local callback with a code.
type fakeFlow struct {
	callback string
	cred     models.Credential
	err      error
}

func (f *fakeFlow) AuthCodeURL(state string) string {
	return f.callback + "?code=test-code&state=" + state
}

func (f *fakeFlow) Exchange(ctx context.Context, code string) (models.Credential, error) {
	if f.err != nil {
		return models.Credential{}, f.err
	}
	return f.cred, nil
}

func (f *fakeFlow) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	return cred, nil
}

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.URL = filepath.Join(t.TempDir(), "ytgate.db")
	return config
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func newTestRunner(t *testing.T, config *shared.Config, output *bytes.Buffer) *Runner {
	t.Helper()
	clock := tu.NewClock(testNow)
	return NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		Clock:  clock.Now,
	})
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "ytgate", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"ytgate"}, args...))
}

func seedSessions(t *testing.T, r *Runner) (string, *models.Session) {
	t.Helper()
	store, closeStore, err := r.sessionStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("sessionStore failed: %v", err)
	}
	defer closeStore()

	token, session, err := store.Create(context.Background(), tu.TestCredential(), models.SessionMeta{UserAgent: "test", ClientIP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return token, session
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			flow := &fakeFlow{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				OAuth:      flow,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.oauth != flow {
				t.Error("expected oauth flow to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.now == nil || runner.browser == nil || runner.getenv == nil {
				t.Error("expected clock, browser and getenv defaults")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes formatted text", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("Hello, %s!\n", "World"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "Hello, World!\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
		})

		t.Run("writeSuccess marks the message", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeSuccess("done %d", 3); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), "done 3") {
				t.Errorf("unexpected output %q", output.String())
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make(map[string]bool)
		for _, c := range commands {
			names[c.Name] = true
		}
		for _, want := range []string{"serve", "setup", "auth", "sessions"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("uses defaults when the file is missing", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{
			Logger:     shared.NewLogger(&bytes.Buffer{}),
			ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
			Getenv:     func(string) string { return "" },
		})

		config, err := runner.loadConfig(nil)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if config.Guard.RateLimitMaxRequests != shared.DefaultConfig().Guard.RateLimitMaxRequests {
			t.Errorf("expected default rate limit, got %d", config.Guard.RateLimitMaxRequests)
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := shared.CreateConfigFile(path); err != nil {
			t.Fatalf("CreateConfigFile failed: %v", err)
		}

		env := map[string]string{"RATE_LIMIT_MAX_REQUESTS": "7", "DATABASE_URL": ":memory:"}
		runner := NewRunner(RunnerOpts{
			Logger:     shared.NewLogger(&bytes.Buffer{}),
			ConfigPath: path,
			Getenv:     func(k string) string { return env[k] },
		})

		config, err := runner.loadConfig(nil)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if config.Guard.RateLimitMaxRequests != 7 {
			t.Errorf("expected env override, got %d", config.Guard.RateLimitMaxRequests)
		}
		if !config.Database.InMemory() {
			t.Errorf("expected in-memory database, got %q", config.Database.URL)
		}

		again, _ := runner.loadConfig(nil)
		if again != config {
			t.Error("expected the resolved config to be cached")
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{
			Logger: shared.NewLogger(&bytes.Buffer{}),
			Getenv: func(k string) string {
				if k == "SESSION_TTL" {
					return "0"
				}
				return ""
			},
		})

		if _, err := runner.loadConfig(nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the example file", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := newTestRunner(t, testConfig(t), output)
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, runner, "setup", "config", "--config", path); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "[guard]") {
			t.Error("expected guard section in written config")
		}
	})

	t.Run("database migrates then rolls back", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := newTestRunner(t, testConfig(t), output)

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		if !strings.Contains(output.String(), "database ready") {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		if err := run(t, runner, "setup", "rollback"); err != nil {
			t.Fatalf("setup rollback failed: %v", err)
		}
		if !strings.Contains(output.String(), "rolled back") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestSessionsCommands(t *testing.T) {
	output := &bytes.Buffer{}
	runner := newTestRunner(t, testConfig(t), output)
	token, session := seedSessions(t, runner)

	t.Run("list as JSON", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "sessions", "list", "--format", "json"); err != nil {
			t.Fatalf("sessions list failed: %v", err)
		}

		var views []map[string]any
		if err := json.Unmarshal(output.Bytes(), &views); err != nil {
			t.Fatalf("invalid JSON %q: %v", output.String(), err)
		}
		if len(views) != 1 || views[0]["state"] != "active" {
			t.Errorf("unexpected sessions %v", views)
		}
		if strings.Contains(output.String(), token) {
			t.Error("session token must never be printed")
		}
	})

	t.Run("list rejects unknown formats", func(t *testing.T) {
		err := run(t, runner, "sessions", "list", "--format", "yaml")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("credentials hide secrets", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "sessions", "credentials", "--format", "csv"); err != nil {
			t.Fatalf("sessions credentials failed: %v", err)
		}
		cred := tu.TestCredential()
		if !strings.Contains(output.String(), cred.ClientID) {
			t.Errorf("expected client id in %q", output.String())
		}
		for _, secret := range []string{cred.Token, cred.RefreshToken, cred.ClientSecret} {
			if strings.Contains(output.String(), secret) {
				t.Errorf("output leaked %q", secret)
			}
		}
	})

	t.Run("revoke requires a numeric id", func(t *testing.T) {
		if err := run(t, runner, "sessions", "revoke"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := run(t, runner, "sessions", "revoke", "abc"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("revoke marks the session", func(t *testing.T) {
		output.Reset()
		id := fmt.Sprint(session.ID())
		if err := run(t, runner, "sessions", "revoke", id); err != nil {
			t.Fatalf("sessions revoke failed: %v", err)
		}

		output.Reset()
		if err := run(t, runner, "sessions", "list", "--format", "csv"); err != nil {
			t.Fatalf("sessions list failed: %v", err)
		}
		if !strings.Contains(output.String(), "revoked") {
			t.Errorf("expected revoked state in %q", output.String())
		}
	})

	t.Run("purge keeps unexpired revoked sessions", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "sessions", "purge"); err != nil {
			t.Fatalf("sessions purge failed: %v", err)
		}
		if !strings.Contains(output.String(), "purged 0 expired sessions") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("delete credential", func(t *testing.T) {
		seedSessions(t, runner)

		output.Reset()
		if err := run(t, runner, "sessions", "credentials", "--format", "json"); err != nil {
			t.Fatalf("sessions credentials failed: %v", err)
		}
		var creds []map[string]any
		if err := json.Unmarshal(output.Bytes(), &creds); err != nil || len(creds) != 1 {
			t.Fatalf("expected one credential, got %v %v", creds, err)
		}

		id := fmt.Sprint(creds[0]["id"])
		if err := run(t, runner, "sessions", "delete-credential", id); err != nil {
			t.Fatalf("delete-credential failed: %v", err)
		}

		output.Reset()
		if err := run(t, runner, "sessions", "list", "--format", "json"); err != nil {
			t.Fatalf("sessions list failed: %v", err)
		}
		if strings.TrimSpace(output.String()) != "[]" {
			t.Errorf("expected no sessions after delete, got %q", output.String())
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("callbackAddr", func(t *testing.T) {
		tc := []struct {
			uri     string
			want    string
			wantErr bool
		}{
			{uri: "http://localhost:8000/auth/callback", want: "localhost:8000"},
			{uri: "http://127.0.0.1/callback", want: "127.0.0.1:80"},
			{uri: "https://example.com/auth/callback", wantErr: true},
			{uri: "not a url", wantErr: true},
		}
		for _, tt := range tc {
			t.Run(tt.uri, func(t *testing.T) {
				got, err := callbackAddr(tt.uri)
				if tt.wantErr {
					if !errors.Is(err, shared.ErrInvalidConfig) {
						t.Errorf("expected ErrInvalidConfig, got %q %v", got, err)
					}
					return
				}
				if err != nil || got != tt.want {
					t.Errorf("callbackAddr(%q) = %q, %v; want %q", tt.uri, got, err, tt.want)
				}
			})
		}
	})

	t.Run("url prints the consent URL", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := newTestRunner(t, testConfig(t), output)
		runner.oauth = &fakeFlow{callback: "https://accounts.example.com/o/oauth2/auth"}

		if err := run(t, runner, "auth", "url"); err != nil {
			t.Fatalf("auth url failed: %v", err)
		}
		if !strings.Contains(output.String(), "state=") {
			t.Errorf("expected state in %q", output.String())
		}
	})

	t.Run("login completes through the loopback callback", func(t *testing.T) {
		addr := freeAddr(t)
		config := testConfig(t)
		config.OAuth.RedirectURI = "http://" + addr + "/auth/callback"

		output := &bytes.Buffer{}
		runner := newTestRunner(t, config, output)
		runner.oauth = &fakeFlow{callback: config.OAuth.RedirectURI, cred: tu.TestCredential()}
		runner.browser = func(u string) error {
			go func() {
				resp, err := http.Get(u)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}

		if err := run(t, runner, "auth", "login", "--json", "--timeout", "5s"); err != nil {
			t.Fatalf("auth login failed: %v", err)
		}

		out := output.String()
		body := out[strings.Index(out, "{"):]
		var resp struct {
			SessionToken string    `json:"session_token"`
			ExpiresAt    time.Time `json:"expires_at"`
		}
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			t.Fatalf("invalid JSON %q: %v", body, err)
		}
		if len(resp.SessionToken) != 43 {
			t.Errorf("unexpected session token %q", resp.SessionToken)
		}
		if want := testNow.Add(config.Session.TTLDuration()); !resp.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, resp.ExpiresAt)
		}

		store, closeStore, err := runner.sessionStore(context.Background(), nil)
		if err != nil {
			t.Fatalf("sessionStore failed: %v", err)
		}
		defer closeStore()
		if _, err := store.Resolve(context.Background(), resp.SessionToken); err != nil {
			t.Errorf("expected issued session to resolve: %v", err)
		}
	})

	t.Run("login surfaces exchange failures", func(t *testing.T) {
		addr := freeAddr(t)
		config := testConfig(t)
		config.OAuth.RedirectURI = "http://" + addr + "/callback"

		runner := newTestRunner(t, config, &bytes.Buffer{})
		runner.oauth = &fakeFlow{
			callback: config.OAuth.RedirectURI,
			err:      &auth.OAuthExchangeError{Reason: "invalid_grant"},
		}
		runner.browser = func(u string) error {
			go func() {
				resp, err := http.Get(u)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}

		err := run(t, runner, "auth", "login", "--timeout", "5s")
		if !errors.Is(err, auth.ErrOAuthExchangeFailed) {
			t.Errorf("expected ErrOAuthExchangeFailed, got %v", err)
		}
	})

	t.Run("login times out", func(t *testing.T) {
		config := testConfig(t)
		config.OAuth.RedirectURI = "http://" + freeAddr(t) + "/callback"

		runner := newTestRunner(t, config, &bytes.Buffer{})
		runner.oauth = &fakeFlow{callback: config.OAuth.RedirectURI}
		runner.browser = func(string) error { return errors.New("no browser") }

		err := run(t, runner, "auth", "login", "--timeout", "50ms")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}
