package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/server"
	"github.com/desertthunder/ytgate/internal/shared"
	"github.com/desertthunder/ytgate/internal/ui"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
	now        func() time.Time
	oauth      server.OAuthFlow
	browser    func(string) error
	getenv     func(string) string
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Config and OAuth are normally resolved per command from --config; tests set them directly.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Clock      func() time.Time
	OAuth      server.OAuthFlow
	Browser    func(string) error
	Getenv     func(string) string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		now:        opts.Clock,
		oauth:      opts.OAuth,
		browser:    opts.Browser,
		getenv:     opts.Getenv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, authCommand, sessionsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration for a command: the TOML file named by --config when it
// exists (defaults otherwise), then .env, then environment overrides.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	if cmd != nil && cmd.String("config") != "" {
		path = cmd.String("config")
	}

	config := shared.DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if config, err = shared.LoadConfig(path); err != nil {
				return nil, err
			}
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	if err := shared.LoadDotEnv(".env"); err != nil {
		r.logger.Warn("failed to load .env", "error", err)
	}
	if err := config.ApplyEnv(r.getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	r.config = config
	return config, nil
}

// openStore opens the configured database and applies pending migrations.
func (r *Runner) openStore(ctx context.Context, config *shared.Config) (*sql.DB, shared.Dialect, error) {
	db, dialect, err := shared.OpenDatabase(config.Database.URL)
	if err != nil {
		return nil, "", err
	}
	if !config.Database.InMemory() {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}

	if err := shared.RunMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// sessionStore opens the store used by the auth and sessions commands.
func (r *Runner) sessionStore(ctx context.Context, cmd *cli.Command) (*auth.SessionStore, func() error, error) {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, dialect, err := r.openStore(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewSessionStore(db, dialect, config.Session.TTLDuration(), r.now), db.Close, nil
}

// oauthFlow returns the injected flow or a Google client built from config.
func (r *Runner) oauthFlow(config *shared.Config) (server.OAuthFlow, error) {
	if r.oauth != nil {
		return r.oauth, nil
	}
	return auth.NewOAuthClient(config.OAuth, auth.WithHTTPClient(r.httpClient))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeSuccess(format string, args ...any) error {
	return r.writePlain("%s\n", ui.Styles.Success(fmt.Sprintf(format, args...)))
}
