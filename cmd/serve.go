package main

import (
	"context"
	"fmt"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/server"
	"github.com/desertthunder/ytgate/internal/shared"
)

// initSentry enables error reporting when a DSN is configured. The returned func flushes
// buffered events.
func initSentry(cfg shared.SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func (r *Runner) banner() {
	fig := figure.NewFigure("ytgate", "cybermedium", true)
	r.writePlain("%s\n", fig.String())
}

// Serve runs the gateway until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = port
	}

	flush, err := initSentry(config.Sentry)
	if err != nil {
		return err
	}
	defer flush()

	if !cmd.Bool("no-banner") {
		r.banner()
	}

	db, dialect, err := r.openStore(ctx, config)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer db.Close()

	oauth, err := r.oauthFlow(config)
	if err != nil {
		return err
	}

	app, err := server.New(config, r.logger, server.Options{
		DB:      db,
		Dialect: dialect,
		OAuth:   oauth,
		Clock:   r.now,
	})
	if err != nil {
		return err
	}

	r.logger.Info("starting gateway",
		"addr", config.Server.Addr(),
		"database", dialect,
		"guard", config.Guard.Backend,
		"upstream", config.Upstream.URL,
	)
	return app.Run(ctx)
}
