package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "ytgate",
		Usage:    "Authenticated, rate-limited gateway for a YouTube Music API proxy",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
