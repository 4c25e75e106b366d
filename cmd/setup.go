package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/shared"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "url", config.Database.URL)

	db, dialect, err := r.openStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	version, err := shared.CurrentVersion(ctx, db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for %s database at version %d", dialect, version)
	return r.writeSuccess("database ready (schema version %d)", version)
}

// SetupRollback rolls back the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, dialect, err := shared.OpenDatabase(config.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(ctx, db, dialect); err != nil {
		return err
	}

	version, err := shared.CurrentVersion(ctx, db)
	if err != nil {
		return err
	}
	return r.writeSuccess("rolled back to schema version %d", version)
}

// SetupConfig writes the example configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writeSuccess("wrote %s", path)
}
