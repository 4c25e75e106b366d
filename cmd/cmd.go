// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("YTGATE_CONFIG"),
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, json or csv",
		Value:   "table",
	}
}

// serveCommand starts the gateway.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the gateway HTTP server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override server.host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Do not print the startup banner",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand runs the Google login flow from the terminal.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Google OAuth2 login",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in through the browser and print a session token",
				Flags: []cli.Flag{
					configFlag(),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the session as JSON",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "url",
				Usage:  "Print the Google consent URL",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthURL,
			},
		},
	}
}

// sessionsCommand manages stored sessions and credentials.
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Inspect and revoke sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					configFlag(),
					formatFlag(),
					&cli.Int64Flag{
						Name:  "credential",
						Usage: "Only sessions of this credential id",
					},
				},
				Action: r.SessionsList,
			},
			{
				Name:   "credentials",
				Usage:  "List stored credentials",
				Flags:  []cli.Flag{configFlag(), formatFlag()},
				Action: r.SessionsCredentials,
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a session by id",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.SessionsRevoke,
			},
			{
				Name:   "purge",
				Usage:  "Delete expired sessions",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SessionsPurge,
			},
			{
				Name:      "delete-credential",
				Usage:     "Delete a stored credential and all of its sessions",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.SessionsDeleteCredential,
			},
		},
	}
}
