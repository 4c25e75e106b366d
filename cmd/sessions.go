package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytgate/internal/formatter"
	"github.com/desertthunder/ytgate/internal/shared"
)

func parseID(cmd *cli.Command) (int64, error) {
	raw := cmd.StringArg("id")
	if raw == "" {
		return 0, fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer, got %q", shared.ErrInvalidArgument, raw)
	}
	return id, nil
}

// SessionsList prints sessions, optionally for one credential.
func (r *Runner) SessionsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := store.ListSessions(ctx, cmd.Int64("credential"))
	if err != nil {
		return err
	}
	return formatter.WriteSessions(r.output, format, sessions, r.now())
}

// SessionsCredentials prints stored credentials without their secrets.
func (r *Runner) SessionsCredentials(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	creds, err := store.ListCredentials(ctx)
	if err != nil {
		return err
	}
	return formatter.WriteCredentials(r.output, format, creds)
}

// SessionsRevoke marks one session inactive.
func (r *Runner) SessionsRevoke(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.RevokeSession(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke session %d: %w", id, err)
	}
	r.logger.Info("session revoked", "id", id)
	return r.writeSuccess("revoked session %d", id)
}

// SessionsPurge deletes expired sessions.
func (r *Runner) SessionsPurge(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	return r.writeSuccess("purged %d expired sessions", n)
}

// SessionsDeleteCredential removes a credential and its sessions.
func (r *Runner) SessionsDeleteCredential(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := r.sessionStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteCredential(ctx, id); err != nil {
		return fmt.Errorf("failed to delete credential %d: %w", id, err)
	}
	r.logger.Info("credential deleted", "id", id)
	return r.writeSuccess("deleted credential %d and its sessions", id)
}
