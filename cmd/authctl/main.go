// authctl is an operator tool for the auth service database: one-shot
// expiry sweeps and session inspection without going through the API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindgrove/tenant-auth-service/internal/config"
	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

type options struct {
	databaseURL string
	verbose     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "authctl", Short: "Operate on auth service sessions and refresh tokens"}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "log sweep and query details")
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newSessionsCommand(opts))
	return cmd
}

func newSweepCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired refresh tokens and deactivate expired sessions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, logger, err := openDB(opts)
			if err != nil {
				return err
			}
			tokens := service.NewRefreshTokenStore(repository.NewRefreshTokenRepository(db), 0, 10, logger)
			sessions := service.NewSessionRegistry(repository.NewSessionRepository(db), service.SessionPolicy{}, logger)

			ctx := cmd.Context()
			removed, err := tokens.SweepExpired(ctx)
			if err != nil {
				return fmt.Errorf("sweep refresh tokens: %w", err)
			}
			ended, err := sessions.SweepExpired(ctx)
			if err != nil {
				return fmt.Errorf("sweep sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired refresh tokens, ended %d expired sessions\n", removed, ended)
			return nil
		},
	}
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect and revoke login sessions"}
	cmd.AddCommand(newSessionsListCommand(opts))
	cmd.AddCommand(newSessionsRevokeCommand(opts))
	return cmd
}

func newSessionsListCommand(opts *options) *cobra.Command {
	var (
		userID   uint
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			db, _, err := openDB(opts)
			if err != nil {
				return err
			}
			res, err := repository.NewSessionRepository(db).ListActivePaged(
				cmd.Context(), userID, time.Now(),
				repository.PageRequest{Page: page, PageSize: pageSize})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tIP\tLOGIN\tLAST ACTIVITY\tEXPIRES")
			for _, s := range res.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.SessionID, s.ClientIP, s.LoginType,
					s.LastActivityAt.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d active sessions\n", res.Page, res.TotalPages, res.Total)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "size", repository.DefaultPageSize, "page size")
	return cmd
}

func newSessionsRevokeCommand(opts *options) *cobra.Command {
	var (
		sessionID string
		userID    uint
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "End one session by id, or force-terminate a user entirely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (sessionID == "") == (userID == 0) {
				return fmt.Errorf("exactly one of --session or --user is required")
			}
			db, logger, err := openDB(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if sessionID != "" {
				registry := service.NewSessionRegistry(repository.NewSessionRepository(db), service.SessionPolicy{}, logger)
				ended, err := registry.Deactivate(ctx, sessionID, reason)
				if err != nil {
					return fmt.Errorf("revoke session: %w", err)
				}
				if !ended {
					return fmt.Errorf("no active session %q", sessionID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s ended\n", sessionID)
				return nil
			}
			return forceTerminateUser(ctx, db, userID, reason, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to end")
	cmd.Flags().UintVar(&userID, "user", 0, "force-terminate this user id")
	cmd.Flags().StringVar(&reason, "reason", domain.EndReasonAdminTerminated, "recorded end reason")
	return cmd
}

// forceTerminateUser closes both halves of a user's standing access: every
// tracked session is ended with the given reason and every refresh token is
// revoked so no new access tokens can be minted.
func forceTerminateUser(ctx context.Context, db *gorm.DB, userID uint, reason string, logger *slog.Logger, out io.Writer) error {
	registry := service.NewSessionRegistry(repository.NewSessionRepository(db), service.SessionPolicy{}, logger)
	ended, err := registry.DeactivateAll(ctx, userID, reason)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	tokens := service.NewRefreshTokenStore(repository.NewRefreshTokenRepository(db), 0, 10, logger)
	revoked, err := tokens.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	fmt.Fprintf(out, "%d sessions ended, %d refresh tokens revoked for user %d\n", ended, revoked, userID)
	return nil
}

func openDB(opts *options) (*gorm.DB, *slog.Logger, error) {
	dsn := opts.databaseURL
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		dsn = cfg.DatabaseURL
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("no database DSN: pass --database-url or set DATABASE_URL")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	var out io.Writer = io.Discard
	if opts.verbose {
		out = os.Stderr
	}
	return db, slog.New(slog.NewTextHandler(out, nil)), nil
}
