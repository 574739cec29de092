package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/auth"
	"github.com/omriShneor/calsync/internal/database"
	"github.com/omriShneor/calsync/internal/eventsync"
	"github.com/omriShneor/calsync/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	worker := eventsync.NewWorker(a.sync, a.auth, eventsync.WorkerConfig{
		SyncInterval:    cfg.SyncInterval,
		CleanupInterval: cfg.TokenCleanupInterval,
		SyncOnStart:     true,
	}, a.clock, logger.Named("worker"))
	worker.Start()

	srv := server.New(server.Config{
		Port:           cfg.HTTPPort,
		AppEnv:         cfg.AppEnv,
		FrontendURL:    cfg.FrontendURL,
		AllowedOrigins: cfg.AllowedOrigins,
		SessionSecret:  cfg.SessionSecret,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateBurst:  cfg.AuthRateBurst,
		TrustedProxies: cfg.TrustedProxies,
		Auth:           a.auth,
		Calendar:       a.calendar,
		Sync:           a.sync,
		Health:         a.db,
		Clock:          a.clock,
		Logger:         logger.Named("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			worker.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	worker.Stop()
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context(), logger); err != nil {
				return err
			}
			logger.Info("database is up to date")
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync Google Calendar events once for one user or every connected user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var result interface{}
			if userID > 0 {
				result, err = a.sync.SyncUserEvents(cmd.Context(), userID)
			} else {
				result, err = a.sync.SyncAllUsers(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			return writeJSON(cmd, result)
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "Sync only this user (default: all users with a Google token)")
	return cmd
}

func newCleanupTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete expired refresh tokens and revoked ones past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.auth.CleanupExpiredTokens(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d refresh tokens\n", deleted)
			return nil
		},
	}
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a random ENCRYPTION_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
