package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/config"
	"github.com/omriShneor/calsync/internal/logging"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd creates the root command. Running it without a subcommand serves the API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calsync",
		Short: "Google sign-in and calendar sync API",
		Long: `calsync signs users in with Google, issues JWT sessions and keeps a
Postgres copy of each user's upcoming Google Calendar events.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: console or json (overrides LOG_FORMAT)")

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSyncCmd(),
		newCleanupTokensCmd(),
		newGenKeyCmd(),
	)

	return cmd
}

// loadConfig reads the environment and applies flag overrides
func loadConfig() *config.Config {
	cfg := config.LoadFromEnv()
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	return cfg
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
