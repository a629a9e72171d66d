package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanzie/smeal/internal/config"
	"github.com/scanzie/smeal/internal/logging"
)

// NewRootCmd creates the root command for scanzie.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanzie",
		Short: "SEO analysis dashboard service",
		Long: `scanzie serves the dashboard API: analysis history, scores and live
progress of running scans.

Configuration is read from scanzie.yaml (current directory or the XDG
config directory), a .env file and the environment, in that order.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to a scanzie.yaml config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config, or the default search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger logs JSON lines to stderr at the configured level; --verbose
// forces debug.
func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logging.LevelDebug
	}
	return logging.NewLogger(cmd.ErrOrStderr(), "scanzie", level)
}
