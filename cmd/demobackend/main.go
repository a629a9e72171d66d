// Command demobackend runs a local analysis backend speaking the same API as
// the production one. It fetches pages itself, scores them and writes the
// finished records to the dashboard database, so the full
// analyze -> poll -> view loop can run offline.
//
// Usage:
//
//	demobackend --listen :8080
//	scanzie watch http://localhost:8080/ --session-token <token>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanzie/smeal/internal/config"
	"github.com/scanzie/smeal/internal/demobackend"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/webclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := demobackend.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "demobackend",
		Short: "Run a local SEO analysis backend",
		Long: `demobackend accepts analysis requests, runs the on-page, content and
technical analyses against the target page and reports progress the same
way the hosted backend does.

Finished records are written to the database configured for scanzie
(scanzie.yaml, .env or DATABASE_DRIVER / DATABASE_URL) unless --no-store
is given. A small sample site is served at / for offline runs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringP("config", "c", "", "Path to a scanzie.yaml config file")
	cmd.Flags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.Flags().StringP("listen", "l", defaults.ListenAddr, "Listen address")
	cmd.Flags().Duration("step-delay", defaults.StepDelay, "Pause before each analysis category")
	cmd.Flags().Bool("no-sample-site", false, "Do not serve the sample site at /")
	cmd.Flags().Bool("no-store", false, "Keep results in memory only")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	appCfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := logging.ParseLevel(appCfg.LogLevel)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(cmd.ErrOrStderr(), "demobackend", level)

	cfg := demobackend.DefaultConfig()
	cfg.ListenAddr, _ = cmd.Flags().GetString("listen")
	cfg.StepDelay, _ = cmd.Flags().GetDuration("step-delay")
	if noSite, _ := cmd.Flags().GetBool("no-sample-site"); noSite {
		cfg.ServeSampleSite = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink demobackend.RecordSink
	if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
		st, err := store.Open(ctx, appCfg.Database.Driver, appCfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		sink = st
	}

	webCfg := webclient.DefaultConfig()
	webCfg.UserAgent = cfg.UserAgent
	webCfg.Timeout = 20 * time.Second
	web, err := webclient.NewNetHTTPClient(webCfg, logger, nil)
	if err != nil {
		return err
	}
	defer web.Close()

	sessions := demobackend.NewSessions(cfg, demobackend.NewAnalyzer(web, cfg.UserAgent, logger), sink, logger)
	defer sessions.Close()

	logger.Info("demo backend starting",
		logging.Field{Key: "addr", Value: cfg.ListenAddr},
		logging.Field{Key: "store", Value: sink != nil},
		logging.Field{Key: "sample_site", Value: cfg.ServeSampleSite})

	srv := demobackend.NewServer(cfg, sessions, logger)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
