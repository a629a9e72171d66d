package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/config"
	"github.com/scanzie/smeal/internal/poller"
	"github.com/scanzie/smeal/internal/report"
	"github.com/scanzie/smeal/internal/utils"
	"github.com/scanzie/smeal/internal/webclient"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Start an analysis and follow its progress",
		Long: `Watch starts an analysis of <url> on the analysis backend and prints its
progress until the result is ready.

The user is taken from the dashboard session: pass the value of the
better-auth.session_token cookie with --session-token.

Examples:
  scanzie watch https://example.com --session-token <token>

  # Follow an analysis that is already running
  scanzie watch https://example.com --session-token <token> --no-start

  # One JSON state per line
  scanzie watch https://example.com --session-token <token> --json`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}
	cmd.Flags().StringP("session-token", "s", "", "Dashboard session token")
	cmd.Flags().Bool("no-start", false, "Do not start a new analysis; only poll")
	cmd.Flags().Bool("json", false, "Print poller states as JSON lines")
	return cmd
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	target, err := utils.ValidateTargetURL(args[0])
	if err != nil {
		return err
	}
	token, _ := cmd.Flags().GetString("session-token")
	noStart, _ := cmd.Flags().GetBool("no-start")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webCfg := webclient.DefaultConfig()
	webCfg.Tracing = false
	web, err := webclient.NewNetHTTPClient(webCfg, logger, nil)
	if err != nil {
		return err
	}
	defer web.Close()

	creds, err := backend.NewSessionEndpoint(cfg.BaseURL, token, web)
	if err != nil {
		return err
	}
	who, err := creds.Credentials(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNoSession) {
			return fmt.Errorf("not signed in at %s; pass --session-token", cfg.BaseURL)
		}
		return err
	}
	client := backend.New(backend.Config{
		BaseURL:        cfg.BackendURL,
		RequestTimeout: cfg.Poll.RequestTimeout,
	}, web, backend.StaticCredentials(who), logger)

	key := poller.Key{UserID: who.UserID, URL: target}
	if !noStart {
		started, err := client.StartAnalysis(ctx, target)
		if err != nil {
			return err
		}
		key.SessionID = started.SessionID
		fmt.Fprintf(cmd.OutOrStdout(), "analysis started: %s (session %s)\n", target, started.SessionID)
	}

	p := poller.New(key, client, pollerConfig(cfg), func(poller.State) {
		fmt.Fprintf(cmd.OutOrStdout(), "ready: %s%s\n", strings.TrimRight(cfg.BaseURL, "/"), utils.AnalysisPath(target))
	}, logger)

	updates, unsubscribe := p.Updates()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printStates(cmd.OutOrStdout(), updates, asJSON)
	}()

	runErr := p.Run(ctx)
	unsubscribe()
	<-printed

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		return nil
	case errors.Is(runErr, poller.ErrGaveUp):
		return fmt.Errorf("%w: %s", runErr, p.Snapshot().Error)
	default:
		return runErr
	}
}

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		Interval:             cfg.Poll.Interval,
		RedirectDelay:        cfg.Poll.RedirectDelay,
		MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
		MaxDuration:          cfg.Poll.MaxDuration,
	}
}

// printStates writes one line per state until updates is closed.
func printStates(w io.Writer, updates <-chan poller.State, asJSON bool) {
	enc := json.NewEncoder(w)
	for st := range updates {
		if asJSON {
			_ = enc.Encode(st)
			continue
		}
		fmt.Fprintln(w, formatState(st))
	}
}

func formatState(st poller.State) string {
	if st.Progress == nil {
		if st.Error != "" {
			return "error: " + st.Error
		}
		return string(st.Phase)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%3d%%] %-10s", st.Progress.OverallProgress, st.Progress.Status)
	for _, j := range st.Progress.Jobs {
		fmt.Fprintf(&b, "  %s: %s", report.Label(j.Type), j.Status)
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "  (error: %s)", st.Error)
	}
	return b.String()
}
