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
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/proofpulse/internal/bridge"
	"github.com/menta2k/proofpulse/pkg/capture"
	"github.com/menta2k/proofpulse/pkg/protocol"
	"github.com/menta2k/proofpulse/pkg/relay"
)

// NewRelayCmd creates the relay command.
func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Capture browser tabs and forward selections to the analyzer",
		Long: `Relay attaches to a Chromium browser over the DevTools protocol and serves
page clients on a WebSocket bridge:

  GET  /ws?tab=<target-id>&url=<page>&dpr=<ratio>   per-tab session
  POST /snip?tab=<target-id>                        arm the selector
  GET  /tabs                                        connected tabs

Each completed selection is captured at device resolution, cropped and sent
to the analyzer. The verdict (or a readable error) goes back to the tab.

Start the browser with --remote-debugging-port=9222 first.`,
		Args: cobra.NoArgs,
		RunE: runRelayCmd,
	}

	cmd.Flags().StringP("listen", "l", "", "Bridge listen address")
	cmd.Flags().StringP("analyzer", "a", "", "Analyzer base URL")
	cmd.Flags().StringP("devtools", "d", "", "Browser DevTools URL")

	return cmd
}

func runRelayCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Relay.Listen = v
	}
	if v, _ := cmd.Flags().GetString("analyzer"); v != "" {
		cfg.Relay.AnalyzerURL = v
	}
	if v, _ := cmd.Flags().GetString("devtools"); v != "" {
		cfg.Relay.DevToolsURL = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := relay.NewAnalyzerClient(cfg.Relay.AnalyzerURL)
	if err != nil {
		return err
	}
	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if _, err := analyzer.Health(healthCtx); err != nil {
		// Not fatal: the analyzer may come up later and each scan reports it.
		logger.Warn("analyzer not healthy yet", "url", analyzer.BaseURL(), "error", err)
	}
	cancel()

	chrome, err := capture.NewChrome(ctx, cfg.Relay.DevToolsURL, logger)
	if err != nil {
		return fmt.Errorf("connect to browser at %s: %w", cfg.Relay.DevToolsURL, err)
	}
	defer chrome.Close()

	hub := protocol.NewHub()
	r := relay.New(chrome, analyzer, hub, logger)
	b := bridge.New(hub, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})
	g.Go(func() error {
		return b.ListenAndServe(gctx, cfg.Relay.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Shutdown()
		return nil
	})

	logger.Info("relay started",
		"bridge", cfg.Relay.Listen, "analyzer", analyzer.BaseURL(), "devtools", cfg.Relay.DevToolsURL)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
