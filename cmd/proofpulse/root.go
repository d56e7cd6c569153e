package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/proofpulse/internal/config"
	plog "github.com/menta2k/proofpulse/internal/log"
)

// NewRootCmd creates the root command for ProofPulse.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proofpulse",
		Short: "Ask a vision model whether a region of a web page looks like a scam",
		Long: `ProofPulse captures a user-selected region of a browser tab, crops it at
device resolution and asks a multimodal model for a risk verdict.

The analyzer service (serve) holds the model credential. The relay attaches to
a browser over the DevTools protocol, exposes per-tab sessions to page clients
and forwards their selections to the analyzer. The scan command runs the same
chain against a screenshot on disk.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: $XDG_CONFIG_HOME/proofpulse/config.yaml)")
	cmd.PersistentFlags().Bool("json-log", false, "Emit logs as JSON")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewRelayCmd())
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewInitCmd())
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

// loadConfig resolves the configuration and lets persistent flags override
// the log settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Log.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if cmd.Flags().Changed("json-log") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("json-log")
	}
	return cfg, nil
}

// setupLogger builds the process logger on stderr and installs it as default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := plog.New(os.Stderr, plog.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON})
	slog.SetDefault(logger)
	return logger
}
