package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/proofpulse/internal/config"
	"github.com/menta2k/proofpulse/internal/server"
	"github.com/menta2k/proofpulse/pkg/client"
	"github.com/menta2k/proofpulse/pkg/detection"
	"github.com/menta2k/proofpulse/pkg/gemini"
	"github.com/menta2k/proofpulse/pkg/ollama"
	"github.com/menta2k/proofpulse/pkg/openai"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analyzer HTTP service",
		Long: `Serve starts the analyzer: POST /scan accepts a cropped screenshot as a data
URL and returns a normalized risk verdict, GET /health reports liveness.

The model credential is read from the environment (or .env) at startup and
never leaves this process. Startup fails when the selected backend needs a
key and none is set.

Examples:
  # Gemini (default) on 127.0.0.1:8787
  GEMINI_API_KEY=... proofpulse serve

  # Local Ollama model on another port
  proofpulse serve --backend ollama --model llava --listen :9000`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default "+config.DefaultListen+")")
	cmd.Flags().StringP("backend", "b", "", "Vision backend: gemini, openai or ollama")
	cmd.Flags().StringP("model", "m", "", "Model name (backend default when empty)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Analyzer.Listen = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.UseBackend(v, os.Getenv)
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Vision.Model = v
	}

	if err := cfg.ValidateAnalyzer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)

	vc, err := newVisionClient(cfg.Vision)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Assessor:     detection.NewDetector(vc, cfg.Vision.Model, logger),
		Logger:       logger,
		MaxBodyBytes: cfg.Analyzer.MaxBodyBytes,
		Debug:        cfg.Log.Verbose,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting analyzer",
		"listen", cfg.Analyzer.Listen, "backend", vc.Name(), "model", cfg.Vision.Model)
	return srv.ListenAndServe(ctx, cfg.Analyzer.Listen)
}

// newVisionClient builds the upstream model client for the configured backend.
func newVisionClient(v config.VisionConfig) (client.VisionClient, error) {
	var (
		vc  client.VisionClient
		err error
	)
	switch v.Backend {
	case config.BackendGemini:
		vc, err = gemini.NewClient(v.BaseURL, v.APIKey)
	case config.BackendOpenAI:
		vc, err = openai.NewClient(v.BaseURL, v.APIKey)
	case config.BackendOllama:
		vc, err = ollama.NewClient(v.BaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, v.Backend)
	}
	if err != nil {
		return nil, err
	}
	return vc, nil
}
