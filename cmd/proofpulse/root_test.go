package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/proofpulse/internal/config"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "proofpulse" {
			t.Errorf("expected use 'proofpulse', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		flag := cmd.PersistentFlags().Lookup("verbose")
		if flag == nil {
			t.Fatal("expected verbose flag")
		}
		if flag.Shorthand != "v" || flag.DefValue != "false" {
			t.Errorf("verbose flag = -%s default %s", flag.Shorthand, flag.DefValue)
		}
		if cmd.PersistentFlags().Lookup("config") == nil {
			t.Error("expected config flag")
		}
		if cmd.PersistentFlags().Lookup("json-log") == nil {
			t.Error("expected json-log flag")
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"serve": false, "relay": false, "scan": false, "init": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		}
	})
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "proofpulse version ") {
		t.Errorf("unexpected output %q", out.String())
	}
	if !strings.Contains(out.String(), "commit:") {
		t.Errorf("missing commit line in %q", out.String())
	}
}

func TestInitCmd(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "proofpulse.yaml")
	run := func(args ...string) error {
		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"init", "-o", path}, args...))
		return cmd.Execute()
	}

	if err := run(); err != nil {
		t.Fatalf("first init: %v", err)
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Analyzer.Listen != config.DefaultListen {
		t.Errorf("listen = %q", cfg.Analyzer.Listen)
	}

	if err := run(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected exists error, got %v", err)
	}
	if err := run("-f"); err != nil {
		t.Errorf("forced init: %v", err)
	}
}

func TestNewVisionClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vision config.VisionConfig
		name   string
	}{
		{config.VisionConfig{Backend: config.BackendGemini, APIKey: "k"}, "gemini"},
		{config.VisionConfig{Backend: config.BackendOpenAI, APIKey: "k"}, "openai"},
		{config.VisionConfig{Backend: config.BackendOllama}, "ollama"},
	}
	for _, tt := range tests {
		vc, err := newVisionClient(tt.vision)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if vc.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", vc.Name(), tt.name)
		}
	}

	if _, err := newVisionClient(config.VisionConfig{Backend: "claude"}); !errors.Is(err, config.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestServeRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PROOFPULSE_BACKEND", "")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Default().SaveToFile(cfgPath); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"serve", "--config", cfgPath})
	err := cmd.Execute()
	if !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error does not name the variable: %v", err)
	}
}
