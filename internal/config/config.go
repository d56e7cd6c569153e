package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG config directory.
const AppName = "proofpulse"

// Defaults.
const (
	DefaultListen       = "127.0.0.1:8787"
	DefaultAnalyzerURL  = "http://127.0.0.1:8787"
	DefaultBridgeListen = "127.0.0.1:8788"
	DefaultDevToolsURL  = "http://127.0.0.1:9222"
	DefaultMaxBodyBytes = 15 << 20
	DefaultBackend      = BackendGemini
)

// Vision backends.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Config holds the application configuration
type Config struct {
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Vision   VisionConfig   `yaml:"vision"`
	Relay    RelayConfig    `yaml:"relay"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// AnalyzerConfig configures the HTTP analyzer service.
type AnalyzerConfig struct {
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// VisionConfig selects the upstream model. APIKey is normally supplied
// through the environment rather than the file.
type VisionConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// RelayConfig configures the relay process.
type RelayConfig struct {
	AnalyzerURL string `yaml:"analyzer_url"`
	Listen      string `yaml:"listen"`
	DevToolsURL string `yaml:"devtools_url"`
}

// OutputConfig configures CLI report output.
type OutputConfig struct {
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			Listen:       DefaultListen,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Vision: VisionConfig{
			Backend: DefaultBackend,
		},
		Relay: RelayConfig{
			AnalyzerURL: DefaultAnalyzerURL,
			Listen:      DefaultBridgeListen,
			DevToolsURL: DefaultDevToolsURL,
		},
		Output: OutputConfig{
			Format: "text",
			Dir:    "./output",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // user-selected config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load resolves the effective configuration: defaults, then the YAML file
// (path, or the XDG default when path is empty and the file exists), then
// .env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch {
	case path != "":
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		if loaded, err := LoadFromFile(GetConfigPath()); err == nil {
			cfg = loaded
		} else if !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
	}

	// A missing .env is normal; the process environment still applies.
	_ = godotenv.Load()

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PROOFPULSE_BACKEND"); v != "" {
		c.Vision.Backend = strings.ToLower(v)
	}
	if v := getenv("PROOFPULSE_MODEL"); v != "" {
		c.Vision.Model = v
	}
	if v := getenv("PROOFPULSE_LISTEN"); v != "" {
		c.Analyzer.Listen = v
	}
	if v := getenv("PROOFPULSE_ANALYZER_URL"); v != "" {
		c.Relay.AnalyzerURL = v
	}
	if v := getenv("PROOFPULSE_DEVTOOLS_URL"); v != "" {
		c.Relay.DevToolsURL = v
	}

	c.applyBackendEnv(getenv)
}

// UseBackend switches the vision backend and re-reads its credential and
// endpoint from getenv, dropping those of the previous backend.
func (c *Config) UseBackend(backend string, getenv func(string) string) {
	backend = strings.ToLower(backend)
	if backend == c.Vision.Backend {
		return
	}
	c.Vision.Backend = backend
	c.Vision.APIKey = ""
	c.Vision.BaseURL = ""
	c.applyBackendEnv(getenv)
}

func (c *Config) applyBackendEnv(getenv func(string) string) {
	switch c.Vision.Backend {
	case BackendGemini:
		if v := firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY")); v != "" {
			c.Vision.APIKey = v
		}
	case BackendOpenAI:
		if v := getenv("OPENAI_API_KEY"); v != "" {
			c.Vision.APIKey = v
		}
		if v := getenv("OPENAI_BASE_URL"); v != "" {
			c.Vision.BaseURL = v
		}
	case BackendOllama:
		if v := getenv("OLLAMA_HOST"); v != "" {
			c.Vision.BaseURL = v
		}
	}
}

// SaveToFile saves configuration to a YAML file. The API key is never
// written.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *c
	out.Vision.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	switch c.Vision.Backend {
	case BackendGemini, BackendOpenAI, BackendOllama:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Vision.Backend)
	}

	if c.Analyzer.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodySize
	}

	if c.Relay.AnalyzerURL != "" {
		u, err := url.Parse(c.Relay.AnalyzerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidAnalyzerURL, c.Relay.AnalyzerURL)
		}
	}

	switch c.Output.Format {
	case "", "text", "markdown", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
	}

	return nil
}

// ValidateAnalyzer additionally checks what the analyzer service needs to
// start: a credential for hosted backends.
func (c *Config) ValidateAnalyzer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Analyzer.Listen == "" {
		return ErrNoListenAddress
	}
	if c.Vision.Backend != BackendOllama && c.Vision.APIKey == "" {
		return fmt.Errorf("%w: set %s", ErrMissingAPIKey, c.KeyEnvHint())
	}
	return nil
}

// KeyEnvHint names the environment variables holding the credential.
func (c *Config) KeyEnvHint() string {
	if c.Vision.Backend == BackendOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY or GOOGLE_API_KEY"
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
