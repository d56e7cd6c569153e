package config

import "errors"

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrMissingAPIKey is returned when a hosted backend has no credential.
	ErrMissingAPIKey = errors.New("missing API key")

	ErrUnknownBackend     = errors.New("unknown vision backend: must be gemini, openai or ollama")
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")
	ErrInvalidAnalyzerURL = errors.New("invalid analyzer URL: must be an absolute http(s) URL")
	ErrInvalidFormat      = errors.New("invalid output format: must be text, markdown or json")
	ErrNoListenAddress    = errors.New("no listen address configured")
)
