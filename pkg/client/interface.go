package client

import (
	"context"
)

// Request is a single-turn multimodal prompt.
type Request struct {
	System   string // fixed instruction (rubric and output schema)
	Prompt   string // per-request instruction
	Image    []byte // raw image bytes
	MimeType string
}

// VisionClient sends a multimodal prompt to a model backend and returns the
// concatenated text of its reply. Transport failures and non-success
// responses are errors; an empty or unusable reply is not.
type VisionClient interface {
	Name() string
	AnalyzeImage(ctx context.Context, model string, req Request) (string, error)
}
