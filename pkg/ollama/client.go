package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/proofpulse/pkg/client"
)

// DefaultURL is the local Ollama server.
const DefaultURL = "http://localhost:11434"

// DefaultModel is a small local vision model.
const DefaultModel = "openbmb/minicpm-v4.5"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

func (c *Client) Name() string { return "ollama" }

// AnalyzeImage sends the system and user prompt with the image attached to
// the user turn.
func (c *Client) AnalyzeImage(ctx context.Context, model string, req client.Request) (string, error) {
	// Local models on CPU are slow; bound the call only if the caller did not.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{
		Role:    "user",
		Content: req.Prompt,
		Images:  []api.ImageData{api.ImageData(req.Image)},
	})

	if model == "" {
		model = DefaultModel
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &streamFalse,
		Format:   []byte(`"json"`),
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return content.String(), nil
}
