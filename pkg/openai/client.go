// Package openai talks to any OpenAI-compatible chat completions endpoint
// that accepts image_url parts, including Gemini's OpenAI compatibility
// layer.
package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/proofpulse/pkg/client"
	"github.com/menta2k/proofpulse/pkg/processing"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// Client wraps a go-openai client.
type Client struct {
	client *goopenai.Client
}

// NewClient creates a client for the given base URL; an empty URL targets
// api.openai.com.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &Client{client: goopenai.NewClientWithConfig(cfg)}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) AnalyzeImage(ctx context.Context, model string, req client.Request) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser,
		MultiContent: []goopenai.ChatMessagePart{
			{
				Type: goopenai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    processing.EncodeDataURL(req.MimeType, req.Image),
					Detail: goopenai.ImageURLDetailAuto,
				},
			},
		},
	})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	msg := resp.Choices[0].Message
	if msg.Content != "" {
		return msg.Content, nil
	}
	var texts []string
	for _, part := range msg.MultiContent {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}
