package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/proofpulse/pkg/client"
)

// DefaultBaseURL is the Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is a fast vision-capable model.
const DefaultModel = "gemini-2.0-flash"

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Part is one element of a content turn; exactly one field is set.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateContentRequest is the body of models/{model}:generateContent.
type GenerateContentRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"system_instruction,omitempty"`
}

type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) AnalyzeImage(ctx context.Context, model string, req client.Request) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	body := GenerateContentRequest{
		Contents: []Content{
			{
				Role: "user",
				Parts: []Part{
					{Text: req.Prompt},
					{InlineData: &InlineData{
						MimeType: req.MimeType,
						Data:     base64.StdEncoding.EncodeToString(req.Image),
					}},
				},
			},
		},
	}
	if req.System != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: req.System}}}
	}

	endpoint := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	respBody, err := c.sendRequest(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	var resp GenerateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		// An undecodable 200 is model output we cannot use, not a failure.
		return "", nil
	}

	return ExtractText(resp), nil
}

// ExtractText joins the text parts of the first candidate with newlines.
func ExtractText(resp GenerateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var texts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
