package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/proofpulse/pkg/types"
)

// DefaultAnalyzerURL is where `proofpulse serve` listens by default.
const DefaultAnalyzerURL = "http://127.0.0.1:8787"

// AnalyzerClient posts crops to the analyzer service.
type AnalyzerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAnalyzerClient creates a client for the analyzer at baseURL.
func NewAnalyzerClient(baseURL string) (*AnalyzerClient, error) {
	if baseURL == "" {
		baseURL = DefaultAnalyzerURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid analyzer URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid analyzer URL %q: scheme must be http or https", baseURL)
	}

	return &AnalyzerClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// Model latency dominates; the analyzer bounds the upstream call itself.
			Timeout: 3 * time.Minute,
		},
	}, nil
}

// BaseURL returns the analyzer root URL.
func (c *AnalyzerClient) BaseURL() string { return c.baseURL }

// Scan submits a crop and returns the analyzer's verdict.
func (c *AnalyzerClient) Scan(ctx context.Context, req types.ScanRequest) (types.Verdict, error) {
	body, err := c.sendRequest(ctx, http.MethodPost, "/scan", req)
	if err != nil {
		return types.Verdict{}, err
	}

	var v types.Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return types.Verdict{}, types.NewScanError(types.ClassTransport, "Analyzer returned an unreadable response", err)
	}
	return v, nil
}

// Health queries GET /health.
func (c *AnalyzerClient) Health(ctx context.Context) (types.HealthStatus, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return types.HealthStatus{}, err
	}
	var h types.HealthStatus
	if err := json.Unmarshal(body, &h); err != nil {
		return types.HealthStatus{}, fmt.Errorf("failed to parse health response: %w", err)
	}
	return h, nil
}

func (c *AnalyzerClient) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewScanError(types.ClassTransport,
			fmt.Sprintf("Analyzer service not reachable at %s. Is `proofpulse serve` running?", c.baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewScanError(types.ClassTransport, "failed to read analyzer response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewScanError(types.ClassTransport,
			fmt.Sprintf("Analyzer returned HTTP %d: %s", resp.StatusCode, errorText(body)), nil)
	}
	return body, nil
}

// errorText pulls the error field out of a failure body, falling back to
// the raw text.
func errorText(body []byte) string {
	var eb types.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
