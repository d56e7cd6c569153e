package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/pkg/client"
)

func TestAnalyzeImageBuildsRequest(t *testing.T) {
	var got GenerateContentRequest
	var path, key string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"score\":"},{"text":"10}"}]}},{"content":{"parts":[{"text":"ignored"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "test-key")
	require.NoError(t, err)

	text, err := c.AnalyzeImage(context.Background(), "gemini-test", client.Request{
		System:   "rubric",
		Prompt:   "URL: https://example.com",
		Image:    []byte{1, 2, 3},
		MimeType: "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, "{\"score\":\n10}", text)
	assert.Equal(t, "/models/gemini-test:generateContent", path)
	assert.Equal(t, "test-key", key)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "URL: https://example.com", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), got.Contents[0].Parts[1].InlineData.Data)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "rubric", got.SystemInstruction.Parts[0].Text)
}

func TestAnalyzeImageUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k")
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "", client.Request{Image: []byte{1}, MimeType: "image/png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnalyzeImageNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k")
	require.NoError(t, err)

	text, err := c.AnalyzeImage(context.Background(), "", client.Request{})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.Error(t, err)
}
