package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/pkg/client"
)

func TestAnalyzeImage(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":91}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/v1", "sk-test")
	require.NoError(t, err)

	text, err := c.AnalyzeImage(context.Background(), "vision-model", client.Request{
		System:   "rubric",
		Prompt:   "URL: https://example.com",
		Image:    []byte("png"),
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"score":91}`, text)

	assert.Equal(t, "vision-model", body["model"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	assert.Equal(t, "data:image/png;base64,cG5n", imagePart["image_url"].(map[string]any)["url"])
}

func TestAnalyzeImageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "sk-test")
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "", client.Request{})
	assert.Error(t, err)
}
