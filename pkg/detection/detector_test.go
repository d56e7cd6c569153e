package detection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/pkg/client"
	"github.com/menta2k/proofpulse/pkg/types"
	"github.com/menta2k/proofpulse/pkg/verdict"
)

type stubClient struct {
	reply string
	err   error
	got   client.Request
	model string
	calls int
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) AnalyzeImage(_ context.Context, model string, req client.Request) (string, error) {
	s.calls++
	s.model = model
	s.got = req
	return s.reply, s.err
}

func TestAssessPassesPromptAndImage(t *testing.T) {
	stub := &stubClient{reply: `{"score": 87, "label": "Dangerous", "summary": "Scam.", "reasons": ["r"], "recommended_actions": ["a"]}`}
	d := NewDetector(stub, "m1", nil)

	v, err := d.Assess(context.Background(), "https://example.com", []byte{1, 2}, "image/png")
	require.NoError(t, err)

	assert.Equal(t, 87, v.Score)
	assert.Equal(t, types.LabelDangerous, v.Label)
	assert.Equal(t, "m1", stub.model)
	assert.Equal(t, SystemPrompt, stub.got.System)
	assert.True(t, strings.HasPrefix(stub.got.Prompt, "URL: https://example.com\n"))
	assert.Equal(t, []byte{1, 2}, stub.got.Image)
	assert.Equal(t, "image/png", stub.got.MimeType)
}

func TestAssessMalformedOutputIsNotAnError(t *testing.T) {
	stub := &stubClient{reply: "Sorry, I can't help with that."}
	d := NewDetector(stub, "", nil)

	v, err := d.Assess(context.Background(), "https://example.com", []byte{1}, "image/png")
	require.NoError(t, err)

	assert.Equal(t, 50, v.Score)
	assert.Equal(t, types.LabelSuspicious, v.Label)
	assert.Equal(t, []string{verdict.NonJSONReason}, v.Reasons)
}

func TestAssessUpstreamFailure(t *testing.T) {
	stub := &stubClient{err: errors.New("dial tcp: connection refused")}
	d := NewDetector(stub, "", nil)

	_, err := d.Assess(context.Background(), "https://example.com", []byte{1}, "image/png")
	require.Error(t, err)
	assert.Equal(t, types.ClassUpstream, types.ClassOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAssessIsStateless(t *testing.T) {
	stub := &stubClient{reply: `{"score": 10}`}
	d := NewDetector(stub, "", nil)

	for i := 0; i < 3; i++ {
		_, err := d.Assess(context.Background(), "https://example.com", []byte{1}, "image/png")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, stub.calls, "every assessment must reach the model")
}
