package presenter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/proofpulse/pkg/types"
)

func TestThemeFor(t *testing.T) {
	tests := []struct {
		score int
		label string
		want  Theme
	}{
		{87, types.LabelDangerous, ThemeScam},
		{80, types.LabelSuspicious, ThemeScam},
		{30, types.LabelLikelyScam, ThemeScam},
		{40, types.LabelDangerous, ThemeScam},
		{10, types.LabelSafe, ThemeSafe},
		{49, types.LabelLikelySafe, ThemeSafe},
		{50, types.LabelLikelySafe, ThemeSuspicious},
		{10, types.LabelSuspicious, ThemeSuspicious},
		{10, "Unknown", ThemeSuspicious},
		{79, types.LabelSuspicious, ThemeSuspicious},
	}

	for _, tt := range tests {
		got := ThemeFor(types.Verdict{Score: tt.score, Label: tt.label})
		assert.Equal(t, tt.want, got, "score=%d label=%q", tt.score, tt.label)
	}
}

var sample = types.Verdict{
	Score:              87,
	Label:              types.LabelDangerous,
	Summary:            "Fake virus alert asking the user to call support.",
	Reasons:            []string{"Violation: Unauthorized use of Microsoft branding", "Simulated system lock"},
	RecommendedActions: []string{"Do not call the number", "Close the tab"},
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewTextWriter(&buf).Write(NewReport("https://evil.example", sample))
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), n)

	out := buf.String()
	assert.Contains(t, out, "Page:    https://evil.example")
	assert.Contains(t, out, "Verdict: [!!!] Dangerous")
	assert.Contains(t, out, "Score:   87/100")
	assert.Contains(t, out, "Risk Factors:\n  - Violation: Unauthorized use of Microsoft branding")
	assert.Contains(t, out, "Recommended Actions:\n  - Do not call the number")
	assert.True(t, strings.HasSuffix(out, Disclaimer+"\n"))
}

func TestTextWriterEmptyVerdict(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewTextWriter(&buf).Write(NewReport("", types.Verdict{Score: 50, Label: types.LabelSuspicious}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, DefaultSummary)
	assert.NotContains(t, out, "Page:")
	assert.NotContains(t, out, "Risk Factors")
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewMarkdownWriter(&buf).Write(NewReport("https://evil.example", sample))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "# ProofPulse Verdict")
	assert.Contains(t, out, "| Score")
	assert.Contains(t, out, "87/100")
	assert.Contains(t, out, "[!CAUTION]")
	assert.Contains(t, out, "## Risk Factors")
	assert.Contains(t, out, "- Do not call the number")
	assert.Contains(t, out, Disclaimer)
}

func TestMarkdownWriterSafeUsesTip(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewMarkdownWriter(&buf).Write(NewReport("", types.Verdict{Score: 5, Label: types.LabelSafe, Summary: "Ordinary login form."}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[!TIP]")
	assert.NotContains(t, buf.String(), "## Risk Factors")
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewJSONWriter(&buf).Write(NewReport("https://evil.example", sample))
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, ThemeScam, back.Theme)
	assert.Equal(t, sample, back.Verdict)
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &MarkdownWriter{}, NewWriter(FormatMarkdown, &buf))
	assert.IsType(t, &JSONWriter{}, NewWriter(FormatJSON, &buf))
	assert.IsType(t, &TextWriter{}, NewWriter("", &buf))
}
