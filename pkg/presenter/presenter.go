// Package presenter renders verdicts for people: it buckets them into a
// visual theme and writes plain-text, Markdown or JSON reports.
package presenter

import (
	"io"

	"github.com/menta2k/proofpulse/pkg/types"
)

// Disclaimer accompanies every rendered verdict.
const Disclaimer = "This assessment is provided for recommendation and educational purposes only. " +
	"It does not constitute legal proof, legal advice, or a definitive determination of fraud."

// DefaultSummary is shown when a verdict carries no summary.
const DefaultSummary = "Analysis complete."

// Theme is the visual bucket of a verdict.
type Theme string

const (
	ThemeSafe       Theme = "safe"
	ThemeSuspicious Theme = "suspicious"
	ThemeScam       Theme = "scam"
)

// ThemeFor buckets a verdict. Both label families (model rubric and
// score-derived) are recognized.
func ThemeFor(v types.Verdict) Theme {
	switch {
	case v.Score >= 80 || v.Label == types.LabelDangerous || v.Label == types.LabelLikelyScam:
		return ThemeScam
	case v.Score < 50 && (v.Label == types.LabelSafe || v.Label == types.LabelLikelySafe):
		return ThemeSafe
	default:
		return ThemeSuspicious
	}
}

// Report is a verdict together with where it came from.
type Report struct {
	PageURL string        `json:"page_url,omitempty"`
	Theme   Theme         `json:"theme"`
	Verdict types.Verdict `json:"verdict"`
}

// NewReport builds a report, deriving its theme.
func NewReport(pageURL string, v types.Verdict) Report {
	return Report{PageURL: pageURL, Theme: ThemeFor(v), Verdict: v}
}

// Writer renders a report to its destination and returns the bytes written.
type Writer interface {
	Write(r Report) (int, error)
}

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// NewWriter returns the writer for format, defaulting to text.
func NewWriter(format Format, output io.Writer) Writer {
	switch format {
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	case FormatJSON:
		return NewJSONWriter(output)
	default:
		return NewTextWriter(output)
	}
}

func summaryOf(v types.Verdict) string {
	if v.Summary == "" {
		return DefaultSummary
	}
	return v.Summary
}
