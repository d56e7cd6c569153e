// Package verdict turns untrusted model output into a well-formed Verdict.
//
// Parsing never fails from the caller's point of view: text that cannot be
// read as a JSON object is replaced with a conservative fallback, and every
// field of a parsed object is coerced with a total function before the
// canonical types.Verdict is built.
package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/menta2k/proofpulse/pkg/types"
)

const (
	// DefaultScore is used when the model omits the score or it is not numeric.
	DefaultScore = 50

	// NoSummary replaces a missing summary.
	NoSummary = "No summary provided."

	// NonJSONReason is the single reason attached to the fallback verdict.
	NonJSONReason = "Model returned non-JSON output. Treating as suspicious."
)

// FallbackActions are the generic safe-behavior recommendations attached to
// the fallback verdict.
var FallbackActions = []string{
	"Close the page if it requests urgent action.",
	"Verify via official website/bookmark, not links.",
	"Do not call numbers shown on the page.",
}

// decoder keeps numbers as text so out-of-range values survive decoding
// and are clamped later instead of failing the whole object.
var decoder = sonic.Config{UseNumber: true}.Froze()

// Raw is the untrusted intermediate form of a model reply.
type Raw map[string]any

// Parse extracts a Raw object from model text. ok is false when the text
// holds no usable JSON object.
func Parse(text string) (raw Raw, ok bool) {
	clean := StripFences(text)
	if clean == "" {
		return nil, false
	}

	var obj map[string]any
	if err := decoder.UnmarshalFromString(clean, &obj); err == nil && obj != nil {
		return obj, true
	}

	// Retry on the outermost {...}, with trailing commas removed.
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := trailingComma.ReplaceAllString(clean[start:end+1], "$1")
	obj = nil
	if err := decoder.UnmarshalFromString(candidate, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Fallback returns the raw form of the conservative default verdict.
func Fallback() Raw {
	actions := make([]any, len(FallbackActions))
	for i, a := range FallbackActions {
		actions[i] = a
	}
	return Raw{
		"score":               float64(DefaultScore),
		"label":               types.LabelSuspicious,
		"reasons":             []any{NonJSONReason},
		"recommended_actions": actions,
	}
}

// FromText parses model text and normalizes it. fellBack reports whether the
// fallback verdict was substituted.
func FromText(text string) (v types.Verdict, fellBack bool) {
	raw, ok := Parse(text)
	if !ok {
		return Normalize(Fallback()), true
	}
	return Normalize(raw), false
}

// Normalize applies the verdict invariants to an untrusted object.
func Normalize(raw Raw) types.Verdict {
	score := CoerceScore(raw["score"])

	label := coerceString(raw["label"])
	if label == "" {
		label = LabelForScore(score)
	}

	summary := coerceString(raw["summary"])
	if summary == "" {
		summary = NoSummary
	}

	return types.Verdict{
		Score:              score,
		Label:              label,
		Summary:            summary,
		Reasons:            CoerceList(raw["reasons"], types.MaxListItems),
		RecommendedActions: CoerceList(raw["recommended_actions"], types.MaxListItems),
	}
}

// LabelForScore buckets a score when the model did not supply a label.
func LabelForScore(score int) string {
	switch {
	case score >= 80:
		return types.LabelLikelyScam
	case score >= 50:
		return types.LabelSuspicious
	default:
		return types.LabelLikelySafe
	}
}

// CoerceScore converts any JSON value to an integer score in [0,100].
func CoerceScore(v any) int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return DefaultScore
	}
	return int(math.Round(clamp(f, 0, 100)))
}

// CoerceList converts any JSON value to at most max non-empty strings.
// A bare string becomes a one-element list; anything else that is not an
// array becomes an empty list.
func CoerceList(v any, max int) []string {
	out := make([]string, 0, max)
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			if len(out) == max {
				break
			}
			if s := coerceItem(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range items {
			if len(out) == max {
				break
			}
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(items); s != "" && max > 0 {
			out = append(out, s)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		return parseFloat(n.String())
	case string:
		return parseFloat(n)
	default:
		return 0, false
	}
}

// parseFloat accepts overflowing values as ±Inf, which clamp to the range ends.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}

func coerceItem(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64, bool:
		return fmt.Sprint(s)
	default:
		b, err := sonic.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
