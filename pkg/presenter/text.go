package presenter

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter renders a terminal-friendly report.
type TextWriter struct {
	output io.Writer
}

func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{output: output}
}

var themeBadges = map[Theme]string{
	ThemeSafe:       "[OK]",
	ThemeSuspicious: "[!]",
	ThemeScam:       "[!!!]",
}

func (w *TextWriter) Write(r Report) (int, error) {
	var sb strings.Builder
	v := r.Verdict

	sb.WriteString("ProofPulse\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	if r.PageURL != "" {
		fmt.Fprintf(&sb, "Page:    %s\n", r.PageURL)
	}
	fmt.Fprintf(&sb, "Verdict: %s %s\n", themeBadges[r.Theme], v.Label)
	fmt.Fprintf(&sb, "Score:   %d/100\n\n", v.Score)
	sb.WriteString(summaryOf(v) + "\n")

	writeList(&sb, "Risk Factors", v.Reasons)
	writeList(&sb, "Recommended Actions", v.RecommendedActions)

	sb.WriteString("\n" + strings.Repeat("-", 60) + "\n")
	sb.WriteString(Disclaimer + "\n")

	return io.WriteString(w.output, sb.String())
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "  - %s\n", item)
	}
}
