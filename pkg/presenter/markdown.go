package presenter

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// MarkdownWriter renders a report as GitHub-flavored Markdown.
type MarkdownWriter struct {
	output io.Writer
}

func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

func (w *MarkdownWriter) Write(r Report) (int, error) {
	md := markdown.NewMarkdown(w.output)
	v := r.Verdict

	md.H1("ProofPulse Verdict")
	md.PlainText("")

	rows := [][]string{
		{"Verdict", v.Label},
		{"Score", strconv.Itoa(v.Score) + "/100"},
		{"Theme", string(r.Theme)},
	}
	if r.PageURL != "" {
		rows = append([][]string{{"Page", "`" + r.PageURL + "`"}}, rows...)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch r.Theme {
	case ThemeScam:
		md.Cautionf("%s", summaryOf(v))
	case ThemeSuspicious:
		md.Warningf("%s", summaryOf(v))
	default:
		md.Tip(summaryOf(v))
	}
	md.PlainText("")

	if len(v.Reasons) > 0 {
		md.H2("Risk Factors")
		md.PlainText("")
		md.BulletList(v.Reasons...)
		md.PlainText("")
	}
	if len(v.RecommendedActions) > 0 {
		md.H2("Recommended Actions")
		md.PlainText("")
		md.BulletList(v.RecommendedActions...)
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%s*", Disclaimer)

	return len(md.String()), md.Build()
}
