package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/scanzie/smeal/internal/score"
)

// MarkdownWriter outputs reports as GitHub-flavored markdown.
type MarkdownWriter struct {
	output io.Writer
}

func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the full report.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeScores(md, r)
	w.writeIssues(md, r)
	md.PlainText("")
	md.HorizontalRule()
	md.PlainText("_Generated by Scanzie on " + r.GeneratedAt.Format("2006-01-02 15:04 MST") + "_")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	title := "SEO Analysis"
	if r.Record != nil && r.Record.Title != "" {
		title += ": " + r.Record.Title
	}
	md.H1(title)
	md.PlainText("")

	rows := [][]string{
		{"Overall Score", strconv.Itoa(r.Breakdown.Overall) + "/100"},
		{"Status", tierText(r.Status.Category)},
	}
	if r.Record != nil {
		rows = append([][]string{
			{"URL", "`" + r.Record.URL + "`"},
			{"Analyzed", r.Record.UpdatedAt.Format("2006-01-02 15:04:05 MST")},
		}, rows...)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	switch r.Status.Category {
	case score.Good:
		md.Tip("This page is in good shape.")
	case score.Moderate:
		md.Importantf("This page scores %d. Address the issues below to reach 70.", r.Breakdown.Overall)
	default:
		md.Warningf("This page scores %d and needs attention.", r.Breakdown.Overall)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeScores(md *markdown.Markdown, r *Report) {
	md.H2("Scores")
	md.PlainText("")
	rows := make([][]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		rows = append(rows, []string{c.Label, strconv.Itoa(c.Score), tierText(c.Tier)})
	}
	md.Table(markdown.TableSet{Header: []string{"Category", "Score", "Tier"}, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeIssues(md *markdown.Markdown, r *Report) {
	md.H2("Issues")
	md.PlainText("")
	found := false
	for _, c := range r.Categories {
		if len(c.Issues) == 0 {
			continue
		}
		found = true
		md.H3(c.Label)
		md.PlainText("")
		md.BulletList(c.Issues...)
		md.PlainText("")
	}
	if !found {
		md.PlainText("No issues reported.")
	}
}

func tierText(tier score.Category) string {
	switch tier {
	case score.Good:
		return "🟢 Good"
	case score.Moderate:
		return "🟡 Moderate"
	default:
		return "🔴 Poor"
	}
}
