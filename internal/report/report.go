// Package report renders an analysis record as a shareable document and
// optionally archives it in S3-compatible storage.
package report

import (
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/score"
)

// Format selects a Writer.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts "md", "markdown" and "json". Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", ErrUnknownFormat
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// Writer outputs a report to its destination.
type Writer interface {
	Write(r *Report) (int, error)
}

// NewWriter returns the writer for f.
func NewWriter(f Format, output io.Writer) (Writer, error) {
	switch f {
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	}
	return nil, ErrUnknownFormat
}

// CategorySummary is one of the three analysis categories in a report.
type CategorySummary struct {
	Type   model.JobType  `json:"type"`
	Label  string         `json:"label"`
	Score  int            `json:"score"`
	Tier   score.Category `json:"tier"`
	Issues []string       `json:"issues,omitempty"`
}

// Report is the document rendered for one analysis record.
type Report struct {
	Record      *model.AnalysisRecord `json:"record"`
	Breakdown   model.ScoreBreakdown  `json:"breakdown"`
	Status      score.Status          `json:"status"`
	Categories  []CategorySummary     `json:"categories"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

var titleCaser = cases.Title(language.English)

// Label returns the display name of a job type, e.g. "On Page".
func Label(t model.JobType) string {
	return titleCaser.String(strings.ReplaceAll(string(t), "-", " "))
}

// Build assembles the report for rec.
func Build(rec *model.AnalysisRecord, now time.Time) *Report {
	b := score.GetScoreBreakdown(rec)
	r := &Report{
		Record:      rec,
		Breakdown:   b,
		Status:      score.GetScoreStatus(float64(b.Overall)),
		GeneratedAt: now.UTC(),
	}
	scores := map[model.JobType]int{
		model.JobOnPage:    b.OnPage,
		model.JobContent:   b.Content,
		model.JobTechnical: b.Technical,
	}
	for _, t := range model.JobTypes {
		r.Categories = append(r.Categories, CategorySummary{
			Type:   t,
			Label:  Label(t),
			Score:  scores[t],
			Tier:   score.GetScoreCategory(float64(scores[t])),
			Issues: issuesFor(rec, t),
		})
	}
	return r
}

func issuesFor(rec *model.AnalysisRecord, t model.JobType) []string {
	if rec == nil {
		return nil
	}
	var out []string
	switch t {
	case model.JobOnPage:
		op := rec.OnPage
		if op == nil {
			return nil
		}
		if op.Title != nil {
			out = append(out, op.Title.Issues...)
		}
		if op.MetaDescription != nil {
			out = append(out, op.MetaDescription.Issues...)
		}
		if op.Headings != nil {
			out = append(out, op.Headings.Issues...)
		}
		if op.Images != nil {
			out = append(out, op.Images.Issues...)
		}
		if op.Links != nil {
			out = append(out, op.Links.Issues...)
		}
		if op.Favicon != nil {
			out = append(out, op.Favicon.Issues...)
		}
		if op.OpenGraph != nil {
			out = append(out, op.OpenGraph.Issues...)
		}
		if op.TwitterCard != nil {
			out = append(out, op.TwitterCard.Issues...)
		}
	case model.JobContent:
		c := rec.Content
		if c == nil {
			return nil
		}
		out = append(out, c.Issues...)
		if c.DuplicateContent != nil {
			out = append(out, c.DuplicateContent.Issues...)
		}
	case model.JobTechnical:
		tech := rec.Technical
		if tech == nil {
			return nil
		}
		out = append(out, tech.Issues...)
		if tech.Mobile != nil {
			out = append(out, tech.Mobile.Issues...)
		}
		if tech.Robots != nil {
			out = append(out, tech.Robots.Issues...)
		}
		if tech.Sitemap != nil {
			out = append(out, tech.Sitemap.Issues...)
		}
		if tech.Structure != nil {
			out = append(out, tech.Structure.Errors...)
		}
		if tech.PageSpeed != nil {
			out = append(out, tech.PageSpeed.Recommendations...)
		}
	}
	return out
}
