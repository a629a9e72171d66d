package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/scanzie/smeal/internal/model"
)

// Chunk is one run of lines that differ between two reports.
type Chunk struct {
	Type    string `json:"type"` // "added" or "removed"
	Content string `json:"content"`
}

// Changes compares the previous and current version of one analysis.
type Changes struct {
	URL        string               `json:"url"`
	PreviousAt time.Time            `json:"previousAt"`
	CurrentAt  time.Time            `json:"currentAt"`
	Previous   model.ScoreBreakdown `json:"previous"`
	Current    model.ScoreBreakdown `json:"current"`
	// Delta is Current minus Previous per category.
	Delta  model.ScoreBreakdown `json:"delta"`
	Chunks []Chunk              `json:"chunks"`
}

// Compare diffs the markdown reports of prev and cur line by line. Both are
// rendered with cur's timestamp so only analysis content shows up.
func Compare(prev, cur *model.AnalysisRecord) (*Changes, error) {
	if prev == nil || cur == nil {
		return nil, fmt.Errorf("compare: both versions are required")
	}
	before := Build(prev, cur.UpdatedAt)
	after := Build(cur, cur.UpdatedAt)

	base, err := renderMarkdown(before)
	if err != nil {
		return nil, fmt.Errorf("render previous: %w", err)
	}
	head, err := renderMarkdown(after)
	if err != nil {
		return nil, fmt.Errorf("render current: %w", err)
	}

	return &Changes{
		URL:        cur.URL,
		PreviousAt: prev.UpdatedAt,
		CurrentAt:  cur.UpdatedAt,
		Previous:   before.Breakdown,
		Current:    after.Breakdown,
		Delta: model.ScoreBreakdown{
			Technical: after.Breakdown.Technical - before.Breakdown.Technical,
			Content:   after.Breakdown.Content - before.Breakdown.Content,
			OnPage:    after.Breakdown.OnPage - before.Breakdown.OnPage,
			Overall:   after.Breakdown.Overall - before.Breakdown.Overall,
		},
		Chunks: lineDiff(base, head),
	}, nil
}

func renderMarkdown(r *Report) (string, error) {
	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func lineDiff(base, head string) []Chunk {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(base, head)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	chunks := make([]Chunk, 0)
	for _, d := range diffs {
		var typ string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = "added"
		case diffmatchpatch.DiffDelete:
			typ = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Type: typ, Content: strings.TrimRight(d.Text, "\n")})
	}
	return chunks
}
