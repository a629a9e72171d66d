// Package score turns analysis records into category scores, an overall
// score and a three-tier status. All functions are pure; absent metrics are
// skipped rather than treated as zero.
package score

import (
	"math"

	"github.com/scanzie/smeal/internal/model"
)

// Category is a score tier.
type Category string

const (
	Good     Category = "good"
	Moderate Category = "moderate"
	Poor     Category = "poor"
)

// Tier lower bounds (inclusive).
const (
	GoodThreshold     = 70
	ModerateThreshold = 40
)

// Status describes the tier of a score along with its display classes.
type Status struct {
	Category   Category `json:"category"`
	Percentage int      `json:"percentage"`
	ColorClass string   `json:"colorClass"`
	BgClass    string   `json:"bgClass"`
}

// GetScoreCategory returns the tier of s.
func GetScoreCategory(s float64) Category {
	switch {
	case s >= GoodThreshold:
		return Good
	case s >= ModerateThreshold:
		return Moderate
	default:
		return Poor
	}
}

// GetScoreStatus classifies s and attaches the tier's display classes.
func GetScoreStatus(s float64) Status {
	st := Status{Category: GetScoreCategory(s), Percentage: round(s)}
	switch st.Category {
	case Good:
		st.ColorClass, st.BgClass = "text-green-600", "bg-green-100 border-green-200"
	case Moderate:
		st.ColorClass, st.BgClass = "text-yellow-600", "bg-yellow-100 border-yellow-200"
	default:
		st.ColorClass, st.BgClass = "text-red-600", "bg-red-100 border-red-200"
	}
	return st
}

// CalculateOverallScore returns the rounded flat mean of every score present
// in r, or 0 when there is none. Categories with more sub-metrics weigh more.
func CalculateOverallScore(r *model.AnalysisRecord) int {
	if r == nil {
		return 0
	}
	var all []float64
	all = append(all, onPageScores(r.OnPage)...)
	all = append(all, contentScores(r.Content)...)
	all = append(all, technicalScores(r.Technical)...)
	return mean(all)
}

// GetAnalysisScoreStatus is GetScoreStatus of the record's overall score.
func GetAnalysisScoreStatus(r *model.AnalysisRecord) Status {
	return GetScoreStatus(float64(CalculateOverallScore(r)))
}

// GetScoreBreakdown averages each category independently. Overall is the
// flat mean from CalculateOverallScore, not the mean of the three averages.
func GetScoreBreakdown(r *model.AnalysisRecord) model.ScoreBreakdown {
	if r == nil {
		return model.ScoreBreakdown{}
	}
	return model.ScoreBreakdown{
		Technical: mean(technicalScores(r.Technical)),
		Content:   mean(contentScores(r.Content)),
		OnPage:    mean(onPageScores(r.OnPage)),
		Overall:   CalculateOverallScore(r),
	}
}

// CalculateAnalysisStats counts records per tier of their overall score.
func CalculateAnalysisStats(records []*model.AnalysisRecord) model.AnalysisStats {
	stats := model.AnalysisStats{Total: len(records)}
	for _, r := range records {
		switch GetScoreCategory(float64(CalculateOverallScore(r))) {
		case Good:
			stats.Good++
		case Moderate:
			stats.Moderate++
		default:
			stats.Poor++
		}
	}
	return stats
}

func onPageScores(op *model.OnPageAnalysis) []float64 {
	if op == nil {
		return nil
	}
	var out []float64
	if op.Links != nil {
		out = appendScore(out, op.Links.Score)
	}
	if op.Title != nil {
		out = appendScore(out, op.Title.Score)
	}
	if op.Images != nil {
		out = appendScore(out, op.Images.Score)
	}
	if op.Headings != nil {
		out = appendScore(out, op.Headings.Score)
	}
	if op.MetaDescription != nil {
		out = appendScore(out, op.MetaDescription.Score)
	}
	return out
}

func contentScores(c *model.ContentAnalysis) []float64 {
	if c == nil {
		return nil
	}
	var out []float64
	out = appendScore(out, c.Score)
	if c.ContentQuality != nil {
		out = appendScore(out, c.ContentQuality.Score)
	}
	out = appendScore(out, c.ReadabilityScore)
	return out
}

func technicalScores(t *model.TechnicalAnalysis) []float64 {
	if t == nil {
		return nil
	}
	var out []float64
	if t.SSL != nil {
		out = appendScore(out, t.SSL.Score)
	}
	out = appendScore(out, t.Score)
	if t.Mobile != nil {
		out = appendScore(out, t.Mobile.Score)
	}
	if t.PageSpeed != nil {
		out = appendScore(out, t.PageSpeed.Score)
	}
	if t.Structure != nil {
		out = appendScore(out, t.Structure.Score)
	}
	return out
}

func appendScore(dst []float64, s *float64) []float64 {
	if s == nil {
		return dst
	}
	return append(dst, *s)
}

func mean(xs []float64) int {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return round(sum / float64(len(xs)))
}

// round is half-up, matching the dashboard's historical values.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
