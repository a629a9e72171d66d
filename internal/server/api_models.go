package server

import (
	"time"

	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/score"
)

// AnalyzeRequest starts an analysis of URL.
type AnalyzeRequest struct {
	URL string `json:"url" example:"https://example.com"`
}

// InvalidateRequest drops cached reads. An empty URL drops every cached
// detail of the caller.
type InvalidateRequest struct {
	URL string `json:"url,omitempty" example:"https://example.com/"`
}

// UpdateProfileRequest renames the caller.
type UpdateProfileRequest struct {
	Name string `json:"name" example:"Ada Lovelace"`
}

// AnalysisView is a record decorated with its scores.
type AnalysisView struct {
	*model.AnalysisRecord
	Breakdown model.ScoreBreakdown `json:"breakdown"`
	Status    score.Status         `json:"status"`
}

func newAnalysisView(rec *model.AnalysisRecord) AnalysisView {
	b := score.GetScoreBreakdown(rec)
	return AnalysisView{
		AnalysisRecord: rec,
		Breakdown:      b,
		Status:         score.GetScoreStatus(float64(b.Overall)),
	}
}

// AnalysisPage is one page of the caller's analyses.
type AnalysisPage struct {
	Records []AnalysisView `json:"records"`
	Total   int            `json:"total" example:"42"`
	Limit   int            `json:"limit" example:"20"`
	Offset  int            `json:"offset" example:"0"`
}

// SessionResponse mirrors the dashboard's session route.
type SessionResponse struct {
	Success bool         `json:"success"`
	Session *SessionBody `json:"session"`
	Error   string       `json:"error,omitempty"`
}

type SessionBody struct {
	Token   string       `json:"token"`
	User    *model.User  `json:"user"`
	Session SessionInner `json:"session"`
}

type SessionInner struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ProfileResponse is the caller after an update.
type ProfileResponse struct {
	User     *model.User `json:"user"`
	Initials string      `json:"initials" example:"AL"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
