package backend

import (
	"errors"
	"fmt"
	"math"

	"github.com/scanzie/smeal/internal/model"
)

// ErrNotReady is returned when the result endpoint answers 400 or 404: the
// analysis record does not exist yet.
var ErrNotReady = errors.New("analysis result not ready")

// StatusError is any other non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// StartResponse is the job handle returned by POST /api/analyze.
type StartResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	URL       string `json:"url,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ResultPayload is the body of GET /api/result/{userId}/{url}.
type ResultPayload struct {
	Analysis   *model.PartialAnalysis `json:"analysis"`
	IsComplete bool                   `json:"isComplete"`
	Progress   float64                `json:"progress"`
}

// Percent returns Progress rounded and clamped to 0..100.
func (p *ResultPayload) Percent() int {
	return clampPercent(p.Progress)
}

func clampPercent(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Floor(v + 0.5))
}

// sessionResponse is the body of GET {BASE_URL}/api/session.
type sessionResponse struct {
	Success bool `json:"success"`
	Session *struct {
		Token string `json:"token"`
		User  *struct {
			ID string `json:"id"`
		} `json:"user"`
		Session *struct {
			Token  string `json:"token"`
			UserID string `json:"userId"`
		} `json:"session"`
	} `json:"session"`
}
