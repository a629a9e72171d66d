package model

import (
	"bytes"
	"encoding/json"
)

// JobType names one of the three analysis categories tracked during a scan.
type JobType string

const (
	JobOnPage    JobType = "on-page"
	JobContent   JobType = "content"
	JobTechnical JobType = "technical"
)

// JobTypes lists the categories in the order they are reported.
var JobTypes = []JobType{JobOnPage, JobContent, JobTechnical}

type JobState string

const (
	JobWaiting    JobState = "waiting"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// JobStatus is the derived, per-category state of a running analysis.
type JobStatus struct {
	Type     JobType  `json:"type"`
	Status   JobState `json:"status"`
	Progress int      `json:"progress"`
	Error    string   `json:"error,omitempty"`
}

type ProgressStatus string

const (
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
)

// ProgressData is the normalized progress view the dashboard consumes.
// Status is ProgressCompleted exactly when IsReady is true.
type ProgressData struct {
	UserID          string           `json:"userId"`
	URL             string           `json:"url,omitempty"`
	SessionID       string           `json:"sessionId,omitempty"`
	Status          ProgressStatus   `json:"status"`
	OverallProgress int              `json:"overallProgress"`
	Jobs            []JobStatus      `json:"jobs"`
	IsReady         bool             `json:"isReady"`
	Analysis        *PartialAnalysis `json:"analysis,omitempty"`
}

// PartialAnalysis echoes whatever category payloads the backend has
// produced so far. Each field is kept raw; presence is all that matters
// while a scan is running.
type PartialAnalysis struct {
	OnPage    json.RawMessage `json:"on_page,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Technical json.RawMessage `json:"technical,omitempty"`
}

// Has reports whether the payload for t is present and non-empty.
func (p *PartialAnalysis) Has(t JobType) bool {
	if p == nil {
		return false
	}
	switch t {
	case JobOnPage:
		return present(p.OnPage)
	case JobContent:
		return present(p.Content)
	case JobTechnical:
		return present(p.Technical)
	}
	return false
}

var emptyPayloads = [][]byte{
	[]byte("null"), []byte(`""`), []byte("false"), []byte("0"), []byte("{}"), []byte("[]"),
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	for _, e := range emptyPayloads {
		if bytes.Equal(trimmed, e) {
			return false
		}
	}
	return true
}

// ScoreBreakdown holds per-category averages plus the flat overall mean.
type ScoreBreakdown struct {
	Technical int `json:"technical"`
	Content   int `json:"content"`
	OnPage    int `json:"onPage"`
	Overall   int `json:"overall"`
}

// AnalysisStats counts records per score tier. Good+Moderate+Poor == Total.
type AnalysisStats struct {
	Total    int `json:"total"`
	Good     int `json:"good"`
	Moderate int `json:"moderate"`
	Poor     int `json:"poor"`
}
