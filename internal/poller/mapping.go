package poller

import (
	"errors"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/model"
)

// FailureMessage is shown for any backend answer other than success or
// "not created yet".
const FailureMessage = "Oops we were unable to perform your analysis 😢"

// NotReadyProgress is the snapshot used while the backend has no record for
// the key yet: processing, nothing started.
func NotReadyProgress(key Key) *model.ProgressData {
	jobs := make([]model.JobStatus, 0, len(model.JobTypes))
	for _, t := range model.JobTypes {
		jobs = append(jobs, model.JobStatus{Type: t, Status: model.JobWaiting})
	}
	return &model.ProgressData{
		UserID:    key.UserID,
		URL:       key.URL,
		SessionID: key.SessionID,
		Status:    model.ProgressProcessing,
		Jobs:      jobs,
	}
}

// FromResult maps a result payload. A category is completed exactly when
// its partial result is present; readiness and the overall percentage come
// from the backend as-is.
func FromResult(key Key, res *backend.ResultPayload) *model.ProgressData {
	jobs := make([]model.JobStatus, 0, len(model.JobTypes))
	for _, t := range model.JobTypes {
		js := model.JobStatus{Type: t, Status: model.JobProcessing}
		if res.Analysis.Has(t) {
			js.Status, js.Progress = model.JobCompleted, 100
		}
		jobs = append(jobs, js)
	}
	out := &model.ProgressData{
		UserID:          key.UserID,
		URL:             key.URL,
		SessionID:       key.SessionID,
		Status:          model.ProgressProcessing,
		OverallProgress: res.Percent(),
		Jobs:            jobs,
		IsReady:         res.IsComplete,
		Analysis:        res.Analysis,
	}
	if res.IsComplete {
		out.Status = model.ProgressCompleted
	}
	return out
}

// normalizeProgress fills in what the session-keyed endpoint may omit and
// keeps Status consistent with IsReady.
func normalizeProgress(key Key, p *model.ProgressData) *model.ProgressData {
	if p.UserID == "" {
		p.UserID = key.UserID
	}
	if p.URL == "" {
		p.URL = key.URL
	}
	if p.SessionID == "" {
		p.SessionID = key.SessionID
	}
	if p.OverallProgress < 0 {
		p.OverallProgress = 0
	} else if p.OverallProgress > 100 {
		p.OverallProgress = 100
	}
	p.Status = model.ProgressProcessing
	if p.IsReady {
		p.Status = model.ProgressCompleted
	}

	byType := make(map[model.JobType]model.JobStatus, len(p.Jobs))
	for _, j := range p.Jobs {
		byType[j.Type] = j
	}
	jobs := make([]model.JobStatus, 0, len(model.JobTypes))
	for _, t := range model.JobTypes {
		j, ok := byType[t]
		if !ok {
			j = model.JobStatus{Type: t, Status: model.JobWaiting}
		}
		jobs = append(jobs, j)
	}
	p.Jobs = jobs
	return p
}

// errorMessage is the text surfaced for a failed tick.
func errorMessage(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return FailureMessage
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
