package poller

import (
	"testing"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/model"
)

func TestNotReadyProgress(t *testing.T) {
	pd := NotReadyProgress(testKey)
	if pd.Status != model.ProgressProcessing || pd.IsReady || pd.OverallProgress != 0 {
		t.Fatalf("progress = %+v", pd)
	}
	if len(pd.Jobs) != 3 {
		t.Fatalf("jobs = %+v", pd.Jobs)
	}
	for i, js := range pd.Jobs {
		if js.Type != model.JobTypes[i] || js.Status != model.JobWaiting || js.Progress != 0 {
			t.Errorf("job %d = %+v", i, js)
		}
	}
}

func TestFromResult_BackendIsAuthoritative(t *testing.T) {
	// Every category present but the backend says not complete.
	res := &backend.ResultPayload{Analysis: partial(true, true, true), Progress: 99.4}
	pd := FromResult(testKey, res)
	if pd.IsReady || pd.Status != model.ProgressProcessing || pd.OverallProgress != 99 {
		t.Fatalf("progress = %+v", pd)
	}

	// Complete with a missing category still counts as ready.
	res = &backend.ResultPayload{Analysis: partial(true, false, true), Progress: 100, IsComplete: true}
	pd = FromResult(testKey, res)
	if !pd.IsReady || pd.Status != model.ProgressCompleted {
		t.Fatalf("progress = %+v", pd)
	}
	if pd.Jobs[1].Status != model.JobProcessing || pd.Jobs[1].Progress != 0 {
		t.Errorf("content job = %+v", pd.Jobs[1])
	}
}

func TestFromResult_NilAnalysis(t *testing.T) {
	pd := FromResult(testKey, &backend.ResultPayload{Progress: -3})
	if pd.OverallProgress != 0 {
		t.Errorf("overall = %d", pd.OverallProgress)
	}
	for _, js := range pd.Jobs {
		if js.Status != model.JobProcessing {
			t.Errorf("job %s = %s", js.Type, js.Status)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage(&backend.StatusError{StatusCode: 503}); got != FailureMessage {
		t.Errorf("status error message = %q", got)
	}
	if got := errorMessage(nil); got != "" {
		t.Errorf("nil error message = %q", got)
	}
}
