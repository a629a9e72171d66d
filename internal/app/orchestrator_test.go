package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/poller"
	"github.com/scanzie/smeal/internal/testutil"
	"github.com/scanzie/smeal/internal/utils"
)

// fakeBackend completes after `readyAfter` result calls.
type fakeBackend struct {
	readyAfter int32
	startErr   error

	starts  int32
	results int32
	creds   backend.Credentials
}

func (f *fakeBackend) StartAnalysis(_ context.Context, target string) (*backend.StartResponse, error) {
	atomic.AddInt32(&f.starts, 1)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &backend.StartResponse{SessionID: "sess-1", UserID: f.creds.UserID, URL: target}, nil
}

func (f *fakeBackend) FetchResult(_ context.Context, userID, target string) (*backend.ResultPayload, error) {
	n := atomic.AddInt32(&f.results, 1)
	if f.readyAfter <= 0 {
		return nil, backend.ErrNotReady
	}
	if n >= f.readyAfter {
		return &backend.ResultPayload{IsComplete: true, Progress: 100}, nil
	}
	return &backend.ResultPayload{Progress: float64(n) * 10}, nil
}

func (f *fakeBackend) FetchProgress(context.Context, string, string) (*model.ProgressData, error) {
	return nil, errors.New("unused")
}

type recordingInvalidator struct {
	mu      sync.Mutex
	lists   []string
	details []string
}

func (r *recordingInvalidator) InvalidateUserAnalysisCache(_ context.Context, sess *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, sess.UserID)
	return nil
}

func (r *recordingInvalidator) InvalidateAnalysisDetailsCache(_ context.Context, sess *auth.Session, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details = append(r.details, sess.UserID+"|"+url)
	return nil
}

func newTestOrchestrator(t *testing.T, be *fakeBackend, inv CacheInvalidator) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Poll = poller.Config{Interval: 5 * time.Millisecond, RedirectDelay: 10 * time.Millisecond}
	cfg.WatchRetention = time.Minute

	o := NewOrchestrator(cfg, func(c backend.Credentials) Backend {
		be.creds = c
		return be
	}, inv, &testutil.DummyLogger{})
	t.Cleanup(func() { o.Close() })
	return o
}

func testSession(uid string) *auth.Session {
	return &auth.Session{ID: "s-" + uid, Token: "tok-" + uid, UserID: uid, ExpiresAt: time.Now().Add(time.Hour)}
}

// drain collects events until the channel closes.
func drain(t *testing.T, ch <-chan WatchEvent) []WatchEvent {
	t.Helper()
	var out []WatchEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for watch to finish")
		}
	}
}

// ─── Construction ──────────────────────────────────────────────────────

func TestNewOrchestrator_DefaultConfig(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator(nil, nil, nil, nil)
	defer o.Close()
	if o.cfg == nil || o.cfg.Poll.Interval != 2*time.Second {
		t.Fatalf("expected default config, got %+v", o.cfg)
	}
}

// ─── StartAnalysis ─────────────────────────────────────────────────────

func TestStartAnalysis_Unauthenticated(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{readyAfter: 1}
	o := newTestOrchestrator(t, be, nil)

	if _, err := o.StartAnalysis(context.Background(), nil, "https://example.com"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if atomic.LoadInt32(&be.starts) != 0 {
		t.Fatal("backend called without a session")
	}
}

func TestStartAnalysis_InvalidURL(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{readyAfter: 1}
	o := newTestOrchestrator(t, be, nil)

	_, err := o.StartAnalysis(context.Background(), testSession("u1"), "ftp://example.com/file")
	if !errors.Is(err, utils.ErrInvalidTargetURL) {
		t.Fatalf("expected ErrInvalidTargetURL, got %v", err)
	}
	if atomic.LoadInt32(&be.starts) != 0 {
		t.Fatal("backend called for an invalid url")
	}
}

func TestStartAnalysis_BackendFailure(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{startErr: &backend.StatusError{StatusCode: 500}}
	o := newTestOrchestrator(t, be, nil)

	_, err := o.StartAnalysis(context.Background(), testSession("u1"), "example.com")
	var se *backend.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if got := o.ListWatches("u1"); len(got) != 0 {
		t.Fatalf("failed start left %d watches", len(got))
	}
}

func TestStartAnalysis_ReadyRedirectsOnceAndInvalidates(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{readyAfter: 3}
	inv := &recordingInvalidator{}
	o := newTestOrchestrator(t, be, inv)

	w, err := o.StartAnalysis(context.Background(), testSession("u1"), "Example.com/?utm_source=x")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if w.URL != "https://example.com/" || w.SessionID != "sess-1" {
		t.Fatalf("watch = %+v", w)
	}
	if be.creds.UserID != "u1" || be.creds.Token != "tok-u1" {
		t.Errorf("backend creds = %+v", be.creds)
	}

	ch, err := o.WatchEvents("u1", w.ID)
	if err != nil {
		t.Fatalf("WatchEvents: %v", err)
	}
	events := drain(t, ch)

	redirects := 0
	var last WatchEvent
	for _, ev := range events {
		if ev.Type == WatchEventRedirect {
			redirects++
			if ev.Location != "/dashboard/analysis/https:%2F%2Fexample.com%2F" {
				t.Errorf("location = %q", ev.Location)
			}
		}
		last = ev
	}
	if redirects != 1 {
		t.Fatalf("redirect events = %d, want 1", redirects)
	}
	if last.Type != WatchEventStatus || last.Status != WatchReady {
		t.Fatalf("last event = %+v", last)
	}

	got, err := o.GetWatch("u1", w.ID)
	if err != nil {
		t.Fatalf("GetWatch: %v", err)
	}
	if got.Status != WatchReady || got.EndedAt.IsZero() || got.Progress == nil || !got.Progress.IsReady {
		t.Fatalf("final watch = %+v", got)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.lists) != 1 || inv.lists[0] != "u1" {
		t.Errorf("list invalidations = %v", inv.lists)
	}
	if len(inv.details) != 1 || inv.details[0] != "u1|https://example.com/" {
		t.Errorf("detail invalidations = %v", inv.details)
	}
}

// ─── Lookup and isolation ──────────────────────────────────────────────

func TestWatches_ScopedToOwner(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	o := newTestOrchestrator(t, be, nil)

	w, err := o.StartAnalysis(context.Background(), testSession("u1"), "https://example.com")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if _, err := o.GetWatch("u2", w.ID); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("other user GetWatch = %v", err)
	}
	if err := o.CancelWatch("u2", w.ID); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("other user CancelWatch = %v", err)
	}
	if got := o.ListWatches("u2"); len(got) != 0 {
		t.Errorf("other user sees %d watches", len(got))
	}
	if got := o.ListWatches("u1"); len(got) != 1 {
		t.Errorf("owner sees %d watches", len(got))
	}
}

func TestCancelWatch(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	o := newTestOrchestrator(t, be, nil)

	w, err := o.StartAnalysis(context.Background(), testSession("u1"), "https://example.com")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	ch, _ := o.WatchEvents("u1", w.ID)
	time.Sleep(20 * time.Millisecond)

	if err := o.CancelWatch("u1", w.ID); err != nil {
		t.Fatalf("CancelWatch: %v", err)
	}
	drain(t, ch)

	got, _ := o.GetWatch("u1", w.ID)
	if got.Status != WatchCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
	calls := atomic.LoadInt32(&be.results)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&be.results) != calls {
		t.Fatal("polling continued after cancel")
	}
	if err := o.CancelWatch("u1", w.ID); err != nil {
		t.Fatalf("cancel of finished watch: %v", err)
	}
}

func TestClose_StopsWatchesAndRejectsNew(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	o := newTestOrchestrator(t, be, nil)

	w, err := o.StartAnalysis(context.Background(), testSession("u1"), "https://example.com")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ := o.GetWatch("u1", w.ID)
	if got.Status != WatchCanceled {
		t.Fatalf("status after close = %s", got.Status)
	}
	if _, err := o.StartAnalysis(context.Background(), testSession("u1"), "https://example.com"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// ─── Retention ─────────────────────────────────────────────────────────

func TestPrune_DropsOnlyExpiredFinishedWatches(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, &fakeBackend{}, nil)
	now := time.Now()

	o.watchesMu.Lock()
	o.watches["old"] = &Watch{ID: "old", UserID: "u1", Status: WatchReady, EndedAt: now.Add(-2 * time.Minute)}
	o.watches["fresh"] = &Watch{ID: "fresh", UserID: "u1", Status: WatchFailed, EndedAt: now.Add(-10 * time.Second)}
	o.watches["running"] = &Watch{ID: "running", UserID: "u1", Status: WatchPolling}
	o.watchesMu.Unlock()

	if n := o.prune(now); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, err := o.GetWatch("u1", "old"); !errors.Is(err, ErrWatchNotFound) {
		t.Error("expired watch survived")
	}
	for _, id := range []string{"fresh", "running"} {
		if _, err := o.GetWatch("u1", id); err != nil {
			t.Errorf("%s pruned: %v", id, err)
		}
	}
}
