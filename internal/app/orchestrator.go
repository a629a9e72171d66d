package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/poller"
	"github.com/scanzie/smeal/internal/utils"
)

var (
	ErrWatchNotFound = errors.New("watch not found")
	ErrClosed        = errors.New("orchestrator closed")
)

type WatchEventType string

const (
	WatchEventStatus   WatchEventType = "status"
	WatchEventProgress WatchEventType = "progress"
	// WatchEventRedirect is emitted once, after the ready delay, with the
	// location of the analysis detail view.
	WatchEventRedirect WatchEventType = "redirect"
)

type WatchEvent struct {
	WatchID string         `json:"watch_id"`
	Type    WatchEventType `json:"type"`

	// For status changes
	Status WatchStatus `json:"status,omitempty"`
	Error  string      `json:"error,omitempty"`

	Progress *model.ProgressData `json:"progress,omitempty"`
	Location string              `json:"location,omitempty"`
}

type WatchStatus string

const (
	WatchPending  WatchStatus = "pending"
	WatchPolling  WatchStatus = "polling"
	WatchReady    WatchStatus = "ready"
	WatchFailed   WatchStatus = "failed"
	WatchCanceled WatchStatus = "canceled"
)

func (s WatchStatus) Finished() bool {
	return s == WatchReady || s == WatchFailed || s == WatchCanceled
}

// Watch is one server-side poll of an analysis job.
type Watch struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	URL       string              `json:"url"`
	SessionID string              `json:"session_id"`
	Status    WatchStatus         `json:"status"`
	Error     string              `json:"error,omitempty"`
	Progress  *model.ProgressData `json:"progress,omitempty"`
	Location  string              `json:"location,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at"`
	Events    chan WatchEvent     `json:"-"`

	closed bool
}

// Backend is the analysis backend as seen by one user.
type Backend interface {
	poller.Source
	StartAnalysis(ctx context.Context, target string) (*backend.StartResponse, error)
}

// BackendFor returns a Backend that authenticates as creds.
type BackendFor func(creds backend.Credentials) Backend

// CacheInvalidator drops cached dashboard reads once an analysis lands.
type CacheInvalidator interface {
	InvalidateUserAnalysisCache(ctx context.Context, sess *auth.Session) error
	InvalidateAnalysisDetailsCache(ctx context.Context, sess *auth.Session, url string) error
}

type Orchestrator struct {
	cfg        *Config
	backendFor BackendFor
	caches     CacheInvalidator
	logger     logging.Logger
	now        func() time.Time

	// Watches outlive the request that started them; they hang off ctx.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watchesMu    sync.Mutex
	watches      map[string]*Watch
	watchCancels map[string]context.CancelFunc
	closed       bool
}

// NewOrchestrator ties together config, backend and cache invalidation.
// caches may be nil.
func NewOrchestrator(cfg *Config, backendFor BackendFor, caches CacheInvalidator, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:          cfg,
		backendFor:   backendFor,
		caches:       caches,
		logger:       logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		watches:      make(map[string]*Watch),
		watchCancels: make(map[string]context.CancelFunc),
	}
	if cfg.WatchRetention > 0 {
		o.wg.Add(1)
		go o.pruneLoop()
	}
	return o
}

func (o *Orchestrator) emitWatchEvent(w *Watch, ev WatchEvent) {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	if w.closed || w.Events == nil {
		return
	}
	// Non-blocking send; drop if buffer is full.
	select {
	case w.Events <- ev:
	default:
	}
}

func (o *Orchestrator) updateWatch(w *Watch, fn func(*Watch)) {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	fn(w)
}

// StartAnalysis validates target, asks the backend to analyze it on behalf
// of sess and starts a watch polling for the result.
func (o *Orchestrator) StartAnalysis(ctx context.Context, sess *auth.Session, target string) (*Watch, error) {
	userID, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}
	canonical, err := utils.ValidateTargetURL(target)
	if err != nil {
		return nil, err
	}

	o.watchesMu.Lock()
	closed := o.closed
	o.watchesMu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	be := o.backendFor(backend.Credentials{UserID: userID, Token: sess.Token})
	resp, err := be.StartAnalysis(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("start analysis: %w", err)
	}

	w := &Watch{
		ID:        uuid.New().String(),
		UserID:    userID,
		URL:       canonical,
		SessionID: resp.SessionID,
		Status:    WatchPending,
		StartedAt: o.now().UTC(),
		Events:    make(chan WatchEvent, o.eventBuffer()),
	}

	watchCtx, cancel := context.WithCancel(o.ctx)
	o.watchesMu.Lock()
	if o.closed {
		o.watchesMu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	o.watches[w.ID] = w
	o.watchCancels[w.ID] = cancel
	o.wg.Add(1)
	o.watchesMu.Unlock()

	o.emitWatchEvent(w, WatchEvent{WatchID: w.ID, Type: WatchEventStatus, Status: WatchPending})
	o.logger.Info("analysis started",
		logging.Field{Key: "watch_id", Value: w.ID},
		logging.Field{Key: "url", Value: canonical},
		logging.Field{Key: "session_id", Value: resp.SessionID})

	go o.runWatch(watchCtx, w, sess, be)

	return o.snapshot(w), nil
}

func (o *Orchestrator) runWatch(ctx context.Context, w *Watch, sess *auth.Session, be Backend) {
	defer o.wg.Done()

	key := poller.Key{UserID: w.UserID, URL: w.URL, SessionID: w.SessionID}
	location := utils.AnalysisPath(w.URL)
	p := poller.New(key, be, o.cfg.Poll, func(poller.State) {
		o.invalidate(ctx, sess, w.URL)
		o.updateWatch(w, func(w *Watch) { w.Location = location })
		o.emitWatchEvent(w, WatchEvent{WatchID: w.ID, Type: WatchEventRedirect, Location: location})
	}, o.logger)

	updates, stop := p.Updates()
	runDone := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		var last poller.State
		for {
			select {
			case <-runDone:
				return
			case st := <-updates:
				o.applyState(w, st, &last)
				if st.Phase.Terminal() {
					return
				}
			}
		}
	}()

	o.updateWatch(w, func(w *Watch) { w.Status = WatchPolling })
	o.emitWatchEvent(w, WatchEvent{WatchID: w.ID, Type: WatchEventStatus, Status: WatchPolling})

	err := p.Run(ctx)
	close(runDone)
	<-forwarded
	stop()

	final := p.Snapshot()
	status := WatchReady
	errMsg := ""
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrGaveUp):
		status, errMsg = WatchFailed, final.Error
	case ctx.Err() != nil:
		status, errMsg = WatchCanceled, ctx.Err().Error()
	default:
		status, errMsg = WatchFailed, err.Error()
	}

	o.watchesMu.Lock()
	w.Status = status
	w.Error = errMsg
	if final.Progress != nil {
		w.Progress = final.Progress
	}
	w.EndedAt = o.now().UTC()
	cancel := o.watchCancels[w.ID]
	delete(o.watchCancels, w.ID)
	o.watchesMu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.emitWatchEvent(w, WatchEvent{WatchID: w.ID, Type: WatchEventStatus, Status: status, Error: errMsg})
	o.logger.Info("watch finished",
		logging.Field{Key: "watch_id", Value: w.ID},
		logging.Field{Key: "status", Value: string(status)})

	// Close events channel so websocket loop can terminate cleanly
	o.watchesMu.Lock()
	w.closed = true
	close(w.Events)
	o.watchesMu.Unlock()
}

func (o *Orchestrator) applyState(w *Watch, st poller.State, last *poller.State) {
	if st.Progress == last.Progress && st.Error == last.Error {
		return
	}
	*last = st
	o.updateWatch(w, func(w *Watch) {
		w.Progress = st.Progress
		w.Error = st.Error
	})
	o.emitWatchEvent(w, WatchEvent{WatchID: w.ID, Type: WatchEventProgress, Progress: st.Progress, Error: st.Error})
}

func (o *Orchestrator) invalidate(ctx context.Context, sess *auth.Session, url string) {
	if o.caches == nil {
		return
	}
	if err := o.caches.InvalidateUserAnalysisCache(ctx, sess); err != nil {
		o.logger.Warn("invalidate analysis list failed", logging.Field{Key: "error", Value: err})
	}
	if err := o.caches.InvalidateAnalysisDetailsCache(ctx, sess, url); err != nil {
		o.logger.Warn("invalidate analysis details failed", logging.Field{Key: "error", Value: err})
	}
}

// GetWatch returns a copy of the watch if it belongs to userID.
func (o *Orchestrator) GetWatch(userID, id string) (*Watch, error) {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	w, ok := o.watches[id]
	if !ok || w.UserID != userID {
		return nil, ErrWatchNotFound
	}
	cp := *w
	return &cp, nil
}

// WatchEvents returns the event channel of a watch owned by userID. The
// channel is closed when the watch finishes.
func (o *Orchestrator) WatchEvents(userID, id string) (<-chan WatchEvent, error) {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	w, ok := o.watches[id]
	if !ok || w.UserID != userID {
		return nil, ErrWatchNotFound
	}
	return w.Events, nil
}

// ListWatches returns the user's watches, newest first.
func (o *Orchestrator) ListWatches(userID string) []*Watch {
	o.watchesMu.Lock()
	out := make([]*Watch, 0)
	for _, w := range o.watches {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	o.watchesMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// CancelWatch stops a running watch owned by userID. Cancelling a finished
// watch is a no-op.
func (o *Orchestrator) CancelWatch(userID, id string) error {
	o.watchesMu.Lock()
	w, ok := o.watches[id]
	if !ok || w.UserID != userID {
		o.watchesMu.Unlock()
		return ErrWatchNotFound
	}
	cancel := o.watchCancels[id]
	o.watchesMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (o *Orchestrator) snapshot(w *Watch) *Watch {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	cp := *w
	return &cp
}

func (o *Orchestrator) eventBuffer() int {
	if o.cfg.EventBuffer > 0 {
		return o.cfg.EventBuffer
	}
	return 64
}

func (o *Orchestrator) pruneLoop() {
	defer o.wg.Done()
	interval := o.cfg.WatchRetention / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-t.C:
			o.prune(o.now())
		}
	}
}

// prune drops finished watches that ended more than WatchRetention ago.
func (o *Orchestrator) prune(now time.Time) int {
	o.watchesMu.Lock()
	defer o.watchesMu.Unlock()
	n := 0
	for id, w := range o.watches {
		if w.Status.Finished() && !w.EndedAt.IsZero() && now.Sub(w.EndedAt) > o.cfg.WatchRetention {
			delete(o.watches, id)
			n++
		}
	}
	if n > 0 {
		o.logger.Debug("pruned watches", logging.Field{Key: "count", Value: n})
	}
	return n
}

// Close cancels every running watch and waits for them to finish.
func (o *Orchestrator) Close() error {
	o.watchesMu.Lock()
	if o.closed {
		o.watchesMu.Unlock()
		return nil
	}
	o.closed = true
	o.watchesMu.Unlock()

	o.cancel()
	o.wg.Wait()
	return nil
}
