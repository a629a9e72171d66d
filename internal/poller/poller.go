// Package poller tracks one analysis job by polling the backend until it
// reports completion, then fires a single delayed ready callback.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
)

var (
	// ErrIncompleteKey is returned by Run and Refetch when the user id or
	// both the url and session id are missing. No request is made.
	ErrIncompleteKey = errors.New("poller: incomplete key")
	// ErrGaveUp is returned by Run once the error or duration cutoff is hit.
	ErrGaveUp = errors.New("poller: gave up")
)

var tracer = otel.Tracer("github.com/scanzie/smeal/internal/poller")

// Source is the part of the backend client the poller needs.
type Source interface {
	FetchResult(ctx context.Context, userID, target string) (*backend.ResultPayload, error)
	FetchProgress(ctx context.Context, sessionID, userID string) (*model.ProgressData, error)
}

// Key identifies the job. URL selects the result endpoint; otherwise
// SessionID selects the progress endpoint.
type Key struct {
	UserID    string
	URL       string
	SessionID string
}

func (k Key) Complete() bool {
	return k.UserID != "" && (k.URL != "" || k.SessionID != "")
}

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePolling Phase = "polling"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

func (p Phase) Terminal() bool { return p == PhaseReady || p == PhaseFailed }

// State is what consumers observe. IsLoading is true only while a request
// is outstanding.
type State struct {
	Progress  *model.ProgressData `json:"progress"`
	Error     string              `json:"error,omitempty"`
	IsLoading bool                `json:"isLoading"`
	Phase     Phase               `json:"phase"`
}

type Config struct {
	// Interval separates the end of one tick from the start of the next.
	Interval time.Duration
	// RedirectDelay is how long the ready snapshot is shown before OnReady.
	RedirectDelay time.Duration
	// MaxConsecutiveErrors moves the poller to failed. 0 retries forever.
	MaxConsecutiveErrors int
	// MaxDuration bounds the whole polling phase. 0 is unbounded.
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:             2 * time.Second,
		RedirectDelay:        time.Second,
		MaxConsecutiveErrors: 150,
	}
}

type Poller struct {
	key     Key
	src     Source
	cfg     Config
	logger  logging.Logger
	onReady func(State)

	mu        sync.Mutex
	state     State
	issued    uint64
	applied   uint64
	inflight  int
	errStreak int
	subs      map[chan State]struct{}

	settled   chan struct{}
	settle    sync.Once
	readyOnce sync.Once
}

// New returns an idle poller. onReady may be nil.
func New(key Key, src Source, cfg Config, onReady func(State), logger logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Nop()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RedirectDelay < 0 {
		cfg.RedirectDelay = 0
	}
	return &Poller{
		key:     key,
		src:     src,
		cfg:     cfg,
		onReady: onReady,
		logger: logger.With(
			logging.Field{Key: "component", Value: "poller"},
			logging.Field{Key: "user_id", Value: key.UserID},
			logging.Field{Key: "url", Value: key.URL},
			logging.Field{Key: "session_id", Value: key.SessionID},
		),
		state:   State{Phase: PhaseIdle},
		subs:    make(map[chan State]struct{}),
		settled: make(chan struct{}),
	}
}

func (p *Poller) Key() Key { return p.key }

// Snapshot returns the current state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Updates returns a channel receiving every state change and a func that
// unsubscribes and closes the channel. Slow readers miss intermediate states, never the latest:
// the channel holds one pending state that is replaced on overflow.
func (p *Poller) Updates() (<-chan State, func()) {
	ch := make(chan State, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- p.state
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// Run polls until the job is ready, the poller gives up, or ctx ends. The
// first request goes out immediately. On ready, OnReady runs once after
// RedirectDelay unless ctx ends first; Run returns after that.
func (p *Poller) Run(ctx context.Context) error {
	if !p.key.Complete() {
		return ErrIncompleteKey
	}
	p.mu.Lock()
	if p.state.Phase == PhaseIdle {
		p.state.Phase = PhasePolling
		p.publishLocked()
	}
	p.mu.Unlock()

	var deadline <-chan time.Time
	if p.cfg.MaxDuration > 0 {
		t := time.NewTimer(p.cfg.MaxDuration)
		defer t.Stop()
		deadline = t.C
	}

	p.tick(ctx)
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for !p.Snapshot().Phase.Terminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.settled:
		case <-deadline:
			p.giveUp("max duration reached")
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.cfg.Interval)
		}
	}

	if p.Snapshot().Phase == PhaseFailed {
		return ErrGaveUp
	}
	return p.fireReady(ctx)
}

// Refetch performs one request outside the schedule. Results older than
// the newest applied one are discarded. It is a no-op once settled.
func (p *Poller) Refetch(ctx context.Context) error {
	if !p.key.Complete() {
		return ErrIncompleteKey
	}
	if p.Snapshot().Phase.Terminal() {
		return nil
	}
	p.tick(ctx)
	return nil
}

func (p *Poller) fireReady(ctx context.Context) error {
	t := time.NewTimer(p.cfg.RedirectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	p.readyOnce.Do(func() {
		st := p.Snapshot()
		p.logger.Info("analysis ready", logging.Field{Key: "overall_progress", Value: st.Progress.OverallProgress})
		if p.onReady != nil {
			p.onReady(st)
		}
	})
	return nil
}

func (p *Poller) tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "poller.tick", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.inflight++
	p.state.IsLoading = true
	p.publishLocked()
	p.mu.Unlock()

	data, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	p.state.IsLoading = p.inflight > 0

	switch {
	case p.state.Phase.Terminal():
	case err != nil && ctx.Err() != nil:
		// Canceled, not a backend failure.
	case seq <= p.applied:
		span.SetAttributes(attribute.Bool("poller.stale", true))
	case err != nil:
		p.applied = seq
		p.errStreak++
		p.state.Error = errorMessage(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("progress fetch failed",
			logging.Field{Key: "error", Value: err},
			logging.Field{Key: "consecutive_errors", Value: p.errStreak})
		if p.cfg.MaxConsecutiveErrors > 0 && p.errStreak >= p.cfg.MaxConsecutiveErrors {
			p.failLocked("too many consecutive errors")
		}
	default:
		p.applied = seq
		p.errStreak = 0
		p.state.Error = ""
		p.state.Progress = data
		span.SetAttributes(
			attribute.Int("poller.overall_progress", data.OverallProgress),
			attribute.Bool("poller.ready", data.IsReady),
		)
		if data.IsReady {
			p.state.Phase = PhaseReady
			p.settle.Do(func() { close(p.settled) })
		}
	}
	p.publishLocked()
}

func (p *Poller) fetch(ctx context.Context) (*model.ProgressData, error) {
	if p.key.URL != "" {
		res, err := p.src.FetchResult(ctx, p.key.UserID, p.key.URL)
		switch {
		case errors.Is(err, backend.ErrNotReady):
			return NotReadyProgress(p.key), nil
		case err != nil:
			return nil, err
		}
		return FromResult(p.key, res), nil
	}

	pd, err := p.src.FetchProgress(ctx, p.key.SessionID, p.key.UserID)
	switch {
	case errors.Is(err, backend.ErrNotReady):
		return NotReadyProgress(p.key), nil
	case err != nil:
		return nil, err
	}
	return normalizeProgress(p.key, pd), nil
}

func (p *Poller) giveUp(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Phase.Terminal() {
		return
	}
	p.failLocked(reason)
	p.publishLocked()
}

func (p *Poller) failLocked(reason string) {
	p.state.Phase = PhaseFailed
	if p.state.Error == "" {
		p.state.Error = FailureMessage
	}
	p.settle.Do(func() { close(p.settled) })
	p.logger.Error("polling stopped", logging.Field{Key: "reason", Value: reason})
}

func (p *Poller) publishLocked() {
	st := p.state
	for ch := range p.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}
