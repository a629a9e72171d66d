package demobackend

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
)

// RecordSink persists finished analyses. *store.Store satisfies it.
type RecordSink interface {
	UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) (*model.AnalysisRecord, error)
}

// session is one running or finished analysis.
type session struct {
	ID        string
	UserID    string
	URL       string
	StartedAt time.Time
	EndedAt   time.Time

	jobs     map[model.JobType]*model.JobStatus
	partial  model.PartialAnalysis
	complete bool
	err      string
}

// progress returns the session's progress view. Callers hold the lock.
func (s *session) progress() *model.ProgressData {
	p := &model.ProgressData{
		UserID:    s.UserID,
		URL:       s.URL,
		SessionID: s.ID,
		Status:    model.ProgressProcessing,
		IsReady:   s.complete,
		Analysis:  s.partialCopy(),
	}
	done := 0
	for _, t := range model.JobTypes {
		js := *s.jobs[t]
		if js.Status == model.JobCompleted {
			done++
		}
		p.Jobs = append(p.Jobs, js)
	}
	p.OverallProgress = 100 * done / len(model.JobTypes)
	if s.complete {
		p.Status = model.ProgressCompleted
	}
	return p
}

func (s *session) partialCopy() *model.PartialAnalysis {
	cp := model.PartialAnalysis{
		OnPage:    append(json.RawMessage(nil), s.partial.OnPage...),
		Content:   append(json.RawMessage(nil), s.partial.Content...),
		Technical: append(json.RawMessage(nil), s.partial.Technical...),
	}
	return &cp
}

// Sessions runs analyses and keeps their state in memory.
type Sessions struct {
	cfg      Config
	analyzer *Analyzer
	sink     RecordSink
	logger   logging.Logger

	mu     sync.Mutex
	byID   map[string]*session
	latest map[string]string // userID|url -> session id

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewSessions returns a session manager. sink may be nil.
func NewSessions(cfg Config, analyzer *Analyzer, sink RecordSink, logger logging.Logger) *Sessions {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sessions{
		cfg:      cfg,
		analyzer: analyzer,
		sink:     sink,
		logger:   logger.With(logging.Field{Key: "component", Value: "sessions"}),
		byID:     make(map[string]*session),
		latest:   make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

func latestKey(userID, url string) string { return userID + "|" + url }

// Start registers a session for (userID, url) and runs it in the
// background. A new start for the same pair supersedes the previous one.
func (m *Sessions) Start(userID, url string) string {
	s := &session{
		ID:        uuid.New().String(),
		UserID:    userID,
		URL:       url,
		StartedAt: m.now().UTC(),
		jobs:      make(map[model.JobType]*model.JobStatus, len(model.JobTypes)),
	}
	for _, t := range model.JobTypes {
		s.jobs[t] = &model.JobStatus{Type: t, Status: model.JobWaiting}
	}

	m.mu.Lock()
	m.byID[s.ID] = s
	m.latest[latestKey(userID, url)] = s.ID
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(s)
	}()
	return s.ID
}

// Progress returns the progress of a session, or nil when unknown or
// owned by another user. An empty userID skips the owner check.
func (m *Sessions) Progress(id, userID string) *model.ProgressData {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || (userID != "" && s.UserID != userID) {
		return nil
	}
	return s.progress()
}

// Result returns the result payload of the latest session for
// (userID, url) and its failure message, if any.
func (m *Sessions) Result(userID, url string) (res *backend.ResultPayload, failure string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, found := m.latest[latestKey(userID, url)]
	if !found {
		return nil, "", false
	}
	s := m.byID[id]
	p := s.progress()
	return &backend.ResultPayload{
		Analysis:   p.Analysis,
		IsComplete: s.complete,
		Progress:   float64(p.OverallProgress),
	}, s.err, true
}

func (m *Sessions) setJob(s *session, t model.JobType, st model.JobState, progress int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	js := s.jobs[t]
	js.Status, js.Progress, js.Error = st, progress, errMsg
}

func (m *Sessions) run(s *session) {
	log := m.logger.With(logging.Field{Key: "session_id", Value: s.ID}, logging.Field{Key: "url", Value: s.URL})
	log.Info("analysis started")

	if !m.pause() {
		return
	}
	m.setJob(s, model.JobOnPage, model.JobProcessing, 10, "")
	page, err := m.analyzer.Fetch(m.ctx, s.URL)
	if err != nil {
		m.fail(s, model.JobOnPage, err)
		return
	}
	rec := &model.AnalysisRecord{UserID: s.UserID, URL: s.URL, Title: page.Title()}

	steps := []struct {
		t   model.JobType
		run func() any
	}{
		{model.JobOnPage, func() any { rec.OnPage = m.analyzer.OnPage(page); return rec.OnPage }},
		{model.JobContent, func() any { rec.Content = m.analyzer.Content(page); return rec.Content }},
		{model.JobTechnical, func() any { rec.Technical = m.analyzer.Technical(m.ctx, page); return rec.Technical }},
	}
	for i, step := range steps {
		if i > 0 {
			if !m.pause() {
				return
			}
			m.setJob(s, step.t, model.JobProcessing, 10, "")
		}
		raw, err := json.Marshal(step.run())
		if err != nil {
			m.fail(s, step.t, err)
			return
		}
		m.mu.Lock()
		switch step.t {
		case model.JobOnPage:
			s.partial.OnPage = raw
		case model.JobContent:
			s.partial.Content = raw
		case model.JobTechnical:
			s.partial.Technical = raw
		}
		js := s.jobs[step.t]
		js.Status, js.Progress = model.JobCompleted, 100
		m.mu.Unlock()
	}

	if m.sink != nil {
		if _, err := m.sink.UpsertAnalysis(m.ctx, rec); err != nil {
			log.Error("saving analysis", logging.Field{Key: "error", Value: err})
			m.fail(s, model.JobTechnical, err)
			return
		}
	}

	m.mu.Lock()
	s.complete = true
	s.EndedAt = m.now().UTC()
	m.mu.Unlock()
	log.Info("analysis complete")
}

// pause waits StepDelay; false means the manager is shutting down.
func (m *Sessions) pause() bool {
	if m.cfg.StepDelay <= 0 {
		return m.ctx.Err() == nil
	}
	t := time.NewTimer(m.cfg.StepDelay)
	defer t.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Sessions) fail(s *session, t model.JobType, err error) {
	m.logger.Warn("analysis failed",
		logging.Field{Key: "session_id", Value: s.ID},
		logging.Field{Key: "job", Value: string(t)},
		logging.Field{Key: "error", Value: err})
	m.mu.Lock()
	defer m.mu.Unlock()
	js := s.jobs[t]
	js.Status, js.Error = model.JobFailed, err.Error()
	s.err = err.Error()
	s.EndedAt = m.now().UTC()
}

// Prune drops sessions that finished more than SessionRetention ago.
func (m *Sessions) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.byID {
		if s.EndedAt.IsZero() || now.Sub(s.EndedAt) < m.cfg.SessionRetention {
			continue
		}
		delete(m.byID, id)
		if k := latestKey(s.UserID, s.URL); m.latest[k] == id {
			delete(m.latest, k)
		}
		n++
	}
	return n
}

// Close stops running analyses and waits for them.
func (m *Sessions) Close() {
	m.cancel()
	m.wg.Wait()
}
