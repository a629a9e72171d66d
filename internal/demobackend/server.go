// Package demobackend is a local stand-in for the external analysis
// backend. It serves the analyze, result and progress endpoints from memory
// and can host a small sample site to analyze.
package demobackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/utils"
)

// Server exposes Sessions over HTTP.
type Server struct {
	cfg      Config
	sessions *Sessions
	router   chi.Router
	logger   logging.Logger
}

func NewServer(cfg Config, sessions *Sessions, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		router:   chi.NewRouter(),
		logger:   logger.With(logging.Field{Key: "component", Value: "demobackend"}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Post("/api/analyze", s.handleAnalyze)
	r.Get("/api/result/{userId}/*", s.handleResult)
	r.Get("/api/progress/{sessionId}", s.handleProgress)

	if s.cfg.ServeSampleSite {
		for _, p := range SamplePages() {
			page := p
			r.Get(page.Path, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", page.ContentType)
				_, _ = w.Write([]byte(page.Body))
			})
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type analyzeRequest struct {
	URL    string `json:"url"`
	UserID string `json:"userId"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		req.UserID = r.URL.Query().Get("userId")
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	target, err := utils.ValidateTargetURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.sessions.Start(req.UserID, target)
	s.logger.Info("analysis queued",
		logging.Field{Key: "session_id", Value: id},
		logging.Field{Key: "user_id", Value: req.UserID},
		logging.Field{Key: "url", Value: target})
	writeJSON(w, http.StatusOK, backend.StartResponse{
		SessionID: id,
		UserID:    req.UserID,
		URL:       target,
		Message:   "Analysis started",
	})
}

// handleResult answers 404 until an analysis for (userId, url) exists. The
// url is a single escaped path segment, so the raw path is used when set.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	userID, err := url.PathUnescape(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	target, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || target == "" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	if canonical, err := utils.ValidateTargetURL(target); err == nil {
		target = canonical
	}

	res, failure, ok := s.sessions.Result(userID, target)
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "Analysis not found")
	case failure != "":
		writeError(w, http.StatusInternalServerError, failure)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p := s.sessions.Progress(chi.URLParam(r, "sessionId"), r.URL.Query().Get("userId"))
	if p == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Run serves until ctx ends, pruning finished sessions meanwhile.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", logging.Field{Key: "addr", Value: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case now := <-t.C:
				if n := s.sessions.Prune(now); n > 0 {
					s.logger.Debug("pruned sessions", logging.Field{Key: "count", Value: n})
				}
			}
		}
	})
	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
