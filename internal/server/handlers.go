package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/report"
	"github.com/scanzie/smeal/internal/score"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSession godoc
// @Summary Current session
// @Tags session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 500 {object} SessionResponse
// @Router /api/session [get]
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	var err error
	if sess == nil && auth.TokenFromRequest(r) != "" {
		// Resolve again to tell a lookup failure from an unknown token.
		sess, err = s.deps.Auth.FromRequest(r)
		if errors.Is(err, auth.ErrUnauthenticated) {
			sess, err = nil, nil
		}
	}
	if err != nil {
		s.logger.Error("resolving session", logging.Field{Key: "error", Value: err})
		writeJSON(w, http.StatusInternalServerError, SessionResponse{Error: "Failed to fetch session"})
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, SessionResponse{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success: true,
		Session: &SessionBody{
			Token: sess.Token,
			User:  sess.User,
			Session: SessionInner{
				ID:        sess.ID,
				Token:     sess.Token,
				UserID:    sess.UserID,
				ExpiresAt: sess.ExpiresAt,
			},
		},
	})
}

// handleListAnalyses godoc
// @Summary List the caller's analyses, newest first
// @Tags analyses
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Records to skip"
// @Success 200 {object} AnalysisPage
// @Failure 401 {object} ErrorResponse
// @Router /api/analyses [get]
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := max(queryInt(r, "offset", 0), 0)

	page, err := s.deps.Gateway.FetchUserAnalysisPage(r.Context(), auth.FromContext(r.Context()), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := AnalysisPage{
		Records: make([]AnalysisView, 0, len(page.Records)),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	for _, rec := range page.Records {
		out.Records = append(out.Records, newAnalysisView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnalysisStats godoc
// @Summary Tier counts over all of the caller's analyses
// @Tags analyses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AnalysisStats
// @Router /api/analyses/stats [get]
func (s *Server) handleAnalysisStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Gateway.FetchUserAnalysis(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score.CalculateAnalysisStats(records))
}

// handleAnalysisDetail godoc
// @Summary Analysis of one URL
// @Tags analyses
// @Produce json
// @Security BearerAuth
// @Param url query string true "Analyzed URL"
// @Success 200 {object} AnalysisView
// @Failure 404 {object} ErrorResponse
// @Router /api/analyses/detail [get]
func (s *Server) handleAnalysisDetail(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	rec, err := s.deps.Gateway.FetchAnalysisDetails(r.Context(), auth.FromContext(r.Context()), target)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisView(rec))
}

// handleAnalysisChanges godoc
// @Summary Changes since the previous analysis
// @Description Compares the analysis of url with the version its latest re-analysis replaced.
// @Tags analyses
// @Produce json
// @Security BearerAuth
// @Param url query string true "Analyzed URL"
// @Success 200 {object} report.Changes
// @Failure 404 {object} ErrorResponse
// @Router /api/analyses/changes [get]
func (s *Server) handleAnalysisChanges(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	changes, err := s.deps.Gateway.FetchAnalysisChanges(r.Context(), auth.FromContext(r.Context()), target)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// handleExportAnalysis godoc
// @Summary Download an analysis as a report
// @Description Renders the analysis of url as markdown or JSON. When a report archive is configured the report is also stored and its key returned in X-Report-Key.
// @Tags analyses
// @Produce text/markdown
// @Produce json
// @Security BearerAuth
// @Param url query string true "Analyzed URL"
// @Param format query string false "md or json" Enums(md, json)
// @Success 200 {string} string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/analyses/export [get]
func (s *Server) handleExportAnalysis(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rec, err := s.deps.Gateway.FetchAnalysisDetails(r.Context(), auth.FromContext(r.Context()), target)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}

	var buf bytes.Buffer
	rw, err := report.NewWriter(format, &buf)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if _, err := rw.Write(report.Build(rec, s.now())); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.deps.Archive != nil {
		key, err := s.deps.Archive.Publish(r.Context(), rec, format)
		if err != nil {
			// The download still succeeds without the archived copy.
			s.logger.Warn("archiving report",
				logging.Field{Key: "analysis_id", Value: rec.ID},
				logging.Field{Key: "error", Value: err})
		} else {
			w.Header().Set("X-Report-Key", key)
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.ID+"."+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleDeleteAnalysis godoc
// @Summary Delete one of the caller's analyses
// @Tags analyses
// @Security BearerAuth
// @Param id path string true "Analysis ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/analyses/{id} [delete]
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Gateway.DeleteAnalysis(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInvalidate godoc
// @Summary Drop cached reads of the caller
// @Tags analyses
// @Accept json
// @Security BearerAuth
// @Param body body InvalidateRequest false "Detail to drop"
// @Success 204
// @Router /api/analyses/invalidate [post]
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	sess := auth.FromContext(r.Context())
	if err := s.deps.Gateway.InvalidateUserAnalysisCache(r.Context(), sess); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.deps.Gateway.InvalidateAnalysisDetailsCache(r.Context(), sess, req.URL); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnalyze godoc
// @Summary Start an analysis and watch its progress
// @Tags watches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body AnalyzeRequest true "Target"
// @Success 202 {object} app.Watch
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/analyze [post]
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	watch, err := s.deps.Orchestrator.StartAnalysis(r.Context(), auth.FromContext(r.Context()), req.URL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("started analysis watch",
		logging.Field{Key: "watch_id", Value: watch.ID},
		logging.Field{Key: "url", Value: watch.URL})
	writeJSON(w, http.StatusAccepted, watch)
}

// handleListWatches godoc
// @Summary Watches of the caller, newest first
// @Tags watches
// @Produce json
// @Security BearerAuth
// @Success 200 {array} app.Watch
// @Router /api/watches [get]
func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Orchestrator.ListWatches(sess.UserID))
}

// handleGetWatch godoc
// @Summary One watch
// @Tags watches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Watch ID"
// @Success 200 {object} app.Watch
// @Failure 404 {object} ErrorResponse
// @Router /api/watches/{id} [get]
func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	watch, err := s.deps.Orchestrator.GetWatch(sess.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, watch)
}

// handleCancelWatch godoc
// @Summary Stop watching
// @Tags watches
// @Security BearerAuth
// @Param id path string true "Watch ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/watches/{id} [delete]
func (s *Server) handleCancelWatch(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if err := s.deps.Orchestrator.CancelWatch(sess.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWatchWS streams the events of a watch: first the watch itself, then
// every event until the watch finishes. Closing the socket cancels it.
func (s *Server) handleWatchWS(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	watch, err := s.deps.Orchestrator.GetWatch(sess.UserID, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	events, err := s.deps.Orchestrator.WatchEvents(sess.UserID, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err})
		return
	}
	defer conn.Close()

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(watch); err != nil {
		_ = s.deps.Orchestrator.CancelWatch(sess.UserID, id)
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "watch finished"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				_ = s.deps.Orchestrator.CancelWatch(sess.UserID, id)
				return
			}
		case <-gone:
			s.logger.Info("watch client disconnected", logging.Field{Key: "watch_id", Value: id})
			_ = s.deps.Orchestrator.CancelWatch(sess.UserID, id)
			return
		}
	}
}

// handleUpdateProfile godoc
// @Summary Rename the caller
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body UpdateProfileRequest true "New name"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/profile [patch]
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.deps.Gateway.UpdateProfileName(r.Context(), auth.FromContext(r.Context()), req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: u, Initials: u.Initials()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
