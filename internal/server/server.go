package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/scanzie/smeal/internal/app"
	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/gateway"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/report"
	"github.com/scanzie/smeal/internal/telemetry"
	"github.com/scanzie/smeal/internal/utils"

	_ "github.com/scanzie/smeal/internal/server/docs" // swagger spec
)

// Deps are the services the API exposes. Archive may be nil.
type Deps struct {
	Gateway      *gateway.Gateway
	Auth         *auth.Resolver
	Orchestrator *app.Orchestrator
	Archive      *report.Publisher
}

// Server is the HTTP + WebSocket API surface for Scanzie.
type Server struct {
	cfg      Config
	deps     Deps
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	now      func() time.Time
}

// NewServer wires the routes over deps.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Gateway == nil || deps.Auth == nil || deps.Orchestrator == nil {
		return nil, errors.New("server: gateway, auth and orchestrator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	s.routes()
	return s, nil
}

// FromApplication builds a server over a. It does not take ownership; close
// the application separately.
func FromApplication(cfg Config, a *app.Application) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = a.Logger
	}
	return NewServer(cfg, Deps{
		Gateway:      a.Gateway,
		Auth:         a.Auth,
		Orchestrator: a.Orchestrator,
		Archive:      a.Archive,
	})
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.recoverMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.deps.Auth.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/session", s.handleSession)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Group(func(r chi.Router) {
		r.Use(auth.Require)

		r.Get("/api/analyses", s.handleListAnalyses)
		r.Get("/api/analyses/stats", s.handleAnalysisStats)
		r.Get("/api/analyses/detail", s.handleAnalysisDetail)
		r.Get("/api/analyses/changes", s.handleAnalysisChanges)
		r.Get("/api/analyses/export", s.handleExportAnalysis)
		r.Delete("/api/analyses/{id}", s.handleDeleteAnalysis)
		r.Post("/api/analyses/invalidate", s.handleInvalidate)

		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/watches", s.handleListWatches)
		r.Get("/api/watches/{id}", s.handleGetWatch)
		r.Delete("/api/watches/{id}", s.handleCancelWatch)
		r.Get("/ws/watches/{id}", s.handleWatchWS)

		r.Patch("/api/profile", s.handleUpdateProfile)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case slices.Contains(s.cfg.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		case slices.Contains(s.cfg.AllowedOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			s.logger.Error("panic in handler",
				logging.Field{Key: "path", Value: r.URL.Path},
				logging.Field{Key: "error", Value: err})
			telemetry.CaptureError(r, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	s.router.ServeHTTP(ww, r)

	s.logger.Info("http_request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path},
		logging.Field{Key: "status", Value: ww.Status()},
		logging.Field{Key: "duration_ms", Value: s.now().Sub(start).Milliseconds()})
}

// HTTPServer creates an *http.Server ready to ListenAndServe. Handlers are
// traced with otelhttp.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(s, "scanzie-api"),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := s.HTTPServer()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", logging.Field{Key: "addr", Value: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps service errors to status codes. Unexpected errors
// are logged and reported; their text is not returned to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var se *backend.StatusError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, gateway.ErrAnalysisNotFound):
		writeError(w, http.StatusNotFound, "analysis not found")
	case errors.Is(err, app.ErrWatchNotFound):
		writeError(w, http.StatusNotFound, "watch not found")
	case errors.Is(err, gateway.ErrNoPreviousAnalysis):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, utils.ErrInvalidTargetURL), errors.Is(err, utils.ErrEmptyURL),
		errors.Is(err, gateway.ErrInvalidName), errors.Is(err, report.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &se):
		s.logger.Warn("analysis backend error", logging.Field{Key: "status", Value: se.StatusCode})
		writeError(w, http.StatusBadGateway, "analysis backend unavailable")
	case errors.Is(err, app.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.logger.Error("request failed",
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "error", Value: err})
		telemetry.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
