// Package api exposes the dashboard-facing HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/jobs"
	"github.com/jhu-ep/gradcafe-pipeline/internal/metrics"
)

// Server wires HTTP handlers to the job coordinator.
type Server struct {
	router chi.Router
	coord  *jobs.Coordinator
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(coord *jobs.Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{coord: coord, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/pull", s.pull)
		r.Post("/update-analysis", s.updateAnalysis)
		r.Get("/status", s.status)
		r.Get("/analysis", s.analysis)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pull accepts a background pull request. A pull already in flight yields
// a structured busy response, never a second job.
func (s *Server) pull(w http.ResponseWriter, _ *http.Request) {
	if err := s.coord.RequestPull(); err != nil {
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			_, message := s.coord.Status()
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"busy":    true,
				"message": message,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) updateAnalysis(w http.ResponseWriter, r *http.Request) {
	err := s.coord.RequestUpdateAnalysis(r.Context())
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"busy":    true,
			"message": "Cannot update analysis while a pull is running.",
		})
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	running, message := s.coord.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running": running,
		"message": message,
	})
}

func (s *Server) analysis(w http.ResponseWriter, _ *http.Request) {
	results, has, updatedAt := s.coord.Results()
	running, message := s.coord.Status()
	payload := map[string]any{
		"results":     results,
		"has_results": has,
		"running":     running,
		"message":     message,
	}
	if has {
		payload["updated_at"] = updatedAt.Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
