// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/metrics"
	"github.com/artner/artmap-crawler/internal/pipeline"
)

// Runner executes crawl runs on behalf of API callers.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (exhibit.RunSummary, error)
	CrawlOne(ctx context.Context, url string) exhibit.Detail
}

// Server wires HTTP handlers to the crawl pipeline.
type Server struct {
	router chi.Router
	runner Runner
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		logger: logger,
	}
	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/exhibitions", s.crawlExhibitions)
			r.Post("/exhibitions/url", s.crawlExhibitionURL)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

type crawlRequest struct {
	MaxScroll          *int     `json:"max_scroll"`
	ScrollDelaySeconds *float64 `json:"scroll_delay_seconds"`
	Debug              bool     `json:"debug"`
}

// crawlExhibitions runs one full crawl synchronously. The caller waits for
// the whole run; only a browser failure turns into a 500.
func (s *Server) crawlExhibitions(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MaxScroll != nil && *req.MaxScroll <= 0 {
		s.writeError(w, http.StatusBadRequest, "max_scroll must be > 0")
		return
	}
	if req.ScrollDelaySeconds != nil && *req.ScrollDelaySeconds < 0 {
		s.writeError(w, http.StatusBadRequest, "scroll_delay_seconds must be >= 0")
		return
	}

	opts := pipeline.RunOptions{Debug: req.Debug}
	if req.MaxScroll != nil {
		opts.MaxScroll = *req.MaxScroll
	}
	if req.ScrollDelaySeconds != nil {
		opts.ScrollDelay = time.Duration(*req.ScrollDelaySeconds * float64(time.Second))
		opts.ScrollDelayProvided = true
	}

	summary, err := s.runner.Run(r.Context(), opts)
	if err != nil {
		s.logger.Error("crawl run failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary, s.logger)
}

type crawlURLRequest struct {
	URL string `json:"url"`
}

// crawlExhibitionURL fetches and extracts one detail page without persisting.
func (s *Server) crawlExhibitionURL(w http.ResponseWriter, r *http.Request) {
	var req crawlURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.writeError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}

	detail := s.runner.CrawlOne(r.Context(), req.URL)
	writeJSON(w, http.StatusOK, detail, s.logger)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
