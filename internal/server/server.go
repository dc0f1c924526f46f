// Package server exposes a Ready recommendation engine over HTTP.
//
// Routes:
//
//	GET /recommend?q=<game>&n=<count>  JSON recommendations
//	GET /healthz                       liveness and engine state
//	GET /metrics                       Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chriscorrea/playnext/internal/app"
	"github.com/chriscorrea/playnext/internal/recommend"
)

// MaxTopN caps the n query parameter.
const MaxTopN = 100

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int // requests per minute per client IP; 0 disables
	CORSOrigins  []string
	DefaultTopN  int
}

// Engine is the part of the recommender the server needs.
type Engine interface {
	app.Recommender
	State() recommend.State
	Len() int
}

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	catalog  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "playnext",
			Name:      "recommend_requests_total",
			Help:      "Recommendation requests by outcome.",
		}, []string{"outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "playnext",
			Name:      "recommend_duration_seconds",
			Help:      "Time spent answering recommendation requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"outcome"}),
		catalog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "playnext",
			Name:      "catalog_items",
			Help:      "Number of games in the loaded catalog.",
		}),
	}
}

// Server serves recommendations over HTTP.
type Server struct {
	cfg      Config
	engine   Engine
	registry *prometheus.Registry
	metrics  *metrics
	router   chi.Router
}

// New builds the router. Each Server owns its metrics registry.
func New(engine Engine, cfg Config) *Server {
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = recommend.DefaultConfig().DefaultTopN
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		metrics:  newMetrics(registry),
	}
	s.metrics.catalog.Set(float64(engine.Len()))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         3600,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/recommend", s.handleRecommend)
	})
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving recommendations", "addr", s.cfg.Addr, "items", s.engine.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error       string   `json:"error"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		s.metrics.requests.WithLabelValues(outcome).Inc()
		s.metrics.latency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		outcome = "bad_request"
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	topN := s.cfg.DefaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxTopN {
			outcome = "bad_request"
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fmt.Sprintf("n must be an integer between 1 and %d", MaxTopN),
			})
			return
		}
		topN = n
	}

	result, err := app.Query(s.engine, query, topN)
	if err != nil {
		var notFound *recommend.NotFoundError
		switch {
		case errors.As(err, &notFound):
			outcome = "not_found"
			writeJSON(w, http.StatusNotFound, errorResponse{
				Error:       notFound.Error(),
				Query:       notFound.Query,
				Suggestions: notFound.Suggestions,
			})
		case errors.Is(err, recommend.ErrNotReady):
			outcome = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			outcome = "error"
			slog.Error("Recommendation failed", "query", query, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	if result.Recommendations == nil {
		result.Recommendations = []recommend.Recommendation{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	status := http.StatusOK
	if state != recommend.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"state": state.String(),
		"items": s.engine.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", chimiddleware.GetReqID(r.Context()))
	})
}
