// Package api exposes the stored records and statistics over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ablyler/dvc-resale-data/internal/metrics"
	"github.com/ablyler/dvc-resale-data/internal/stats"
	"github.com/ablyler/dvc-resale-data/internal/storage"
)

// Server serves the JSON API.
type Server struct {
	store   storage.Storage
	calc    *stats.Calculator
	metrics *metrics.Metrics
	log     *slog.Logger

	// statsGuard is shared with the scraper so ad-hoc recomputations and
	// the post-run aggregation pass never overlap.
	statsGuard chan struct{}
}

// New creates a Server.
func New(store storage.Storage, calc *stats.Calculator, m *metrics.Metrics,
	statsGuard chan struct{}, log *slog.Logger) *Server {
	return &Server{
		store:      store,
		calc:       calc,
		metrics:    m,
		log:        log,
		statsGuard: statsGuard,
	}
}

// Handler returns the routed handler with CORS and latency instrumentation.
func (s *Server) Handler(promHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	route("/api/rofr-stats", s.handleStats)
	route("/api/rofr-data", s.handleData)
	route("/api/resorts", s.handleResorts)
	route("/api/usernames", s.handleUsernames)
	route("/api/rofr-monthly-stats", s.handleMonthlyStats)
	route("/api/dashboard-data", s.handleDashboard)
	route("/api/rofr-analytics", s.handleAnalytics)
	route("/api/price-trends", s.handlePriceTrends)
	route("/api/export", s.handleExport)
	route("/healthz", s.handleHealth)
	if promHandler == nil {
		promHandler = promhttp.Handler()
	}
	mux.Handle("/metrics", promHandler)

	return withCORS(mux)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) respondData(w http.ResponseWriter, data any) {
	s.respond(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, envelope{Success: false, Error: msg})
}

func (s *Server) respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "error", err)
	}
}
