// Package server exposes the client's operational endpoints: health,
// readiness, Prometheus metrics and a read-only view of the query cache.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugener/blogsync/internal/store"
)

// ReadyChecker reports whether the client can serve requests.
type ReadyChecker func(ctx context.Context) error

// CacheInspector is the read-only part of store.Store used by /debug/cache.
type CacheInspector interface {
	Len() int
	Keys(tag store.Tag) []store.Key
}

// Deps holds the dependencies of the ops handler.
type Deps struct {
	Gatherer   prometheus.Gatherer // nil = no /metrics
	ReadyCheck ReadyChecker        // nil = always ready
	Cache      CacheInspector      // nil = no /debug/cache
	Logger     *slog.Logger        // nil = slog.Default()
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps, log: deps.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.recovery)
	r.Use(s.logging)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.Cache != nil {
		r.Get("/debug/cache", s.handleCache)
	}
	return r
}

type server struct {
	deps Deps
	log  *slog.Logger
}

var jsonCT = []string{"application/json"}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
