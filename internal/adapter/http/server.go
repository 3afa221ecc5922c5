// Package http exposes the service's read-only query surface plus health,
// readiness, and metrics endpoints. Downstream consumers read Signal and
// Cluster records here and never mutate them.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/loss-recon/internal/cluster"
	"github.com/couchcryptid/loss-recon/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes query, health, readiness, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	store      cluster.Store
	logger     *slog.Logger
}

// NewServer creates the HTTP server with /healthz, /readyz, /metrics, and
// the /v1 query routes.
func NewServer(addr string, store cluster.Store, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/clusters", s.handleClusters)
	mux.HandleFunc("GET /v1/signals", s.handleSignals)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q, err := parseClusterQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	clusters, err := s.store.QueryClusters(r.Context(), q)
	if err != nil {
		s.logger.Error("cluster query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if clusters == nil {
		clusters = []domain.Cluster{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := cluster.SignalQuery{
		SourceType:  domain.SourceType(params.Get("sourceType")),
		EventType:   domain.EventType(params.Get("eventType")),
		ClusterID:   params.Get("clusterId"),
		Unclustered: params.Get("unclustered") == "true",
	}

	signals, err := s.store.QuerySignals(r.Context(), q)
	if err != nil {
		s.logger.Error("signal query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

func parseClusterQuery(r *http.Request) (cluster.ClusterQuery, error) {
	params := r.URL.Query()
	q := cluster.ClusterQuery{
		EventType:  domain.EventType(params.Get("eventType")),
		State:      params.Get("state"),
		Zip:        params.Get("zip"),
		CountyFIPS: params.Get("countyFips"),
		Status:     domain.VerificationStatus(params.Get("status")),
	}

	var err error
	if q.MinScore, err = parseIntParam(params.Get("minScore")); err != nil {
		return q, err
	}
	if q.MaxScore, err = parseIntParam(params.Get("maxScore")); err != nil {
		return q, err
	}
	if q.From, err = parseTimeParam(params.Get("from")); err != nil {
		return q, err
	}
	if q.To, err = parseTimeParam(params.Get("to")); err != nil {
		return q, err
	}
	return q, nil
}

func parseIntParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
