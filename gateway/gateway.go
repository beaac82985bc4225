// Package gateway serves the operator surface: liveness, readiness and
// Prometheus metrics on a port separate from the JSON-RPC API.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardroom/core"
)

// Server is the ops HTTP server.
type Server struct {
	node   *core.Node
	logger *slog.Logger
}

// NewServer builds the ops server over the node. A nil logger falls
// back to slog.Default.
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, logger: logger}
}

// Handler returns the ops router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/invariants", s.handleInvariants)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("ops server listening", "addr", addr)
	return srv.ListenAndServe()
}

// handleReady reports not-ready while the economy is halted on an
// invariant violation; recovery from a snapshot clears it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if reason, halted := s.node.Halted(); halted {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "halted",
			"reason": reason,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	reports := s.node.VerifyInvariants()
	status := http.StatusOK
	for _, report := range reports {
		if !report.Valid {
			status = http.StatusConflict
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reports)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("ops request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
