// Package server hosts the ssatrend transports: the TCP frame server and the
// operational HTTP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/4ea-ind/ssatrend/internal/journal"
	"github.com/4ea-ind/ssatrend/internal/protocol"
	"github.com/4ea-ind/ssatrend/internal/service"
	"github.com/4ea-ind/ssatrend/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessChecker returns nil when the server can take traffic.
type ReadinessChecker func(ctx context.Context) error

// JournalLister reads the request journal. Nil disables /api/v1/journal.
type JournalLister interface {
	List(ctx context.Context, symbol string, limit int) ([]journal.Entry, error)
}

// RouteRegistrar adds routes to the server mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the operational HTTP server.
type Server struct {
	httpServer *http.Server
	handler    RequestHandler
	journal    JournalLister
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// New creates a Server listening on cfg.Addr(). ready and jl may be nil.
func New(cfg HTTPConfig, h RequestHandler, logger *zap.Logger, ready ReadinessChecker, jl JournalLister, extra ...RouteRegistrar) *Server {
	mux := http.NewServeMux()
	s := &Server{
		handler: h,
		journal: jl,
		logger:  logger,
		mux:     mux,
		ready:   ready,
	}
	s.registerRoutes()
	for _, r := range extra {
		r.RegisterRoutes(mux)
	}

	handler := Chain(mux,
		RequestIDMiddleware,
		RecoveryMiddleware(logger),
		AccessLogMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		HeadersMiddleware,
		AnalysisRateLimit(cfg.RateLimit, cfg.RateBurst, []string{"/api/v1/analyze", "/api/v1/ws/analyze"}),
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/v1/journal", s.handleJournal)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	GPU     bool              `json:"gpu"`
	Version map[string]string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "ssatrend",
		GPU:     s.handler.Accelerated(),
		Version: version.Map(),
	})
}

// handleAnalyze runs one request. The body is the same JSON payload a TCP
// frame carries, and so is the response; analysis failures are reported in
// the body with status 200.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.DefaultMaxFrameSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			PayloadTooLarge(w, err.Error(), r.URL.Path)
			return
		}
		BadRequest(w, "failed to read request body", r.URL.Path)
		return
	}

	resp := s.handler.Handle(r.Context(), service.TransportHTTP, body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		NotFound(w, "request journal is disabled", r.URL.Path)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			BadRequest(w, "limit must be an integer between 1 and 1000", r.URL.Path)
			return
		}
		limit = n
	}

	entries, err := s.journal.List(r.Context(), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		s.logger.Error("failed to list journal", zap.Error(err))
		InternalError(w, "failed to list journal", r.URL.Path)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
