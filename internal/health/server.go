package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubeadapt/gpu-exporter/internal/errors"
	"github.com/kubeadapt/gpu-exporter/internal/observability"
	"github.com/kubeadapt/gpu-exporter/pkg/model"
)

// ReadinessChecker reports whether the exporter has published GPU data.
type ReadinessChecker interface {
	IsReady() bool
}

// PassProvider returns the latest collection pass for debugging.
type PassProvider interface {
	LatestPass() *model.PassSummary
}

// ErrorSource lists collection failures that are still active.
type ErrorSource interface {
	GetActiveErrors() []errors.CollectionError
}

// CollectTrigger runs a collection pass on demand.
type CollectTrigger interface {
	Collect() *model.PassSummary
}

// Server exposes health, readiness, metrics, and debug endpoints.
type Server struct {
	httpServer *http.Server
	metrics    *observability.Metrics
	readiness  ReadinessChecker
	passes     PassProvider
	errs       ErrorSource
	trigger    CollectTrigger
	listener   net.Listener
}

// NewServer creates a new health server on the given port.
// Pass port=0 to let the OS pick a free port (useful for tests).
// When enableDebug is true, pprof and debug endpoints are registered.
// When compress is true, /metrics responses are gzipped for clients that
// accept it.
func NewServer(
	port int,
	metrics *observability.Metrics,
	readiness ReadinessChecker,
	passes PassProvider,
	errs ErrorSource,
	trigger CollectTrigger,
	enableDebug bool,
	compress bool,
) *Server {
	s := &Server{
		metrics:   metrics,
		readiness: readiness,
		passes:    passes,
		errs:      errs,
		trigger:   trigger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	var metricsHandler http.Handler = promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{
		// gzhttp owns compression when enabled.
		DisableCompression: true,
		ErrorLog:           slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	})
	if compress {
		metricsHandler = gzhttp.GzipHandler(metricsHandler)
	}
	mux.Handle("/metrics", metricsHandler)

	if enableDebug {
		// pprof handlers, only enabled when GPU_EXPORTER_DEBUG_ENDPOINTS=true
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		// debug endpoints
		mux.HandleFunc("/debug/pass", s.handleDebugPass)
		mux.HandleFunc("/debug/errors", s.handleDebugErrors)
		mux.HandleFunc("/debug/collect", s.handleDebugCollect)
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        withLogging(slog.Default(), mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// Addr returns the listen address; after Start it reflects the bound port.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	s.listener = ln
	// Update Addr to the actual address (important when port=0).
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	ready := s.readiness.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

func (s *Server) handleDebugPass(w http.ResponseWriter, _ *http.Request) {
	pass := s.passes.LatestPass()
	if pass == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (s *Server) handleDebugErrors(w http.ResponseWriter, _ *http.Request) {
	active := s.errs.GetActiveErrors()
	if active == nil {
		active = []errors.CollectionError{}
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleDebugCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pass := s.trigger.Collect()
	if pass == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
