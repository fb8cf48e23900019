package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"standings/pkg/logger"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// Server handles health checks and metrics
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	timeout    time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

// New creates a new observability server
func New(addr string, l *logger.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  l.Named("observability"),
		timeout: 2 * time.Second,
		checks:  make(map[string]Check),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// AddCheck registers a readiness check under name
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler exposes the routes, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	report := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		report[name] = "ok"
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

// Start runs the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting observability server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
