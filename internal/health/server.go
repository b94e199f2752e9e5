// Package health exposes the session and cache state of a running zonedeck
// process over HTTP, next to the Prometheus registry. It is only started
// when a metrics address is configured.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Overall readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Per-check states.
const (
	StateOK       = "ok"
	StateFailed   = "failed"
	StateDegraded = "degraded"
)

// HealthChecker fails when a component cannot serve requests at all.
type HealthChecker func(ctx context.Context) error

// DegradedChecker reports a component that still works but with reduced
// quality, such as zones served from a cache whose refresh failed.
type DegradedChecker func(ctx context.Context) (degraded bool, message string)

// CheckResult is one line of a readiness report.
type CheckResult struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Response is the body of /health and /ready.
type Response struct {
	Status  string        `json:"status"`
	Version string        `json:"version,omitempty"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// check is a registered readiness check; exactly one of hard or soft is set.
type check struct {
	name string
	hard HealthChecker
	soft DegradedChecker
}

func (c check) run(ctx context.Context) CheckResult {
	res := CheckResult{Name: c.name, State: StateOK}
	if c.hard != nil {
		if err := c.hard(ctx); err != nil {
			res.State, res.Detail = StateFailed, err.Error()
		}
		return res
	}
	if degraded, msg := c.soft(ctx); degraded {
		res.State, res.Detail = StateDegraded, msg
	}
	return res
}

// Server serves /health, /ready and /metrics.
type Server struct {
	addr    string
	version string
	timeout time.Duration
	logger  *slog.Logger
	mux     *http.ServeMux

	mu     sync.RWMutex
	checks []check

	srv *http.Server
	ln  net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTimeout bounds a whole /ready evaluation.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithVersion adds the build version to every response.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New returns a server for addr (host:port). Nothing listens until Start.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// RegisterChecker adds a check whose failure makes the process not ready.
// Registering a name twice replaces the earlier check.
func (s *Server) RegisterChecker(name string, fn HealthChecker) {
	s.register(check{name: name, hard: fn})
}

// RegisterDegradedChecker adds a check that can only downgrade the report.
func (s *Server) RegisterDegradedChecker(name string, fn DegradedChecker) {
	s.register(check{name: name, soft: fn})
}

func (s *Server) register(c check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.checks {
		if s.checks[i].name == c.name {
			s.checks[i] = c
			return
		}
	}
	s.checks = append(s.checks, c)
	s.logger.Debug("health check registered", slog.String("check", c.name))
}

// Evaluate runs every registered check concurrently and folds the results
// into one report. Results keep registration order.
func (s *Server) Evaluate(ctx context.Context) Response {
	s.mu.RLock()
	checks := append([]check(nil), s.checks...)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = c.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{Status: StatusReady, Version: s.version, Checks: results}
	for _, r := range results {
		switch r.State {
		case StateFailed:
			resp.Status = StatusNotReady
			s.logger.Warn("readiness check failed",
				slog.String("check", r.Name),
				slog.String("error", r.Detail),
			)
		case StateDegraded:
			if resp.Status == StatusReady {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "healthy", Version: s.version})
}

// handleReady answers 503 only when a hard check fails; degraded is still 200.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.Evaluate(r.Context())
	code := http.StatusOK
	if resp.Status == StatusNotReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the routes without listening.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the address and serves in the background. Bind failures are
// returned; later serve errors are only logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server: %w", err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr is the bound address after Start, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops serving; it is a no-op if Start never succeeded.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
