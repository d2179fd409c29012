// Package server implements C8: the HTTP request orchestrator that parses
// each request's query string, drives C1..C6 in order, and writes the
// resulting artifact with the response headers spec.md §6 names.
//
// Grounded on the teacher's dashboard.Server: a bare http.ServeMux, route
// registration via HandleFunc, a withCORS-style wrapping middleware, and an
// explicit http.Server with finite Read/Write/Idle timeouts rather than
// http.ListenAndServe's defaults.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/subconverter-go/subconverter/config"
	"github.com/subconverter-go/subconverter/fetcher"
	"github.com/subconverter-go/subconverter/logger"
	"github.com/subconverter-go/subconverter/metrics"
	"github.com/subconverter-go/subconverter/script"
	"github.com/subconverter-go/subconverter/template"
	"github.com/subconverter-go/subconverter/worker"
)

// Server ties the conversion pipeline packages to an HTTP surface.
type Server struct {
	cfg          *config.Store
	fetcher      *fetcher.Fetcher
	scriptEngine *script.Engine
	templates    *template.Engine
	metrics      *metrics.Metrics
	pool         *worker.WorkerPool
	log          *logger.Logger

	// backlog bounds the number of requests concurrently waiting on the
	// worker pool, shaping net/http's unbounded goroutine-per-connection
	// model to max_pending_connections (net/http exposes no listen-backlog
	// knob beyond the OS default, so this is applied in front of Submit
	// rather than at net.Listen).
	backlog chan struct{}

	mux *http.ServeMux
}

// New constructs a Server. pool must already have Start called on it.
func New(cfg *config.Store, f *fetcher.Fetcher, se *script.Engine, te *template.Engine, m *metrics.Metrics, pool *worker.WorkerPool, log *logger.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		fetcher:      f,
		scriptEngine: se,
		templates:    te,
		metrics:      m,
		pool:         pool,
		log:          log,
		backlog:      make(chan struct{}, cfg.Load().MaxPendingConnections),
		mux:          http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on cfg.ListenAddr and blocks until
// the process exits or the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.cfg.Load()
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("server: listening on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe() // #nosec G114 -- replaced with explicit http.Server above
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/sub", s.withCommon(s.handleSub))
	s.mux.HandleFunc("/clash", s.withCommon(s.handleClashShortcut))
	s.mux.HandleFunc("/surge", s.withCommon(s.handleSurgeShortcut))
	s.mux.HandleFunc("/getruleset", s.withCommon(s.handleGetRuleset))
	s.mux.HandleFunc("/getprofile", s.withCommon(s.handleGetProfile))
	s.mux.HandleFunc("/render", s.withCommon(s.handleRender))
	s.mux.HandleFunc("/qx-script", s.withCommon(s.handleQXScript))
	s.mux.HandleFunc("/qx-rewrite", s.withCommon(s.handleQXRewrite))
	s.mux.HandleFunc("/sub2clashr", s.withCommon(s.handleSub2ClashR))
	s.mux.HandleFunc("/surge2clash", s.withCommon(s.handleSurge2Clash))
}

// withCommon applies the response headers every endpoint shares (spec.md
// §6 "Every response"), the loop guard, and bounds concurrent in-flight
// requests to max_pending_connections ahead of handing work to the worker
// pool.
func (s *Server) withCommon(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Connection", "close")

		cfg := s.cfg.Load()
		if cfg.UserAgent != "" && r.Header.Get("User-Agent") == cfg.UserAgent {
			http.Error(w, "loop detected", http.StatusInternalServerError)
			return
		}

		select {
		case s.backlog <- struct{}{}:
		default:
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer func() { <-s.backlog }()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		done := make(chan struct{})
		s.pool.Submit(func() {
			defer close(done)
			h(rec, r)
		})
		<-done
		s.metrics.ObserveRequest(r.URL.Path, rec.status < 400, time.Since(start))
	}
}

// statusRecorder captures the status code a handler writes so withCommon
// can report success/failure to metrics without every handler doing it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// tokenValid reports whether q's `token` parameter matches the configured
// API access token. A process with no configured token accepts any value
// (local/dev posture), matching DefaultConfig's empty APIAccessToken.
func tokenValid(token, configured string) bool {
	if configured == "" {
		return true
	}
	return token == configured
}
