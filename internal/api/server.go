// SPDX-License-Identifier: MIT

// Package api serves the read-only dashboard surface over previously
// persisted delivery records. It contains no pipeline behaviour.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khaas/earshot/internal/cache"
	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/health"
)

// RecordReader is the slice of the record store the API needs.
type RecordReader interface {
	List(ctx context.Context, limit int) ([]deliver.Record, error)
	Get(ctx context.Context, id detect.EventID) (*deliver.Record, error)
}

// Config holds the API server options.
type Config struct {
	Listen       string
	RateLimitRPM int
	CacheTTL     time.Duration
	// TriggerFeedURL enables the trigger feed passthrough endpoint.
	TriggerFeedURL string
}

// Server is the read API.
type Server struct {
	cfg     Config
	records RecordReader
	cache   cache.Cache
	health  *health.Manager
	client  *http.Client
}

// NewServer wires the read API over its collaborators.
func NewServer(cfg Config, records RecordReader, c cache.Cache, h *health.Manager) *Server {
	if c == nil {
		c = cache.NewNoop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		records: records,
		cache:   c,
		health:  h,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Router builds the chi router with the middleware stack applied
// outermost-first: recoverer, request ID, access log, rate limit.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)
	if s.cfg.RateLimitRPM > 0 {
		r.Use(httprate.Limit(s.cfg.RateLimitRPM, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/recordings", s.handleListRecordings)
		r.Get("/recordings/{id}", s.handleGetRecording)
		r.Get("/trigger/latest", s.handleTriggerFeed)
	})
	return r
}

// ListenAndServe runs the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
