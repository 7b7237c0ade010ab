package proxy

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"openrouter-gateway/pkg/config"
	"openrouter-gateway/pkg/dedup"
	"openrouter-gateway/pkg/logstore"
	"openrouter-gateway/pkg/registry"
	"openrouter-gateway/pkg/upstream"
	"openrouter-gateway/pkg/usagelog"
)

const maxRequestBodyBytes = 8 << 20

// ModelSource is the read-only slice of the registry the server consumes:
// the catalog for /v1/models and capability lookups for validation.
type ModelSource interface {
	registry.Provider
	Models(ctx context.Context) ([]upstream.Model, error)
}

// Server owns the request-handling pipeline: CORS, correlation ids,
// duplicate detection, validation, upstream forwarding and response
// translation. Listener binding and start/stop live in Gateway.
type Server struct {
	cfg      *config.GatewayConfig
	client   *upstream.Client
	registry ModelSource
	detector *dedup.Detector
	logs     *logstore.Store
	usage    *usagelog.Store

	handler   http.Handler
	startedAt time.Time

	requestSeq     atomic.Int64
	activeRequests atomic.Int64
	draining       atomic.Bool
}

// Options are the injectable collaborators; zero fields get production
// defaults derived from cfg.
type Options struct {
	Client   *upstream.Client
	Registry ModelSource
	Detector *dedup.Detector
	Logs     *logstore.Store
	Usage    *usagelog.Store
}

func NewServer(cfg *config.GatewayConfig, opts Options) *Server {
	client := opts.Client
	if client == nil {
		client = upstream.NewClient(upstream.Config{
			BaseURL:         cfg.UpstreamBaseURL,
			APIKey:          cfg.APIKey,
			ProvisioningKey: cfg.ProvisioningKey,
			Timeout:         time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
			StreamTimeout:   time.Duration(cfg.StreamTimeoutSeconds) * time.Second,
		})
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(client, config.DefaultModelsSnapshotPath(), 0)
	}
	detector := opts.Detector
	if detector == nil {
		detector = dedup.New(time.Duration(cfg.DuplicateWindowMS)*time.Millisecond, nil)
	}

	s := &Server{
		cfg:       cfg,
		client:    client,
		registry:  reg,
		detector:  detector,
		logs:      opts.Logs,
		usage:     opts.Usage,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.drainMiddleware)
	r.Use(s.requestContextMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/v1/credits", s.handleCredits)
	r.Get("/events/logs", s.handleLogEvents)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "no handler for "+r.URL.Path, "invalid_request_error", "not_found")
	})

	s.handler = r
	return s
}

// Handler exposes the assembled pipeline to the lifecycle manager and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) drainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.Header().Set("Retry-After", "3")
			writeErrorBody(w, http.StatusServiceUnavailable, "gateway shutting down", "server_error", "shutting_down")
			return
		}
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// beginDrain stops accepting proxy work; in-flight requests keep their slot.
func (s *Server) beginDrain() {
	s.draining.Store(true)
}

func (s *Server) endDrain() {
	s.draining.Store(false)
}

// waitIdle blocks until in-flight requests finish or the deadline passes.
func (s *Server) waitIdle(deadline time.Time) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		if s.activeRequests.Load() <= 0 || !time.Now().Before(deadline) {
			return
		}
		<-t.C
	}
}
