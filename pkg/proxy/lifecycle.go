package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/charmbracelet/log"

	"openrouter-gateway/pkg/config"
)

var (
	ErrPortInUse       = errors.New("configured port is already in use")
	ErrNoPortAvailable = errors.New("no free port in configured range")
)

const (
	listenHost       = "127.0.0.1"
	stopGracePeriod  = 10 * time.Second
	shutdownDeadline = 10 * time.Second
)

// Status is an immutable snapshot for the host UI.
type Status struct {
	Running    bool   `json:"running"`
	Port       int    `json:"port,omitempty"`
	URL        string `json:"url,omitempty"`
	Configured bool   `json:"configured"`
}

// Gateway is the lifecycle surface the embedding host drives. It owns the
// listener and delegates request handling to Server. Start failures are
// reported to the caller and never retried automatically.
type Gateway struct {
	cfg    *config.GatewayConfig
	server *Server

	mu         sync.Mutex
	httpServer *http.Server
	port       int
	running    bool
}

func NewGateway(cfg *config.GatewayConfig, opts Options) *Gateway {
	return &Gateway{
		cfg:    cfg,
		server: NewServer(cfg, opts),
	}
}

// Server exposes the request pipeline, mainly for tests.
func (g *Gateway) Server() *Server {
	return g.server
}

// Start binds the configured port (or scans the range when port is 0) and
// begins serving. Calling Start while running is a no-op returning the
// current status.
func (g *Gateway) Start(ctx context.Context) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return g.statusLocked(), nil
	}

	ln, port, err := g.bindListener()
	if err != nil {
		return g.statusLocked(), err
	}

	g.server.endDrain()
	srv := &http.Server{
		Handler:           g.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// SSE responses are open-ended; the stream client timeout bounds them.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway listener failed", "err", err)
		}
	}()

	g.httpServer = srv
	g.port = port
	g.running = true
	log.Info("gateway listening", "url", g.statusLocked().URL)
	return g.statusLocked(), nil
}

// Stop drains in-flight requests for a grace period, then shuts the listener
// down. Stopping a stopped gateway is a no-op.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}

	g.server.beginDrain()
	g.server.waitIdle(time.Now().Add(stopGracePeriod))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	err := g.httpServer.Shutdown(shutdownCtx)

	g.httpServer = nil
	g.port = 0
	g.running = false
	log.Info("gateway stopped")
	return err
}

func (g *Gateway) Restart(ctx context.Context) (Status, error) {
	if err := g.Stop(ctx); err != nil {
		return g.GetStatus(), err
	}
	return g.Start(ctx)
}

func (g *Gateway) GetStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Gateway) statusLocked() Status {
	st := Status{
		Running:    g.running,
		Configured: g.cfg.Configured(),
	}
	if g.running {
		st.Port = g.port
		st.URL = fmt.Sprintf("http://%s:%d", listenHost, g.port)
	}
	return st
}

func (g *Gateway) bindListener() (net.Listener, int, error) {
	if g.cfg.Port != 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", listenHost, g.cfg.Port))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %d", ErrPortInUse, g.cfg.Port)
		}
		return ln, g.cfg.Port, nil
	}
	for port := g.cfg.PortRangeMin; port <= g.cfg.PortRangeMax; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", listenHost, port))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: [%d, %d]", ErrNoPortAvailable, g.cfg.PortRangeMin, g.cfg.PortRangeMax)
}
