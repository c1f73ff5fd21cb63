package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/api/handlers"
	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/policy"
)

// Dependencies are the controller components the API reads from
type Dependencies struct {
	Stats    handlers.StatsProvider
	Switches handlers.SwitchLister
	MACs     handlers.MACReader
	Policy   policy.Checker

	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer

	// Settings is reported by /api/v1/config
	Settings models.ConfigResponse
}

// Server represents the HTTP API server. It uses the Gin framework and
// only reads controller state.
type Server struct {
	config     *Config
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine

	mu   sync.Mutex
	addr net.Addr
}

// NewAPIServer creates and initializes a new API server instance.
// It sets up the Gin router, configures middleware, and registers all routes.
// A nil cfg uses DefaultConfig.
func NewAPIServer(cfg *Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Stats == nil || deps.Switches == nil || deps.MACs == nil || deps.Policy == nil {
		return nil, errors.New("api server needs stats, switches, MACs and policy")
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config: cfg,
		deps:   deps,
		router: gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// Start binds the listener and serves in a background goroutine. Bind
// errors are returned; the server runs asynchronously after that.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	log.Infof("Starting API server on %s", ln.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("API server failed: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the HTTP server, waiting up to
// ShutdownTimeout for in-flight requests. A zero timeout waits
// indefinitely.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	log.Info("Shutting down API server...")

	ctx := context.Background()
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("API server forced to shutdown: %v", err)
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// GetRouter returns the underlying Gin router instance, for tests that
// inject requests without starting the HTTP server
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
