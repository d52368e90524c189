package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-comiccache/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BaseConfig holds the fields every deployment of the service shares.
type BaseConfig struct {
	LogLevel        string `yaml:"log_level"`
	HTTPPort        string `yaml:"http_port"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	ServiceName     string `yaml:"service_name"`
}

// Service is the lifecycle the command drives.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
	Mux() *http.ServeMux
	GetHTTPPort() string
}

// ServerOptions carries the optional observability hooks of a BaseServer.
type ServerOptions struct {
	// Gatherer, when set, is exposed on /metrics.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

// BaseServer provides the HTTP plumbing: health checks, metrics and a
// background listener with graceful shutdown.
type BaseServer struct {
	Logger     zerolog.Logger
	HTTPPort   string
	httpServer *http.Server
	mux        *http.ServeMux
	actualAddr string
	mu         sync.RWMutex
}

// NewBaseServer creates and initializes a new BaseServer.
func NewBaseServer(logger zerolog.Logger, httpPort string, opts ServerOptions) *BaseServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HealthzHandler)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return &BaseServer{
		Logger:   logger.With().Str("component", "HTTPServer").Logger(),
		HTTPPort: httpPort,
		mux:      mux,
		httpServer: &http.Server{
			Addr:    httpPort,
			Handler: opts.HTTPMetrics.Middleware(mux),
		},
	}
}

// Start initiates the HTTP server in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.Logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Shutdown gracefully stops the HTTP server, respecting the provided context's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.Logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port the server is listening on, which differs from
// the configured one when ":0" was requested.
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.HTTPPort
	}
	return ":" + port
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
