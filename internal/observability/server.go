package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// DefaultListenAddr is where the telemetry server listens by default.
const DefaultListenAddr = "127.0.0.1:9464"

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Server exposes /healthz, /readyz and /metrics while the CLI is running.
type Server struct {
	addr    string
	obs     *Observability
	logger  *slog.Logger
	okapi   *okapi.Okapi
	server  *http.Server
	started bool
}

// NewServer creates a telemetry server. obs may be nil.
func NewServer(addr string, obs *Observability, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultListenAddr
	}
	return &Server{
		addr:   addr,
		obs:    obs,
		logger: logger,
		okapi:  okapi.New(),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start registers the routes and serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	metrics := s.obs.MetricsOrNil()
	var tracer trace.Tracer
	if ts := s.obs.TracerOrNil(); ts != nil {
		tracer = ts.Tracer()
	}
	if metrics != nil || tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return HTTPMetricsMiddleware(metrics, tracer, next)
		})
	}

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)
	if metrics != nil {
		s.okapi.HandleStd("GET", "/metrics", MetricsHandler(metrics).ServeHTTP)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	s.started = true

	s.logger.Info("telemetry server starting", slog.String("addr", s.addr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(_ context.Context) error {
	if !s.started {
		return nil
	}
	s.logger.Info("telemetry server stopping")
	return s.okapi.Shutdown(s.server)
}

// MetricsHandler serves the collector's registry in the Prometheus format.
func MetricsHandler(metrics *MetricsCollector) http.Handler {
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: StatusOK})
}

// handleReadiness runs the dependency probes. Only a failing required
// dependency turns the answer into a 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.obs == nil || s.obs.Health == nil {
		return c.OK(&HealthResponse{Status: StatusOK})
	}
	status := s.obs.Health.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status == StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
