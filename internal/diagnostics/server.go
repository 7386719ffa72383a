package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
	"github.com/nerrad567/automata-agent/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds in-flight requests during Close.
const gracefulShutdownTimeout = 5 * time.Second

// Server timeouts.
const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// Status is a point-in-time view of the connectivity core.
type Status struct {
	DeviceID         string `json:"device_id"`
	MAC              string `json:"mac"`
	IP               string `json:"ip,omitempty"`
	LinkState        string `json:"link_state"`
	Registered       bool   `json:"registered"`
	RetryCount       uint32 `json:"retry_count"`
	SessionConnected bool   `json:"session_connected"`
}

// StatusSource supplies the health snapshot.
type StatusSource interface {
	Status() Status
}

// HealthChecker is an infrastructure dependency reported on /health.
// Satisfied by *database.DB, *mqtt.Client and *influxdb.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RestartRequester accepts restart requests from the HTTP side.
type RestartRequester interface {
	RequestRestart()
}

// Deps holds the dependencies required by the diagnostics server.
type Deps struct {
	Config    config.DiagnosticsConfig
	Logger    *logging.Logger
	Status    StatusSource
	Restarter RestartRequester
	Hub       *Hub // optional; created when nil
	Version   string

	// Checks are run on every /health request, keyed by component name.
	Checks map[string]HealthChecker
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg       config.DiagnosticsConfig
	logger    *logging.Logger
	status    StatusSource
	restarter RestartRequester
	hub       *Hub
	version   string
	checks    map[string]HealthChecker
	started   time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a diagnostics server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Config, deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		status:    deps.Status,
		restarter: deps.Restarter,
		hub:       hub,
		version:   deps.Version,
		checks:    deps.Checks,
		started:   time.Now(),
	}, nil
}

// Hub returns the live event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the listener in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.logger.Info("diagnostics server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diagnostics server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("diagnostics server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down diagnostics server: %w", err)
	}
	return nil
}
