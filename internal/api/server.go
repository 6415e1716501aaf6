package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/rpigarage/internal/history"
	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
	"github.com/nerrad567/rpigarage/internal/infrastructure/logging"
	"github.com/nerrad567/rpigarage/internal/reconcile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DoorSource provides the engine's view of the door. *reconcile.Engine
// satisfies it.
type DoorSource interface {
	Snapshot() reconcile.Snapshot
}

// BrokerStatus reports the MQTT connection. *mqtt.Client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Thing  string
	Door   DoorSource
	Broker BrokerStatus

	// Optional.
	History  history.Repository
	Database HealthChecker
	InfluxDB HealthChecker

	// Hub is the event hub the engine broadcasts to. If nil, the server
	// creates its own, which then receives no events.
	Hub *Hub

	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	thing    string
	door     DoorSource
	broker   BrokerStatus
	history  history.Repository
	database HealthChecker
	influxdb HealthChecker
	hub      *Hub
	version  string
	started  time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Door == nil {
		return nil, fmt.Errorf("door source is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		thing:    deps.Thing,
		door:     deps.Door,
		broker:   deps.Broker,
		history:  deps.History,
		database: deps.Database,
		influxdb: deps.InfluxDB,
		hub:      hub,
		version:  deps.Version,
	}, nil
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use) are returned; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go s.hub.Run(srvCtx)

	s.started = time.Now()
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and shuts the server down, waiting up
// to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
