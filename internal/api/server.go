package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/inkblue/inkblue-core/internal/infrastructure/config"
	"github.com/inkblue/inkblue-core/internal/infrastructure/logging"
	"github.com/inkblue/inkblue-core/internal/registry"
	"github.com/inkblue/inkblue-core/internal/settings"
)

// gracefulShutdownTimeout bounds the wait for in-flight requests during
// shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Subsystem is the power and policy control surface the server drives.
// *coordinator.Coordinator satisfies it.
type Subsystem interface {
	Enable(ctx context.Context) bool
	Disable(ctx context.Context)
	Enabled() bool
	AutoDetectActive() bool
	AutoConnectActive() bool
}

// DeviceStore is the registry view used by the device endpoints.
// *registry.Registry satisfies it.
type DeviceStore interface {
	Devices() []registry.Peripheral
	DeviceByAddress(address string) (registry.Peripheral, bool)
	ConnectDevice(ctx context.Context, device registry.Peripheral, onSuccess registry.OnSuccess) bool
	DisconnectDevice(ctx context.Context, device registry.Peripheral, onSuccess registry.OnSuccess) bool
	TrustDevice(ctx context.Context, device registry.Peripheral, onSuccess registry.OnSuccess) bool
	UntrustDevice(ctx context.Context, device registry.Peripheral, onSuccess registry.OnSuccess) bool
	RemoveDevice(ctx context.Context, device registry.Peripheral, onSuccess registry.OnSuccess) bool
}

// History is the sighting journal view used by the journal endpoints.
// *registry.Journal satisfies it.
type History interface {
	KnownDevices(ctx context.Context, limit int) ([]registry.Sighting, error)
	Forget(ctx context.Context, address string) error
}

// ToggleStore is the settings view used by the settings endpoints.
// *settings.Store satisfies it.
type ToggleStore interface {
	Get(key string) bool
	Set(ctx context.Context, key string, value bool) error
	All() []settings.KeyValue
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Devices   DeviceStore
	Subsystem Subsystem
	History   History // optional
	Settings  ToggleStore
	Version   string
}

// Server is the HTTP control server for the inkblue daemon. It manages
// the listener, routes, middleware and the WebSocket hub.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	devices   DeviceStore
	subsystem Subsystem
	history   History
	settings  ToggleStore
	version   string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Subsystem == nil {
		return nil, fmt.Errorf("subsystem is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		devices:   deps.Devices,
		subsystem: deps.Subsystem,
		history:   deps.History,
		settings:  deps.Settings,
		version:   deps.Version,
	}, nil
}

// Hub returns the WebSocket hub so callers can feed it events. Nil
// until Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the WebSocket hub and the HTTP listener. The listener
// runs in a background goroutine; stop it with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the server, waiting for in-flight
// requests up to the shutdown timeout.
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

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
