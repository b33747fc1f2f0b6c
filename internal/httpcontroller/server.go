// internal/httpcontroller/server.go
package httpcontroller

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/recorder"
	"github.com/peekapi/peekapi/internal/systeminfo"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Recorder is the part of recorder.Recorder the HTTP layer uses.
type Recorder interface {
	GetSnapshot() ([]byte, error)
	IsHealthy() bool
	Status() recorder.Status
	Restart()
}

// Inventory provides the host inventory for /info.
type Inventory interface {
	Get(ctx context.Context) (systeminfo.Info, error)
}

// Server encapsulates Echo server and related configurations.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings

	recorder       Recorder
	inventory      Inventory
	metricsHandler http.Handler
	log            logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithInventory serves /info from inv.
func WithInventory(inv Inventory) Option {
	return func(s *Server) {
		s.inventory = inv
	}
}

// WithMetricsHandler serves /metrics from h.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New initializes a new HTTP server serving rec.
func New(settings *conf.Settings, rec Recorder, opts ...Option) *Server {
	s := &Server{
		Echo:     echo.New(),
		Settings: settings,
		recorder: rec,
		log:      logger.Global().Module("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inventory == nil {
		s.inventory = systeminfo.NewCollector(settings.Basic.DeviceName, systeminfo.DefaultCacheTTL, s.log.Module("systeminfo"))
	}

	s.initializeServer()
	return s
}

// initializeServer configures and initializes the server.
func (s *Server) initializeServer() {
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.Logger.SetOutput(&echoLogAdapter{log: s.log})
	s.Echo.HTTPErrorHandler = s.errorHandler

	s.configureMiddleware()
	s.initRoutes()
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return net.JoinHostPort(s.Settings.Basic.Host, strconv.Itoa(s.Settings.Basic.Port))
}

// Start listens and serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.Address(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	s.log.Info("HTTP server started",
		logger.String("address", srv.Addr),
		logger.Bool("public", s.Settings.Basic.Public),
		logger.Bool("api_key_set", s.Settings.Basic.APIKey != ""))

	if err := s.Echo.StartServer(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.Echo.Shutdown(ctx)
}
