package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/sigscope/sigscope/internal/analyzer"
	mw "github.com/sigscope/sigscope/internal/api/middleware"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/notification"
	"github.com/sigscope/sigscope/internal/observability"
	"github.com/sigscope/sigscope/internal/observability/metrics"
	"github.com/sigscope/sigscope/internal/session"
)

// Session is the capture session surface the API drives.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Snapshot(ctx context.Context) (session.Snapshot, error)

	SetProfile(ctx context.Context, p analyzer.Profile) error
	SetFrequency(ctx context.Context, freq, lnb float64) error
	SetGain(ctx context.Context, name string, value float64) error
	SetAntenna(ctx context.Context, name string) error
	SetSourceBandwidth(ctx context.Context, bw float64) error
	SetDCRemove(ctx context.Context, enabled bool) error
	SetIQReverse(ctx context.Context, enabled bool) error
	SetAGC(ctx context.Context, enabled bool) error
	SetThrottle(ctx context.Context, enabled bool, rate uint32) error
	SetParams(ctx context.Context, p analyzer.Params) error
	SetRecord(ctx context.Context, enabled bool, dir string) error
	SetAudio(ctx context.Context, cfg session.AudioConfig) error
	SetCursor(ctx context.Context, lo float64) error
	SetDisplayBandwidth(ctx context.Context, bw float64) error
	OpenInspector(ctx context.Context, req session.InspectorConfig) error
	CloseInspector(ctx context.Context, tag analyzer.InspectorID) error
}

// Notifications is the notification store surface the API reads.
type Notifications interface {
	List(filter *notification.FilterOptions) []*notification.Notification
	MarkAsRead(id string) error
}

// Server is the control API server.
type Server struct {
	echo          *echo.Echo
	config        *Config
	session       Session
	notifications Notifications
	metrics       *observability.Metrics
	hub           *Hub
	log           logger.Logger
	version       string
	startTime     time.Time

	addrMu sync.Mutex
	addr   net.Addr
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithNotifications enables the notification routes.
func WithNotifications(n Notifications) ServerOption {
	return func(s *Server) { s.notifications = n }
}

// WithMetrics enables /metrics and request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// New creates the API server for sess.
func New(config *Config, sess Session, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}

	s := &Server{
		config:    config,
		session:   sess,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.hub = NewHub(HubConfig{
		Rate:    config.StreamRate,
		Burst:   config.StreamBurst,
		Logger:  s.log.Module("stream"),
		Metrics: s.httpMetrics(),
	})

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log, s.httpMetrics()))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/session", s.getSession)
	v1.POST("/session/start", s.startSession)
	v1.POST("/session/stop", s.stopSession)
	v1.POST("/session/restart", s.restartSession)

	v1.PUT("/session/profile", s.setProfile)
	v1.PUT("/session/frequency", s.setFrequency)
	v1.PUT("/session/gain", s.setGain)
	v1.PUT("/session/antenna", s.setAntenna)
	v1.PUT("/session/source-bandwidth", s.setSourceBandwidth)
	v1.PUT("/session/dc-remove", s.setToggle(Session.SetDCRemove))
	v1.PUT("/session/iq-reverse", s.setToggle(Session.SetIQReverse))
	v1.PUT("/session/agc", s.setToggle(Session.SetAGC))
	v1.PUT("/session/throttle", s.setThrottle)
	v1.PUT("/session/record", s.setRecord)
	v1.PUT("/session/audio", s.setAudio)
	v1.PUT("/session/cursor", s.setCursor)
	v1.PUT("/session/bandwidth", s.setDisplayBandwidth)
	v1.PUT("/session/params", s.setParams)

	v1.POST("/inspectors", s.openInspector)
	v1.DELETE("/inspectors/:tag", s.closeInspector)

	if s.notifications != nil {
		v1.GET("/notifications", s.listNotifications)
		v1.PUT("/notifications/:id/read", s.markNotificationRead)
	}

	v1.GET("/stream", s.hub.HandleStream)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"stream_clients": s.hub.ClientCount(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	s.echo.Listener = ln

	s.log.Info("starting HTTP server", logger.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start("") }()

	select {
	case err := <-errCh:
		s.hub.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return s.shutdown(errCh)
}

func (s *Server) shutdown(errCh <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Hub returns the stream hub. Register it on the event bus to feed clients.
func (s *Server) Hub() *Hub { return s.hub }

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}
