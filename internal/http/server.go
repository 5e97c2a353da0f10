// Package http serves the sketchd REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/session"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
)

// maxBodyBytes bounds request bodies; instructions are short text.
const maxBodyBytes = "64K"

// Server provides HTTP endpoints for drawing sessions.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	logger   *logging.Logger
	config   *Config

	nc        *nats.Conn
	prefix    string
	telemetry *telemetry.Telemetry
	metrics   *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithEvents enables GET /api/v1/sessions/:id/events, streaming the
// session's events from NATS.
func WithEvents(nc *nats.Conn, prefix string) Option {
	return func(s *Server) {
		s.nc = nc
		s.prefix = prefix
	}
}

// WithTelemetry reports telemetry health on /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithMetrics sets the request metrics recorder.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(sessions *session.Manager, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8642}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	s := &Server{
		echo:     e,
		sessions: sessions,
		logger:   logging.Wrap(logger.Named("http")),
		config:   cfg,
		prefix:   "sketchd",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(nil, logger)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(s.metrics.Middleware())
	e.Use(s.requestContext)

	s.registerRoutes()
	return s, nil
}

// requestContext attaches correlation ids to the request context and logs
// each request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		if id := c.Param("id"); id != "" {
			ctx = logging.WithSessionID(ctx, id)
		}
		ctx = logging.WithLogger(ctx, s.logger)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)

		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/sessions/:id/state", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.POST("/sessions/:id/instructions", s.handleInstruction)
	v1.POST("/sessions/:id/confirm", s.handleConfirm)
	v1.POST("/sessions/:id/reject", s.handleReject)
	v1.POST("/sessions/:id/undo", s.handleUndo)
	v1.POST("/sessions/:id/stop", s.handleStop)
	v1.POST("/sessions/:id/resume", s.handleResume)
	v1.GET("/sessions/:id/events", s.handleEvents)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// errorHandler maps domain errors to status codes and writes
// {"error": "..."} bodies.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := statusFor(err)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		if werr := c.JSON(code, map[string]string{"error": msg}); werr != nil {
			e.Logger.Error(werr)
		}
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, controller.ErrEmptyInstruction):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "request cancelled before the instruction finished"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
