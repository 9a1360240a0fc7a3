// Package api is the HTTP host adapter: it turns incoming requests into
// controller events and serves the /_shell admin and client endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/notification"
	"github.com/ridecheck/ridecheck/internal/observability/metrics"
	"github.com/ridecheck/ridecheck/internal/shell"
	"github.com/ridecheck/ridecheck/internal/telemetry"
)

const (
	shellPrefix         = "/_shell"
	defaultShutdown     = 10 * time.Second
	maxPushPayloadBytes = 4 << 10
	heartbeatInterval   = 30 * time.Second
	maxSSEDuration      = 30 * time.Minute
)

// ControllerFactory builds a fresh controller for the deployed version.
type ControllerFactory func() (*shell.Controller, error)

// Deps are the components the server routes to.
type Deps struct {
	Registration  *shell.Registration
	NewController ControllerFactory
	Storage       shell.Storage
	Notifications *notification.Service
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Reporter    *telemetry.Reporter
	Logger      logger.Logger
}

// Server is the echo application in front of the cache controller.
type Server struct {
	echo     *echo.Echo
	settings conf.ServerSettings
	deps     Deps
	log      logger.Logger

	heartbeat time.Duration
}

// New validates deps and registers every route.
func New(settings conf.ServerSettings, deps Deps) (*Server, error) {
	if deps.Registration == nil {
		return nil, errors.Categorize(errors.New("registration is required"), errors.CategoryConfig, "api")
	}
	if deps.Notifications == nil {
		return nil, errors.Categorize(errors.New("notification service is required"), errors.CategoryConfig, "api")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		settings:  settings,
		deps:      deps,
		log:       log.Module("api"),
		heartbeat: heartbeatInterval,
	}

	e.Use(middleware.Recover())
	e.Use(s.observe)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	g := s.echo.Group(shellPrefix)

	// Used by open application instances.
	g.GET("/events", s.streamEvents)
	g.GET("/notifications", s.listNotifications)
	g.POST("/notifications/:id/action", s.notificationAction)
	g.POST("/sync", s.sync)
	s.registerPWARoutes(g)

	admin := g.Group("", s.requireAdmin)
	admin.GET("/status", s.status)
	admin.GET("/generations", s.listGenerations)
	admin.DELETE("/generations/:name", s.deleteGeneration)
	admin.POST("/update", s.update)
	admin.POST("/push", s.push, s.pushRateLimiter())

	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	s.echo.Any("/*", s.proxy)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on the configured listen address until Shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("listen", s.settings.Listen))
	if err := s.echo.Start(s.settings.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Categorize(fmt.Errorf("http server: %w", err), errors.CategoryNetwork, "api")
	}
	return nil
}

// Shutdown drains in-flight requests for at most the configured grace.
func (s *Server) Shutdown(ctx context.Context) error {
	grace := s.settings.ShutdownGrace.Std()
	if grace <= 0 {
		grace = defaultShutdown
	}
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// observe logs and counts every request.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		status := c.Response().Status
		elapsed := time.Since(start)
		if s.deps.HTTPMetrics != nil {
			s.deps.HTTPMetrics.Observe(c.Path(), c.Request().Method, status, elapsed)
		}
		s.log.Debug("request served",
			logger.String("method", c.Request().Method),
			logger.String("uri", c.Request().RequestURI),
			logger.Int("status", status),
			logger.Duration("elapsed", elapsed))
		return nil
	}
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
