// Package http exposes a VecFS node over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/logging"
	"github.com/fyrsmithlabs/vecfs/internal/secrets"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

// HeaderRequester carries the full name ("@@node/profile") of the caller.
const HeaderRequester = "X-VecFS-Requester"

// HeaderRedactions reports how many secrets were removed from a saved item.
const HeaderRedactions = "X-VecFS-Redactions"

const (
	ctxKeyProfile   = "vecfs.profile"
	ctxKeyRequester = "vecfs.requester"
)

// Server provides HTTP endpoints for a VectorFS.
type Server struct {
	echo    *echo.Echo
	fs      *vectorfs.VectorFS
	logger  *zap.Logger
	config  *Config
	limiter *ipRateLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int

	// AccessLogLimit is the page size of access log listings without ?limit.
	AccessLogLimit int

	// Redactor scrubs saved text before it is embedded. Nil saves text as sent.
	Redactor *secrets.Redactor
}

// NewServer creates a new HTTP server.
func NewServer(fs *vectorfs.VectorFS, logger *zap.Logger, cfg *Config) (*Server, error) {
	if fs == nil {
		return nil, fmt.Errorf("vector fs cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		fs:     fs,
		logger: logger,
		config: cfg,
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	if cfg.RateLimit > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimit, cfg.RateBurst)
		e.Use(s.limiter.Middleware())
	}
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	p := s.echo.Group("/api/v1/profiles/:profile", s.requireAccess)
	p.POST("/init", s.handleInitProfile)
	p.GET("/entries", s.handleGetEntry)
	p.DELETE("/entries", s.handleDeleteEntry)
	p.POST("/folders", s.handleCreateFolder)
	p.POST("/items", s.handleSaveItem)
	p.POST("/copy", s.handleCopy)
	p.POST("/move", s.handleMove)
	p.PUT("/permissions", s.handleSetPermissions)
	p.POST("/search", s.handleSearch)
	p.POST("/deep-search", s.handleDeepSearch)
	p.GET("/access-logs", s.handleAccessLogs)
}

// requireAccess resolves the target profile and the requester for every
// profile route. Requests without a valid requester are rejected.
func (s *Server) requireAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(HeaderRequester)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, HeaderRequester+" header is required")
		}
		requester, err := identity.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid requester name")
		}
		profile, err := s.fs.NodeName().WithProfile(c.Param("profile"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid profile name")
		}

		ctx := logging.WithAccess(c.Request().Context(), profile, requester)
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.IsValidRequestID(id) {
			ctx = logging.WithRequestID(ctx, id)
		}
		c.SetRequest(c.Request().WithContext(ctx))
		c.Set(ctxKeyProfile, profile)
		c.Set(ctxKeyRequester, requester)
		return next(c)
	}
}

func access(c echo.Context) (profile, requester identity.Name) {
	profile, _ = c.Get(ctxKeyProfile).(identity.Name)
	requester, _ = c.Get(ctxKeyRequester).(identity.Name)
	return profile, requester
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
