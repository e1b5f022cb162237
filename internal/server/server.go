package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matthisholleville/authgate/internal/cfg"
	"github.com/matthisholleville/authgate/internal/metrics"
	"github.com/matthisholleville/authgate/internal/storage"
	"github.com/matthisholleville/authgate/internal/webhook"
	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	apiKeyHeader        = "X-API-Key"
	correlationIDHeader = "X-Correlation-ID"
)

type Server struct {
	Router        *echo.Echo
	Logger        logger.Logger
	Config        *cfg.Config
	Live          *int32
	Ready         *int32
	Registry      *prometheus.Registry
	Storage       storage.Interface
	Loader        *storage.Loader
	AuthConfig    *webhook.AuthConfig
	Authenticator *webhook.Authenticator
}

// NewServer builds the HTTP service. It reads the auth hook configuration and
// performs the first metadata load: an invalid document prevents startup.
func NewServer(ctx context.Context, log logger.Logger, config *cfg.Config) (*Server, error) {
	s := &Server{
		Logger:        log,
		Config:        config,
		Router:        echo.New(),
		Registry:      prometheus.NewRegistry(),
		Authenticator: webhook.NewAuthenticator(nil, log),
	}

	if err := s.configureAuthHook(); err != nil {
		return nil, err
	}
	if err := s.configureStorage(ctx); err != nil {
		return nil, err
	}
	if err := s.configureMetrics(); err != nil {
		return nil, err
	}
	s.configureRouter()
	s.configureTracing()
	s.registerHealthcheckRoutes()
	s.withCORSMiddleware()
	s.configureV1Routes()
	s.configureAdminRoutes()
	return s, nil
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe() error {
	s.Logger.Info("Starting server", zap.String("host", s.Config.HTTP.Addr))
	return s.Router.Start(s.Config.HTTP.Addr)
}

func (s *Server) GetRouter() *echo.Echo {
	return s.Router
}

func (s *Server) GetHealthStatus() (*int32, *int32) {
	return s.Live, s.Ready
}

func (s *Server) configureRouter() {
	s.Router.HideBanner = true
	s.Router.HidePort = true
}

// configureTracing starts a server span per request, continuing the trace
// propagated by the caller.
func (s *Server) configureTracing() {
	s.Router.Use(echo.WrapMiddleware(otelhttp.NewMiddleware("authgate",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/live", "/ready", "/metrics":
				return false
			}
			return true
		}),
	)))
}

// registerHealthcheckRoutes registers the healthcheck routes
func (s *Server) registerHealthcheckRoutes() {
	s.Live = new(int32)
	s.Ready = new(int32)
	*s.Live = 1
	*s.Ready = 1

	s.Router.GET("/live", func(c echo.Context) error {
		if atomic.LoadInt32(s.Live) == 1 {
			return c.String(http.StatusOK, "OK")
		}
		return c.String(http.StatusServiceUnavailable, "KO")
	})
	s.Router.GET("/ready", func(c echo.Context) error {
		if atomic.LoadInt32(s.Ready) == 1 {
			return c.String(http.StatusOK, "OK")
		}
		return c.String(http.StatusServiceUnavailable, "KO")
	})
}

func (s *Server) withCORSMiddleware() {
	if !s.Config.HTTP.CORS.Enabled {
		s.Logger.Warn("CORS is disabled")
		return
	}

	s.Router.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.Config.HTTP.CORS.AllowedOrigins,
		AllowMethods:     s.Config.HTTP.CORS.AllowedMethods,
		AllowHeaders:     s.Config.HTTP.CORS.AllowedHeaders,
		AllowCredentials: s.Config.HTTP.CORS.AllowCredentials,
	}))
}

// configureMetrics registers the request and domain metrics on the server
// registry and exposes them on /metrics.
func (s *Server) configureMetrics() error {
	if err := s.Registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := metrics.NewMetrics(s.Registry).RegisterCustomMetrics(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	s.Router.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:                 "authgate",
		Subsystem:                 "http",
		Registerer:                s.Registry,
		DoNotUseRequestPathFor404: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	s.Router.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.Registry}))
	return nil
}

func (s *Server) configureAuthHook() error {
	authConfig, err := webhook.LoadAuthConfig(s.Config.AuthHook.ConfigFile)
	if err != nil {
		return err
	}
	s.AuthConfig = authConfig
	s.Logger.Info("Auth hook configured", zap.String("version", authConfig.Version))
	return nil
}

func (s *Server) configureStorage(ctx context.Context) error {
	store, err := storage.NewStorage(ctx, s.Config.Metadata.Engine, s.Logger)
	if err != nil {
		return err
	}
	s.Storage = store
	s.Loader = storage.NewLoader(store, s.Config.Metadata.Path, s.Config.Metadata.ResolveConcurrency, s.Logger)
	if _, err := s.Loader.Load(ctx); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	return nil
}

// configureV1Routes registers the routes served to authenticated callers.
func (s *Server) configureV1Routes() {
	v1 := s.Router.Group("/v1", s.webhookMiddleware)
	v1.GET("/session", s.GetSession)
	v1.POST("/commands/:subgraph/:command/authorize", s.AuthorizeCommand)
}

// configureAdminRoutes registers the admin routes, protected by the admin API key.
func (s *Server) configureAdminRoutes() {
	if s.Config.HTTP.AdminAPIKey == "" {
		s.Logger.Warn("Admin API key is not set. Admin routes are disabled.")
		return
	}

	admin := s.Router.Group("/v1/admin", s.adminMiddleware)
	admin.GET("/commands", s.ListCommands)
	admin.POST("/metadata/reload", s.ReloadMetadata)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		apiKey := c.Request().Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.Config.HTTP.AdminAPIKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
		}
		return next(c)
	}
}
