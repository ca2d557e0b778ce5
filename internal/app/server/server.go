package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/http/handler"
	"github.com/sifan077/shortener/internal/http/middleware"
	"github.com/sifan077/shortener/internal/infra/prometheus"
)

// Version is reported by / and /health.
const Version = "2.0.0"

// Dependencies bundles what the HTTP server needs from the composition root.
type Dependencies struct {
	Logger    *zap.Logger
	URLs      service.URLService
	Analytics analytics.Service
	Limiter   *ratelimit.Limiter
	// Metrics is optional; nil disables request metrics.
	Metrics      *prometheus.Metrics
	Auth         middleware.IdentityConfig
	HealthChecks []handler.HealthCheck
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with middleware and every route registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Auth.Logger == nil {
		deps.Auth.Logger = deps.Logger
	}

	app := fiber.New(fiber.Config{
		AppName:               "shortener",
		ErrorHandler:          handler.ErrorHandler(deps.Logger),
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	if s.deps.Metrics != nil {
		s.app.Use(middleware.Metrics(s.deps.Metrics))
	}
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.CORS())
	s.app.Use(middleware.Identity(s.deps.Auth))
}

func (s *Server) registerRoutes() {
	handler.NewSystemHandler(handler.SystemDeps{
		Logger:  s.deps.Logger,
		Limiter: s.deps.Limiter,
		Checks:  s.deps.HealthChecks,
		Version: Version,
	}).Register(s.app)

	handler.NewAPIHandler(handler.APIDeps{
		Logger: s.deps.Logger,
		URLs:   s.deps.URLs,
	}).Register(s.app)

	handler.NewAnalyticsHandler(handler.AnalyticsDeps{
		Logger:    s.deps.Logger,
		Analytics: s.deps.Analytics,
		Limiter:   s.deps.Limiter,
	}).Register(s.app)

	// Catch-all single segment; keep last.
	handler.NewRedirectHandler(handler.RedirectDeps{
		Logger: s.deps.Logger,
		URLs:   s.deps.URLs,
	}).Register(s.app)
}
