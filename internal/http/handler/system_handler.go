package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/http/middleware"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	healthProbeTimeout = 2 * time.Second
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type SystemDeps struct {
	Logger  *zap.Logger
	Limiter *ratelimit.Limiter
	Checks  []HealthCheck
	Version string
}

// SystemHandler serves the banner, health and rate limit administration.
type SystemHandler struct {
	logger  *zap.Logger
	limiter *ratelimit.Limiter
	checks  []HealthCheck
	version string
}

func NewSystemHandler(deps SystemDeps) *SystemHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemHandler{
		logger:  logger.Named("system"),
		limiter: deps.Limiter,
		checks:  deps.Checks,
		version: deps.Version,
	}
}

func (h *SystemHandler) Register(router fiber.Router) {
	router.Get("/", h.Root)
	router.Get("/health", h.Health)

	auth := middleware.RequireIdentity()
	router.Get("/rate-limits/status", h.RateLimitStatus)
	router.Get("/rate-limits/config", h.RateLimitConfigs)
	router.Put("/rate-limits/config", auth, h.UpdateRateLimitConfig)
	router.Delete("/rate-limits/", auth, h.ResetRateLimit)
}

// Root handles GET /
func (h *SystemHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     "URL Shortener API",
		"version":     h.version,
		"description": "URL shortening service with analytics and rate limiting",
		"health":      "/health",
	})
}

type ServiceHealth struct {
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	Configurations int    `json:"configurations,omitempty"`
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Services  map[string]ServiceHealth `json:"services"`
}

// Health handles GET /health. Any failing probe turns the response into a 503.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Services:  make(map[string]ServiceHealth, len(h.checks)+2),
	}

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
		err := check.Probe(ctx)
		cancel()

		if err != nil {
			h.logger.Warn("health probe failed", zap.String("service", check.Name), zap.Error(err))
			resp.Status = statusUnhealthy
			resp.Services[check.Name] = ServiceHealth{Status: statusUnhealthy, Error: err.Error()}
			continue
		}
		resp.Services[check.Name] = ServiceHealth{Status: statusHealthy}
	}

	if h.limiter != nil {
		resp.Services["rate_limiter"] = ServiceHealth{
			Status:         statusHealthy,
			Configurations: len(h.limiter.Configs()),
		}
	}
	resp.Services["analytics"] = ServiceHealth{Status: statusHealthy}

	status := fiber.StatusOK
	if resp.Status != statusHealthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

type rateLimitStatusResponse struct {
	Identifier string `json:"identifier"`
	Endpoint   string `json:"endpoint"`
	*ratelimit.Info
}

// RateLimitStatus handles GET /rate-limits/status?endpoint=&identifier=.
// Without an identifier the caller's own key for the endpoint is used.
func (h *SystemHandler) RateLimitStatus(c *fiber.Ctx) error {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		return apperror.Validation("endpoint is required", "endpoint", nil)
	}
	identifier := c.Query("identifier")
	if identifier == "" {
		identifier = h.limiter.KeyFor(endpoint, middleware.ClientIP(c), middleware.IdentityFrom(c))
	}

	info, err := h.limiter.Status(c.UserContext(), identifier, endpoint)
	if err != nil {
		return err
	}
	middleware.SetRateLimitHeaders(c, info)
	return c.JSON(rateLimitStatusResponse{Identifier: identifier, Endpoint: endpoint, Info: info})
}

// RateLimitConfigs handles GET /rate-limits/config
func (h *SystemHandler) RateLimitConfigs(c *fiber.Ctx) error {
	return c.JSON(h.limiter.Configs())
}

// UpdateRateLimitConfig handles PUT /rate-limits/config
func (h *SystemHandler) UpdateRateLimitConfig(c *fiber.Ctx) error {
	var rule ratelimit.Rule
	if err := c.BodyParser(&rule); err != nil {
		return invalidBody(err)
	}
	if err := h.limiter.UpdateConfig(rule.Endpoint, rule.RequestsPerWindow, rule.WindowSeconds, rule.Dimension); err != nil {
		return err
	}
	return c.JSON(h.limiter.Rule(rule.Endpoint))
}

// ResetRateLimit handles DELETE /rate-limits/?endpoint=&identifier=
func (h *SystemHandler) ResetRateLimit(c *fiber.Ctx) error {
	endpoint, identifier := c.Query("endpoint"), c.Query("identifier")
	if endpoint == "" {
		return apperror.Validation("endpoint is required", "endpoint", nil)
	}
	if identifier == "" {
		return apperror.Validation("identifier is required", "identifier", nil)
	}

	removed, err := h.limiter.Reset(c.UserContext(), identifier, endpoint)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"endpoint":   endpoint,
		"identifier": identifier,
		"reset":      removed,
	})
}
