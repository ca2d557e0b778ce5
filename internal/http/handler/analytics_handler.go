package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/http/middleware"
)

// EndpointAnalytics is the rate limit rule shared by every analytics route.
const EndpointAnalytics = "/analytics/"

type AnalyticsDeps struct {
	Logger    *zap.Logger
	Analytics analytics.Service
	// Limiter is optional; when nil analytics routes are not rate limited.
	Limiter *ratelimit.Limiter
}

// AnalyticsHandler serves click statistics.
type AnalyticsHandler struct {
	logger    *zap.Logger
	analytics analytics.Service
	limiter   *ratelimit.Limiter
}

func NewAnalyticsHandler(deps AnalyticsDeps) *AnalyticsHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{
		logger:    logger.Named("analytics"),
		analytics: deps.Analytics,
		limiter:   deps.Limiter,
	}
}

func (h *AnalyticsHandler) Register(router fiber.Router) {
	handlers := func(final ...fiber.Handler) []fiber.Handler {
		var chain []fiber.Handler
		if h.limiter != nil {
			chain = append(chain, middleware.RateLimit(h.limiter, EndpointAnalytics))
		}
		return append(chain, final...)
	}

	router.Get("/analytics/url/:short_url", handlers(h.URLAnalytics)...)
	router.Get("/analytics/user", handlers(middleware.RequireIdentity(), h.UserAnalytics)...)
	router.Get("/analytics/global", handlers(middleware.RequireIdentity(), h.GlobalAnalytics)...)
}

// URLAnalytics handles GET /analytics/url/:short_url
func (h *AnalyticsHandler) URLAnalytics(c *fiber.Ctx) error {
	r, err := parseRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}
	report, err := h.analytics.URLAnalytics(c.UserContext(), c.Params("short_url"), r)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// UserAnalytics handles GET /analytics/user
func (h *AnalyticsHandler) UserAnalytics(c *fiber.Ctx) error {
	r, err := parseRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}
	report, err := h.analytics.UserAnalytics(c.UserContext(), middleware.IdentityFrom(c), r)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// GlobalAnalytics handles GET /analytics/global
func (h *AnalyticsHandler) GlobalAnalytics(c *fiber.Ctx) error {
	r, err := parseRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}
	report, err := h.analytics.GlobalAnalytics(c.UserContext(), r)
	if err != nil {
		return err
	}
	return c.JSON(report)
}
