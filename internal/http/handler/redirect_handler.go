package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/http/middleware"
)

// RedirectDeps groups dependencies required by the redirect handler.
type RedirectDeps struct {
	Logger *zap.Logger
	URLs   service.URLService
}

// RedirectHandler sends visitors from a short URL to its target.
type RedirectHandler struct {
	logger *zap.Logger
	urls   service.URLService
}

func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger.Named("redirect"),
		urls:   deps.URLs,
	}
}

// Register must run after every other route: /:short_url matches any single segment.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/:short_url", h.Resolve)
}

// Resolve handles GET /:short_url
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	shortURL := c.Params("short_url")

	target, err := h.urls.Resolve(c.UserContext(), shortURL, service.RequestMeta{
		IP:        middleware.ClientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referrer:  c.Get(fiber.HeaderReferer),
		Identity:  middleware.IdentityFrom(c),
	})
	if err != nil {
		return err
	}

	target = withScheme(target)
	h.logger.Debug("redirecting short url", zap.String("short_url", shortURL), zap.String("target", target))
	return c.Redirect(target, fiber.StatusFound)
}

// withScheme defaults a target without a scheme to http.
func withScheme(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return "http://" + target
}
