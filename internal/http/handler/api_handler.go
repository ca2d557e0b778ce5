package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/http/middleware"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger *zap.Logger
	URLs   service.URLService
}

// APIHandler implements the URL management endpoints.
type APIHandler struct {
	logger *zap.Logger
	urls   service.URLService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger: logger.Named("api"),
		urls:   deps.URLs,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	router.Post("/shorten/", h.Shorten)
	router.Post("/bulk-shorten/", h.BulkShorten)

	// Guards stay per route; a Use on "/urls" also matches short URLs such as "/urlsxyz".
	auth := middleware.RequireIdentity()
	router.Get("/urls/", auth, h.ListURLs)
	router.Delete("/urls/:short_url", auth, h.DeleteURL)
	router.Put("/urls/:short_url/expiration", auth, h.UpdateExpiration)
}

// Shorten handles POST /shorten/
func (h *APIHandler) Shorten(c *fiber.Ctx) error {
	var req service.ShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(err)
	}

	resp, err := h.urls.Shorten(c.UserContext(), req, middleware.ClientIP(c), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// BulkShorten handles POST /bulk-shorten/
func (h *APIHandler) BulkShorten(c *fiber.Ctx) error {
	var req service.BulkShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(err)
	}

	resp, err := h.urls.BulkShorten(c.UserContext(), req, middleware.ClientIP(c), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	h.logger.Debug("bulk shorten finished",
		zap.Int("created", resp.TotalCreated),
		zap.Int("failed", resp.TotalFailed))
	return c.JSON(resp)
}

// ListURLs handles GET /urls/
func (h *APIHandler) ListURLs(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", service.DefaultPageSize)

	list, err := h.urls.ListOwned(c.UserContext(), middleware.IdentityFrom(c), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// DeleteURL handles DELETE /urls/:short_url
func (h *APIHandler) DeleteURL(c *fiber.Ctx) error {
	shortURL := c.Params("short_url")
	if err := h.urls.Delete(c.UserContext(), shortURL, middleware.IdentityFrom(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":   "URL deleted successfully",
		"short_url": shortURL,
	})
}

type expirationRequest struct {
	ExpiresAt string `json:"expires_at"`
}

// UpdateExpiration handles PUT /urls/:short_url/expiration.
// expires_at is read from the query string, falling back to a JSON body.
func (h *APIHandler) UpdateExpiration(c *fiber.Ctx) error {
	req := expirationRequest{ExpiresAt: c.Query("expires_at")}
	if req.ExpiresAt == "" && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(err)
		}
	}
	if req.ExpiresAt == "" {
		return apperror.Validation("expires_at is required", "expires_at", nil)
	}

	expiresAt, err := parseTime("expires_at", req.ExpiresAt)
	if err != nil {
		return err
	}

	resp, err := h.urls.UpdateExpiration(c.UserContext(), c.Params("short_url"), expiresAt, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
