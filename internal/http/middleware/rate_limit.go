package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sifan077/shortener/internal/app/ratelimit"
)

// RateLimit counts every request against endpoint's rule.
// The identifier follows the rule's dimension. Denials are returned as errors for the error handler.
func RateLimit(limiter *ratelimit.Limiter, endpoint string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := limiter.KeyFor(endpoint, ClientIP(c), IdentityFrom(c))

		_, info, err := limiter.Check(c.UserContext(), key, endpoint)
		if info != nil {
			SetRateLimitHeaders(c, info)
		}
		if err != nil {
			return err
		}
		return c.Next()
	}
}

// SetRateLimitHeaders exposes window usage to the client.
func SetRateLimitHeaders(c *fiber.Ctx, info *ratelimit.Info) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}
