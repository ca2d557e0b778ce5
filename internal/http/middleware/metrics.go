package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sifan077/shortener/internal/infra/prometheus"
)

// Metrics records request counts and latency by matched route.
func Metrics(m *prometheus.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if code, ok := statusOf(err); ok {
				status = code
			}
		}

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		m.ObserveRequest(c.Method(), route, status, time.Since(start))
		return err
	}
}
