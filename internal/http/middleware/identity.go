package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
)

const LocalIdentity = "identity"

// IdentityConfig controls how callers are identified from the Authorization header.
type IdentityConfig struct {
	// Secret verifies HS256 bearer tokens; the subject claim becomes the identity.
	// When empty, any bearer token maps to Placeholder.
	Secret      string
	Placeholder string
	Logger      *zap.Logger
}

// Identity resolves the caller identity. Requests without a bearer token stay anonymous.
func Identity(cfg IdentityConfig) fiber.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	secret := []byte(cfg.Secret)

	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Next()
		}

		if len(secret) == 0 {
			c.Locals(LocalIdentity, cfg.Placeholder)
			return c.Next()
		}

		var claims jwt.RegisteredClaims
		_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || claims.Subject == "" {
			logger.Debug("rejected bearer token", zap.Error(err))
			return apperror.Unauthenticated("Invalid or expired token")
		}

		c.Locals(LocalIdentity, claims.Subject)
		return c.Next()
	}
}

// RequireIdentity rejects anonymous callers.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if IdentityFrom(c) == "" {
			return apperror.Unauthenticated("Authentication required")
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Identity, or "".
func IdentityFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalIdentity).(string)
	return id
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
