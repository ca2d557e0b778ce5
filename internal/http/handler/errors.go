package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ErrorCode apperror.Code  `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

var codeByStatus = map[int]apperror.Code{
	fiber.StatusBadRequest:          apperror.CodeValidation,
	fiber.StatusUnprocessableEntity: apperror.CodeValidation,
	fiber.StatusUnauthorized:        apperror.CodeUnauthenticated,
	fiber.StatusForbidden:           apperror.CodeForbidden,
	fiber.StatusNotFound:            apperror.CodeNotFound,
	fiber.StatusMethodNotAllowed:    apperror.CodeNotFound,
	fiber.StatusTooManyRequests:     apperror.CodeRateLimited,
	fiber.StatusServiceUnavailable:  apperror.CodeServiceUnavailable,
}

// ErrorHandler renders errors returned by handlers and middleware.
// Domain errors keep their code and details; anything else is reported as an internal error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	return func(c *fiber.Ctx, err error) error {
		body := ErrorResponse{Timestamp: time.Now().UTC()}
		status := fiber.StatusInternalServerError

		var fe *fiber.Error
		if e, ok := apperror.As(err); ok {
			status = e.Status()
			body.ErrorCode = e.Code
			body.Message = e.Message
			body.Details = e.Details
			if e.Code == apperror.CodeRateLimited {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(e.RetryAfter))
			}
		} else if errors.As(err, &fe) {
			status = fe.Code
			body.ErrorCode = apperror.CodeInternal
			if code, ok := codeByStatus[fe.Code]; ok {
				body.ErrorCode = code
			}
			body.Message = fe.Message
		} else {
			body.ErrorCode = apperror.CodeInternal
			body.Message = "an unexpected error occurred"
		}
		if body.Details == nil {
			body.Details = map[string]any{}
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("error_code", string(body.ErrorCode)),
				zap.Error(err))
		}

		return c.Status(status).JSON(body)
	}
}

func invalidBody(err error) error {
	return apperror.Validation("Invalid request body", "body", map[string]any{"reason": err.Error()})
}
