// Package apperror defines the error kinds the service surfaces to callers.
//
// Every kind carries a stable code; the HTTP status is derived from the code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-facing identifier of an error kind.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeExpired            Code = "URL_EXPIRED"
	CodeDuplicate          Code = "DUPLICATE_URL"
	CodeRateLimited        Code = "RATE_LIMIT_EXCEEDED"
	CodeForbidden          Code = "AUTHORIZATION_ERROR"
	CodeUnauthenticated    Code = "AUTHENTICATION_ERROR"
	CodeStorage            Code = "DATABASE_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

var statusByCode = map[Code]int{
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeDuplicate:          http.StatusConflict,
	CodeExpired:            http.StatusGone,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeStorage:            http.StatusInternalServerError,
	CodeInternal:           http.StatusInternalServerError,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// Status returns the HTTP status for the code.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is the single error type crossing component boundaries.
type Error struct {
	Code    Code
	Message string
	Details map[string]any

	// RetryAfter is the number of seconds until a rate limit resets.
	RetryAfter int
	// Op names the operation that failed, for storage errors.
	Op string

	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Status returns the HTTP status derived from the error code.
func (e *Error) Status() int { return e.Code.Status() }

// Is matches another *Error by code so errors.Is(err, &Error{Code: CodeNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, msg string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Message: msg, Details: details}
}

// Validation reports bad input shape on the given field.
func Validation(msg, field string, details map[string]any) *Error {
	e := newError(CodeValidation, msg, details)
	if field != "" {
		e.Details["field"] = field
	}
	return e
}

// URLValidation is a validation error about the submitted URL.
func URLValidation(msg, url string, details map[string]any) *Error {
	e := Validation(msg, "url", details)
	if url != "" {
		e.Details["url"] = url
	}
	return e
}

func NotFound(resourceType, resourceID string) *Error {
	return newError(CodeNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceID), map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	})
}

func Expired(shortURL, expiredAt string) *Error {
	return newError(CodeExpired, fmt.Sprintf("URL has expired: %s", shortURL), map[string]any{
		"short_url":  shortURL,
		"expired_at": expiredAt,
	})
}

func Duplicate(msg string, details map[string]any) *Error {
	return newError(CodeDuplicate, msg, details)
}

func RateLimited(msg string, retryAfter int, details map[string]any) *Error {
	e := newError(CodeRateLimited, msg, details)
	e.RetryAfter = retryAfter
	e.Details["retry_after"] = retryAfter
	return e
}

func Forbidden(msg, permission string) *Error {
	return newError(CodeForbidden, msg, map[string]any{"required_permission": permission})
}

func Unauthenticated(msg string) *Error {
	return newError(CodeUnauthenticated, msg, nil)
}

// Storage wraps a persistence failure. The cause is kept for logs and never rendered.
func Storage(op string, err error, details map[string]any) *Error {
	e := newError(CodeStorage, fmt.Sprintf("storage operation failed: %s", op), details)
	e.Details["operation"] = op
	e.Op = op
	e.err = err
	return e
}

func Unavailable(msg, service string) *Error {
	return newError(CodeServiceUnavailable, msg, map[string]any{"service_name": service})
}

func Internal(err error) *Error {
	e := newError(CodeInternal, "an unexpected error occurred", nil)
	e.err = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// Wrap passes domain errors through untouched and turns anything else into a storage error.
func Wrap(op string, err error, details map[string]any) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Storage(op, err, details)
}
