package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:         http.StatusBadRequest,
		CodeUnauthenticated:    http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeDuplicate:          http.StatusConflict,
		CodeExpired:            http.StatusGone,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeStorage:            http.StatusInternalServerError,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		Code("SOMETHING_ELSE"):  http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.Status(); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestURLValidationCarriesField(t *testing.T) {
	err := URLValidation("Invalid URL format", "ftp://x", nil)
	if err.Code != CodeValidation {
		t.Fatalf("expected validation code, got %s", err.Code)
	}
	if err.Details["field"] != "url" || err.Details["url"] != "ftp://x" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
}

func TestRateLimitedRetryAfter(t *testing.T) {
	err := RateLimited("slow down", 42, map[string]any{"endpoint": "/shorten/"})
	if err.RetryAfter != 42 || err.Details["retry_after"] != 42 {
		t.Fatalf("retry_after not recorded: %+v", err)
	}
	if err.Status() != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", err.Status())
	}
}

func TestWrap(t *testing.T) {
	domain := NotFound("url_mapping", "abc")
	if got := Wrap("resolve", domain, nil); got != domain {
		t.Fatalf("domain errors must pass through unchanged")
	}

	cause := errors.New("connection reset")
	wrapped := Wrap("resolve", fmt.Errorf("query: %w", cause), map[string]any{"short_url": "abc"})
	e, ok := As(wrapped)
	if !ok || e.Code != CodeStorage {
		t.Fatalf("expected storage error, got %v", wrapped)
	}
	if e.Op != "resolve" || e.Details["short_url"] != "abc" {
		t.Fatalf("missing storage context: %+v", e)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected cause to stay reachable through Unwrap")
	}
	if Wrap("noop", nil, nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestIsAndCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", Expired("abc", "2020-01-01T00:00:00Z"))
	if !Is(err, CodeExpired) {
		t.Fatal("expected Is to see through wrapping")
	}
	if !errors.Is(err, &Error{Code: CodeExpired}) {
		t.Fatal("expected errors.Is to match by code")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatal("foreign errors map to internal")
	}
}
