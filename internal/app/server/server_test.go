package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/repository/memory"
	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/app/validator"
	"github.com/sifan077/shortener/internal/http/handler"
	"github.com/sifan077/shortener/internal/http/middleware"
)

const testSecret = "test-secret"

type testServer struct {
	app   *fiber.App
	store *memory.Store
}

func newTestServer(t *testing.T, checks ...handler.HealthCheck) *testServer {
	t.Helper()
	store := memory.New()
	limiter := ratelimit.New(store.RateLimits, nil)
	stats := analytics.NewService(analytics.Deps{URLs: store.URLs, Clicks: store.Clicks})
	urls := service.NewURLService(service.URLServiceDeps{
		URLs:      store.URLs,
		Validator: validator.New(validator.Options{}),
		Limiter:   limiter,
		Tracker:   service.InlineTracker(stats),
		BaseURL:   "https://sho.rt",
	})

	if checks == nil {
		checks = []handler.HealthCheck{{Name: "database", Probe: store.Ping}}
	}
	srv := New(Dependencies{
		URLs:         urls,
		Analytics:    stats,
		Limiter:      limiter,
		Auth:         middleware.IdentityConfig{Secret: testSecret},
		HealthChecks: checks,
	})
	return &testServer{app: srv.App(), store: store}
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (s *testServer) do(t *testing.T, r request) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", r.method, r.path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestShortenRedirectAnalytics(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, request{method: "POST", path: "/shorten/", body: map[string]any{"url": "https://example.org/page"}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("shorten: expected 200, got %d: %s", resp.StatusCode, data)
	}
	created := decode[service.URLResponse](t, data)
	if len(created.ShortCode) != service.TokenLength {
		t.Fatalf("expected %d-char token, got %q", service.TokenLength, created.ShortCode)
	}
	if created.ShortURL != "https://sho.rt/"+created.ShortCode {
		t.Fatalf("unexpected short url %q", created.ShortURL)
	}

	resp, _ = s.do(t, request{method: "GET", path: "/" + created.ShortCode})
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("redirect: expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.org/page" {
		t.Fatalf("unexpected Location %q", loc)
	}

	resp, data = s.do(t, request{method: "GET", path: "/analytics/url/" + created.ShortCode})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("analytics: expected 200, got %d: %s", resp.StatusCode, data)
	}
	report := decode[analytics.URLReport](t, data)
	if report.Analytics.TotalClicks != 1 {
		t.Fatalf("expected total_clicks=1, got %d", report.Analytics.TotalClicks)
	}
}

func TestShortenReservedAlias(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, request{method: "POST", path: "/shorten/", body: map[string]any{
		"url":          "https://example.org/page",
		"custom_alias": "admin",
	}})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, data)
	}
	body := decode[handler.ErrorResponse](t, data)
	if body.ErrorCode != "VALIDATION_ERROR" || body.Details["field"] != "custom_alias" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	n, err := s.store.URLs.Count(context.Background(), repository.URLFilter{})
	if err != nil || n != 0 {
		t.Fatalf("expected no mapping, got %d (%v)", n, err)
	}
}

func TestShortenRateLimited(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"X-Real-IP": "203.0.113.50"}

	for i := 0; i < 10; i++ {
		resp, data := s.do(t, request{method: "POST", path: "/shorten/", headers: headers,
			body: map[string]any{"url": "https://example.org/page"}})
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i+1, resp.StatusCode, data)
		}
	}

	resp, data := s.do(t, request{method: "POST", path: "/shorten/", headers: headers,
		body: map[string]any{"url": "https://example.org/page"}})
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", resp.StatusCode, data)
	}
	retry, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || retry <= 0 || retry > 60 {
		t.Fatalf("unexpected Retry-After %q", resp.Header.Get("Retry-After"))
	}
	if body := decode[handler.ErrorResponse](t, data); body.ErrorCode != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("unexpected error code %s", body.ErrorCode)
	}

	// Another client keeps its own window.
	resp, _ = s.do(t, request{method: "POST", path: "/shorten/", headers: map[string]string{"X-Real-IP": "203.0.113.51"},
		body: map[string]any{"url": "https://example.org/page"}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected other client to pass, got %d", resp.StatusCode)
	}
}

func TestRedirectErrors(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, request{method: "GET", path: "/nope12"})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decode[handler.ErrorResponse](t, data); body.ErrorCode != "NOT_FOUND" {
		t.Fatalf("unexpected error code %s", body.ErrorCode)
	}
}

func TestOwnedURLs(t *testing.T) {
	s := newTestServer(t)
	alice := map[string]string{"Authorization": bearer(t, "alice")}
	bob := map[string]string{"Authorization": bearer(t, "bob")}

	resp, data := s.do(t, request{method: "POST", path: "/shorten/", headers: alice, body: map[string]any{
		"url":          "https://example.org/alice",
		"custom_alias": "alice1",
	}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("shorten: expected 200, got %d: %s", resp.StatusCode, data)
	}

	resp, _ = s.do(t, request{method: "GET", path: "/urls/"})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("anonymous list: expected 401, got %d", resp.StatusCode)
	}

	resp, data = s.do(t, request{method: "GET", path: "/urls/?page=1&page_size=10", headers: alice})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", resp.StatusCode, data)
	}
	list := decode[service.URLList](t, data)
	if list.TotalCount != 1 || len(list.URLs) != 1 || list.URLs[0].ShortCode != "alice1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp, _ = s.do(t, request{method: "GET", path: "/urls/?page=0", headers: alice})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("page=0: expected 400, got %d", resp.StatusCode)
	}

	future := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	resp, _ = s.do(t, request{method: "PUT", path: "/urls/alice1/expiration?expires_at=" + future, headers: bob})
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("foreign update: expected 403, got %d", resp.StatusCode)
	}
	resp, data = s.do(t, request{method: "PUT", path: "/urls/alice1/expiration", headers: alice,
		body: map[string]any{"expires_at": future}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if updated := decode[service.URLResponse](t, data); updated.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}

	resp, _ = s.do(t, request{method: "DELETE", path: "/urls/alice1", headers: bob})
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, request{method: "DELETE", path: "/urls/alice1", headers: alice})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, request{method: "GET", path: "/alice1"})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("deleted url: expected 404, got %d", resp.StatusCode)
	}
}

func TestBulkShorten(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, request{method: "POST", path: "/bulk-shorten/", body: map[string]any{
		"urls": []string{"https://example.org/a", "ftp://example.org/b", "https://example.org/c"},
	}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	bulk := decode[service.BulkResponse](t, data)
	if bulk.TotalRequested != 3 || bulk.TotalCreated != 2 || bulk.TotalFailed != 1 {
		t.Fatalf("unexpected counters: %+v", bulk)
	}
	if bulk.Failed[0].URL != "ftp://example.org/b" || bulk.Failed[0].ErrorCode != "VALIDATION_ERROR" {
		t.Fatalf("unexpected failure entry: %+v", bulk.Failed[0])
	}
}

func TestAnalyticsDateValidation(t *testing.T) {
	s := newTestServer(t)
	alice := map[string]string{"Authorization": bearer(t, "alice")}

	resp, _ := s.do(t, request{method: "GET", path: "/analytics/global?start_date=2026-03-02&end_date=2026-03-01", headers: alice})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("reversed range: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, request{method: "GET", path: "/analytics/global?start_date=yesterday", headers: alice})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, request{method: "GET", path: "/analytics/global"})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("anonymous global analytics: expected 401, got %d", resp.StatusCode)
	}

	resp, data := s.do(t, request{method: "GET", path: "/analytics/user", headers: alice})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("user analytics: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if report := decode[analytics.UserReport](t, data); report.UserID != "alice" || report.TotalURLs != 0 {
		t.Fatalf("unexpected user report: %+v", report)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, data := s.do(t, request{method: "GET", path: "/health"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	health := decode[handler.HealthResponse](t, data)
	if health.Status != "healthy" || health.Version != Version {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.Services["rate_limiter"].Configurations != len(ratelimit.DefaultRules()) {
		t.Fatalf("unexpected rate limiter health: %+v", health.Services["rate_limiter"])
	}

	down := newTestServer(t, handler.HealthCheck{Name: "database", Probe: func(context.Context) error {
		return errors.New("connection refused")
	}})
	resp, data = down.do(t, request{method: "GET", path: "/health"})
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if health := decode[handler.HealthResponse](t, data); health.Services["database"].Status != "unhealthy" {
		t.Fatalf("expected database to be unhealthy: %+v", health)
	}
}

func TestRateLimitAdministration(t *testing.T) {
	s := newTestServer(t)
	alice := map[string]string{"Authorization": bearer(t, "alice")}

	resp, data := s.do(t, request{method: "PUT", path: "/rate-limits/config", headers: alice, body: map[string]any{
		"endpoint":            "/shorten/",
		"requests_per_window": 1,
		"window_seconds":      30,
		"rate_limit_type":     "ip_based",
	}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update config: expected 200, got %d: %s", resp.StatusCode, data)
	}

	resp, _ = s.do(t, request{method: "PUT", path: "/rate-limits/config", headers: alice, body: map[string]any{
		"endpoint":            "/shorten/",
		"requests_per_window": 0,
		"window_seconds":      30,
	}})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("zero limit: expected 400, got %d", resp.StatusCode)
	}

	ip := map[string]string{"X-Real-IP": "198.51.100.20"}
	s.do(t, request{method: "POST", path: "/shorten/", headers: ip, body: map[string]any{"url": "https://example.org/x"}})
	resp, _ = s.do(t, request{method: "POST", path: "/shorten/", headers: ip, body: map[string]any{"url": "https://example.org/x"}})
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected updated rule to deny, got %d", resp.StatusCode)
	}

	resp, data = s.do(t, request{method: "GET", path: "/rate-limits/status?endpoint=/shorten/&identifier=198.51.100.20"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", resp.StatusCode, data)
	}
	status := decode[map[string]any](t, data)
	if status["current_count"] != float64(1) || status["remaining_requests"] != float64(0) {
		t.Fatalf("unexpected status: %v", status)
	}

	resp, data = s.do(t, request{method: "DELETE", path: "/rate-limits/?endpoint=/shorten/&identifier=198.51.100.20", headers: alice})
	if resp.StatusCode != fiber.StatusOK || decode[map[string]any](t, data)["reset"] != true {
		t.Fatalf("reset: unexpected %d %s", resp.StatusCode, data)
	}
	resp, _ = s.do(t, request{method: "POST", path: "/shorten/", headers: ip, body: map[string]any{"url": "https://example.org/x"}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("after reset: expected 200, got %d", resp.StatusCode)
	}

	resp, data = s.do(t, request{method: "GET", path: "/rate-limits/config"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("configs: expected 200, got %d", resp.StatusCode)
	}
	configs := decode[map[string]ratelimit.Rule](t, data)
	if configs["/shorten/"].RequestsPerWindow != 1 {
		t.Fatalf("expected updated rule in configs, got %+v", configs["/shorten/"])
	}
}
