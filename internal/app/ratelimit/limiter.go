// Package ratelimit implements fixed-window request limits per identifier and endpoint.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
)

// Info is the usage of one window as seen by a check.
type Info struct {
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining_requests"`
	CurrentCount  int       `json:"current_count"`
	WindowSeconds int       `json:"window_seconds"`
	ResetAt       time.Time `json:"reset_time"`
}

// Limiter decides allow/deny against counters held in a RateLimitRepository.
// Storage failures never block a request: the limiter allows and returns no Info.
type Limiter struct {
	repo   repository.RateLimitRepository
	logger *zap.Logger
	now    func() time.Time
	onDeny func(endpoint string)

	mu    sync.RWMutex
	rules map[string]Rule
}

type Option func(*Limiter)

// WithRules adds or replaces rules on top of DefaultRules.
func WithRules(rules ...Rule) Option {
	return func(l *Limiter) {
		for _, r := range rules {
			if r.Dimension == "" {
				r.Dimension = IPBased
			}
			l.rules[r.Endpoint] = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithDenyHook registers a callback invoked for every denied request.
func WithDenyHook(fn func(endpoint string)) Option {
	return func(l *Limiter) { l.onDeny = fn }
}

func New(repo repository.RateLimitRepository, logger *zap.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		repo:   repo,
		logger: logger.Named("ratelimit"),
		now:    func() time.Time { return time.Now().UTC() },
		rules:  make(map[string]Rule),
	}
	for _, r := range DefaultRules() {
		l.rules[r.Endpoint] = r
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for identifier on endpoint.
// A denied request returns false together with a RATE_LIMIT_EXCEEDED error.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string) (bool, *Info, error) {
	rule := l.Rule(endpoint)
	now := l.now()

	if n, err := l.repo.DeleteExpired(ctx, now); err != nil {
		l.logger.Warn("cleanup expired windows failed", zap.Error(err))
	} else if n > 0 {
		l.logger.Debug("expired windows removed", zap.Int64("count", n))
	}

	w, err := l.repo.FindActive(ctx, identifier, endpoint, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return l.openWindow(ctx, rule, identifier, endpoint, now)
	case err != nil:
		l.failOpen("find window", identifier, endpoint, err)
		return true, nil, nil
	}

	if w.RequestCount >= rule.RequestsPerWindow {
		retryAfter := retryAfterSeconds(w.WindowEnd, now)
		if l.onDeny != nil {
			l.onDeny(endpoint)
		}
		return false, newInfo(rule, w.RequestCount, w.WindowEnd), apperror.RateLimited(
			fmt.Sprintf("Rate limit exceeded for %s", endpoint),
			retryAfter,
			map[string]any{
				"endpoint":       endpoint,
				"identifier":     identifier,
				"limit":          rule.RequestsPerWindow,
				"window_seconds": rule.WindowSeconds,
				"reset_time":     w.WindowEnd.UTC().Format(time.RFC3339),
			},
		)
	}

	err = l.repo.Increment(ctx, w)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// The window ended or was reset after FindActive.
		return l.openWindow(ctx, rule, identifier, endpoint, now)
	case err != nil:
		l.failOpen("increment window", identifier, endpoint, err)
		return true, nil, nil
	}
	return true, newInfo(rule, w.RequestCount, w.WindowEnd), nil
}

// openWindow starts a new window at now holding this request.
func (l *Limiter) openWindow(ctx context.Context, rule Rule, identifier, endpoint string, now time.Time) (bool, *Info, error) {
	w := &model.RateLimitWindow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		RequestCount: 1,
		WindowStart:  now,
		WindowEnd:    now.Add(time.Duration(rule.WindowSeconds) * time.Second),
	}
	if err := l.repo.Create(ctx, w); err != nil {
		l.failOpen("create window", identifier, endpoint, err)
		return true, nil, nil
	}
	return true, newInfo(rule, w.RequestCount, w.WindowEnd), nil
}

// Status reports current usage without counting a request.
func (l *Limiter) Status(ctx context.Context, identifier, endpoint string) (*Info, error) {
	rule := l.Rule(endpoint)
	now := l.now()

	w, err := l.repo.FindActive(ctx, identifier, endpoint, now)
	if errors.Is(err, repository.ErrNotFound) {
		return newInfo(rule, 0, now.Add(time.Duration(rule.WindowSeconds)*time.Second)), nil
	}
	if err != nil {
		return nil, apperror.Storage("rate_limit_status", err, map[string]any{"endpoint": endpoint})
	}
	return newInfo(rule, w.RequestCount, w.WindowEnd), nil
}

// Reset drops every window for identifier on endpoint. It reports whether anything was removed.
func (l *Limiter) Reset(ctx context.Context, identifier, endpoint string) (bool, error) {
	n, err := l.repo.Delete(ctx, identifier, endpoint)
	if err != nil {
		return false, apperror.Storage("rate_limit_reset", err, map[string]any{"endpoint": endpoint})
	}
	l.logger.Info("rate limit reset",
		zap.String("identifier", identifier),
		zap.String("endpoint", endpoint),
		zap.Int64("windows", n))
	return n > 0, nil
}

// UpdateConfig replaces the rule for endpoint. Existing windows keep their bounds.
func (l *Limiter) UpdateConfig(endpoint string, limit, windowSeconds int, dim Dimension) error {
	if endpoint == "" {
		return apperror.Validation("Endpoint is required", "endpoint", nil)
	}
	if dim == "" {
		dim = IPBased
	}
	if _, err := ParseDimension(string(dim)); err != nil {
		return err
	}
	rule := Rule{Endpoint: endpoint, RequestsPerWindow: limit, WindowSeconds: windowSeconds, Dimension: dim}
	if err := rule.validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.rules[endpoint] = rule
	l.mu.Unlock()

	l.logger.Info("rate limit rule updated",
		zap.String("endpoint", endpoint),
		zap.Int("requests_per_window", limit),
		zap.Int("window_seconds", windowSeconds),
		zap.String("rate_limit_type", string(dim)))
	return nil
}

// Rule returns the rule for endpoint, falling back to the default rule.
func (l *Limiter) Rule(endpoint string) Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.rules[endpoint]; ok {
		return r
	}
	return l.rules[DefaultEndpoint]
}

// Configs returns a snapshot of all rules keyed by endpoint.
func (l *Limiter) Configs() map[string]Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Rule, len(l.rules))
	for k, v := range l.rules {
		out[k] = v
	}
	return out
}

// KeyFor picks the counter identifier for a request according to the endpoint's dimension.
func (l *Limiter) KeyFor(endpoint, ip, identity string) string {
	switch l.Rule(endpoint).Dimension {
	case UserBased:
		if identity != "" {
			return identity
		}
		return ip
	case Global:
		return GlobalIdentifier
	default:
		return ip
	}
}

func (l *Limiter) failOpen(op, identifier, endpoint string, err error) {
	l.logger.Warn("rate limiter degraded, allowing request",
		zap.String("op", op),
		zap.String("identifier", identifier),
		zap.String("endpoint", endpoint),
		zap.Error(err))
}

func newInfo(rule Rule, count int, resetAt time.Time) *Info {
	return &Info{
		Limit:         rule.RequestsPerWindow,
		Remaining:     max(0, rule.RequestsPerWindow-count),
		CurrentCount:  count,
		WindowSeconds: rule.WindowSeconds,
		ResetAt:       resetAt,
	}
}

// retryAfterSeconds returns the whole seconds until resetAt, rounded up and never negative.
func retryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
