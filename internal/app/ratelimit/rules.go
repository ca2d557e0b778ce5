package ratelimit

import (
	"fmt"

	"github.com/sifan077/shortener/internal/app/apperror"
)

// Dimension selects what a rule counts requests by.
type Dimension string

const (
	IPBased   Dimension = "ip_based"
	UserBased Dimension = "user_based"
	Global    Dimension = "global"
)

// DefaultEndpoint is the rule applied to endpoints without their own entry.
const DefaultEndpoint = "default"

// GlobalIdentifier is the shared counter key for Global rules.
const GlobalIdentifier = "global"

// ParseDimension accepts the wire names of the dimensions. An empty string means IPBased.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case "":
		return IPBased, nil
	case IPBased, UserBased, Global:
		return Dimension(s), nil
	}
	return "", apperror.Validation(fmt.Sprintf("unknown rate limit type %q", s), "rate_limit_type", map[string]any{
		"allowed": []Dimension{IPBased, UserBased, Global},
	})
}

// Rule is the per-endpoint limit configuration.
type Rule struct {
	Endpoint          string    `json:"endpoint"`
	RequestsPerWindow int       `json:"requests_per_window"`
	WindowSeconds     int       `json:"window_seconds"`
	Dimension         Dimension `json:"rate_limit_type"`
}

func (r Rule) validate() error {
	if r.RequestsPerWindow <= 0 {
		return apperror.Validation("Requests per window must be positive", "requests_per_window", nil)
	}
	if r.WindowSeconds <= 0 {
		return apperror.Validation("Window seconds must be positive", "window_seconds", nil)
	}
	return nil
}

// DefaultRules returns the rules every limiter starts with.
func DefaultRules() []Rule {
	return []Rule{
		{Endpoint: "/shorten/", RequestsPerWindow: 10, WindowSeconds: 60, Dimension: IPBased},
		{Endpoint: "/bulk-shorten/", RequestsPerWindow: 5, WindowSeconds: 300, Dimension: IPBased},
		{Endpoint: "/analytics/", RequestsPerWindow: 20, WindowSeconds: 60, Dimension: UserBased},
		{Endpoint: "/users/", RequestsPerWindow: 5, WindowSeconds: 300, Dimension: IPBased},
		{Endpoint: "/auth/login", RequestsPerWindow: 3, WindowSeconds: 300, Dimension: IPBased},
		{Endpoint: "/auth/register", RequestsPerWindow: 2, WindowSeconds: 600, Dimension: IPBased},
		{Endpoint: DefaultEndpoint, RequestsPerWindow: 100, WindowSeconds: 60, Dimension: IPBased},
	}
}
