// Package validator checks submitted URLs and custom aliases before they are stored.
package validator

import (
	"context"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
)

const (
	MinURLLength = 10
	MaxURLLength = 2048

	DefaultProbeTimeout = 10 * time.Second
)

var urlPattern = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.?$`)

var blockedSchemes = []string{"file", "ftp", "sftp", "telnet", "mailto"}

var defaultBlockedDomains = []string{
	"localhost", "127.0.0.1", "0.0.0.0", "::1",
	"example.com", "test.com", "invalid.com",
}

var suspiciousPatterns = []string{
	"javascript:", "data:", "vbscript:",
	"<script", "<iframe", "<object",
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
}

// Options configures a Validator. Zero values fall back to defaults.
type Options struct {
	// BlockedDomains extends the built-in deny list.
	BlockedDomains []string
	ProbeTimeout   time.Duration
	Client         *http.Client
	Logger         *zap.Logger
}

// Validator runs the URL checks in a fixed order and stops at the first failure.
type Validator struct {
	blocked map[string]struct{}
	client  *http.Client
	logger  *zap.Logger
}

// Components are the parsed parts of a validated URL.
type Components struct {
	Scheme   string `json:"scheme"`
	Host     string `json:"netloc"`
	Path     string `json:"path"`
	Query    string `json:"query"`
	Fragment string `json:"fragment"`
}

// Availability is the outcome of the optional liveness probe.
type Availability struct {
	Accessible    bool   `json:"is_accessible"`
	StatusCode    int    `json:"status_code"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength string `json:"content_length,omitempty"`
	Server        string `json:"server,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
}

// Result describes a URL that passed validation.
type Result struct {
	Valid        bool          `json:"is_valid"`
	URL          string        `json:"url"`
	Parsed       Components    `json:"parsed_url"`
	Availability *Availability `json:"availability,omitempty"`
}

func New(opts Options) *Validator {
	blocked := make(map[string]struct{}, len(defaultBlockedDomains)+len(opts.BlockedDomains))
	for _, d := range defaultBlockedDomains {
		blocked[d] = struct{}{}
	}
	for _, d := range opts.BlockedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			blocked[d] = struct{}{}
		}
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{blocked: blocked, client: client, logger: logger}
}

// Validate checks raw and, when checkAvailability is set, probes it with a HEAD request.
func (v *Validator) Validate(ctx context.Context, raw string, checkAvailability bool) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperror.URLValidation("URL cannot be empty", raw, nil)
	}
	if !urlPattern.MatchString(raw) {
		return nil, apperror.URLValidation("Invalid URL format", raw, map[string]any{
			"expected_format": "http(s)://domain.com/path",
		})
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperror.URLValidation("Invalid URL format", raw, map[string]any{"error": err.Error()})
	}

	if err := checkScheme(u.Scheme); err != nil {
		return nil, err
	}
	if err := checkHost(u.Hostname()); err != nil {
		return nil, err
	}
	if err := checkLength(raw); err != nil {
		return nil, err
	}
	if err := v.checkBlocked(u.Hostname()); err != nil {
		return nil, err
	}
	if err := checkStructure(raw); err != nil {
		return nil, err
	}

	res := &Result{
		Valid: true,
		URL:   raw,
		Parsed: Components{
			Scheme:   u.Scheme,
			Host:     u.Host,
			Path:     u.Path,
			Query:    u.RawQuery,
			Fragment: u.Fragment,
		},
	}

	if checkAvailability {
		avail, err := v.probe(ctx, raw)
		if err != nil {
			return nil, err
		}
		res.Availability = avail
	}
	return res, nil
}

func checkScheme(scheme string) error {
	s := strings.ToLower(scheme)
	if s == "" {
		return apperror.URLValidation("URL scheme is required", "", nil)
	}
	for _, b := range blockedSchemes {
		if s == b {
			return apperror.URLValidation("URL scheme '"+scheme+"' is not allowed", "", map[string]any{
				"scheme":          scheme,
				"blocked_schemes": blockedSchemes,
			})
		}
	}
	if s != "http" && s != "https" {
		return apperror.URLValidation("Only HTTP and HTTPS schemes are supported, got: "+scheme, "", map[string]any{
			"scheme": scheme,
		})
	}
	return nil
}

func checkHost(host string) error {
	if host == "" {
		return apperror.URLValidation("Domain name is required", "", nil)
	}

	h := strings.ToLower(host)
	if h == "localhost" || h == "0.0.0.0" || h == "::1" {
		return apperror.URLValidation("Private IP addresses are not allowed", "", map[string]any{"netloc": host})
	}

	if addr, err := netip.ParseAddr(h); err == nil {
		if isPrivate(addr) {
			return apperror.URLValidation("Private IP addresses are not allowed", "", map[string]any{"netloc": host})
		}
		return nil
	}

	if !domainPattern.MatchString(h) {
		return apperror.URLValidation("Invalid domain name format", "", map[string]any{"netloc": host})
	}
	return nil
}

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsUnspecified() {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func checkLength(raw string) error {
	n := len(raw)
	if n > MaxURLLength {
		return apperror.URLValidation("URL is too long. Maximum length is 2048 characters", raw, map[string]any{
			"url_length": n,
			"max_length": MaxURLLength,
		})
	}
	if n < MinURLLength {
		return apperror.URLValidation("URL is too short. Minimum length is 10 characters", raw, map[string]any{
			"url_length": n,
			"min_length": MinURLLength,
		})
	}
	return nil
}

func (v *Validator) checkBlocked(host string) error {
	domain := strings.TrimSuffix(strings.ToLower(host), ".")
	if _, ok := v.blocked[domain]; ok {
		return apperror.URLValidation("Domain '"+domain+"' is not allowed", "", map[string]any{"domain": domain})
	}
	return nil
}

func checkStructure(raw string) error {
	s := strings.ToLower(raw)
	for _, p := range suspiciousPatterns {
		if strings.Contains(s, p) {
			return apperror.URLValidation("URL contains suspicious pattern: "+p, "", map[string]any{"pattern": p})
		}
	}
	return nil
}
