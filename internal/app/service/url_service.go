package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/cache"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/validator"
)

const (
	EndpointShorten     = "/shorten/"
	EndpointBulkShorten = "/bulk-shorten/"

	MaxBulkURLs     = 100
	MaxPageSize     = 100
	DefaultPageSize = 20
)

// URLService defines the operations on short URLs.
type URLService interface {
	Shorten(ctx context.Context, req ShortenRequest, clientIP, identity string) (*URLResponse, error)
	Resolve(ctx context.Context, shortURL string, meta RequestMeta) (string, error)
	BulkShorten(ctx context.Context, req BulkShortenRequest, clientIP, identity string) (*BulkResponse, error)
	ListOwned(ctx context.Context, identity string, page, pageSize int) (*URLList, error)
	Delete(ctx context.Context, shortURL, identity string) error
	UpdateExpiration(ctx context.Context, shortURL string, expiresAt time.Time, identity string) (*URLResponse, error)
}

// URLValidator checks submitted URLs.
type URLValidator interface {
	Validate(ctx context.Context, raw string, checkAvailability bool) (*validator.Result, error)
}

// RateLimiter is the part of ratelimit.Limiter the service depends on.
type RateLimiter interface {
	Check(ctx context.Context, identifier, endpoint string) (bool, *ratelimit.Info, error)
	KeyFor(endpoint, ip, identity string) string
}

type ShortenRequest struct {
	URL         string     `json:"url"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type BulkShortenRequest struct {
	URLs      []string   `json:"urls"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RequestMeta describes the visitor of a short URL.
type RequestMeta struct {
	IP        string
	UserAgent string
	Referrer  string
	Identity  string
}

type URLResponse struct {
	ShortURL    string     `json:"short_url"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	ClickCount  int64      `json:"click_count"`
}

type FailedURL struct {
	URL       string        `json:"url"`
	Error     string        `json:"error"`
	ErrorCode apperror.Code `json:"error_code"`
}

type BulkResponse struct {
	Created        []URLResponse `json:"created_urls"`
	Failed         []FailedURL   `json:"failed_urls"`
	TotalRequested int           `json:"total_requested"`
	TotalCreated   int           `json:"total_created"`
	TotalFailed    int           `json:"total_failed"`
}

type URLList struct {
	URLs        []URLResponse `json:"urls"`
	TotalCount  int64         `json:"total_count"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// URLServiceDeps holds the collaborators of the URL service.
type URLServiceDeps struct {
	URLs      repository.URLMappingRepository
	Validator URLValidator
	Limiter   RateLimiter
	Tracker   ClickTracker
	Tokens    TokenGenerator
	// Bloom is optional; when set, resolve answers NotFound for definite misses without a lookup.
	Bloom   *cache.BloomFilter
	Metrics Recorder
	Logger  *zap.Logger

	BaseURL           string
	CheckAvailability bool
	Now               func() time.Time
}

type urlService struct {
	urls      repository.URLMappingRepository
	validator URLValidator
	limiter   RateLimiter
	tracker   ClickTracker
	tokens    TokenGenerator
	bloom     *cache.BloomFilter
	metrics   Recorder
	logger    *zap.Logger

	baseURL           string
	checkAvailability bool
	now               func() time.Time
}

// NewURLService returns a URL service wired to the given collaborators.
func NewURLService(deps URLServiceDeps) URLService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = ShortUUIDGenerator{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &urlService{
		urls:              deps.URLs,
		validator:         deps.Validator,
		limiter:           deps.Limiter,
		tracker:           deps.Tracker,
		tokens:            tokens,
		bloom:             deps.Bloom,
		metrics:           metrics,
		logger:            logger.Named("url"),
		baseURL:           strings.TrimRight(deps.BaseURL, "/"),
		checkAvailability: deps.CheckAvailability,
		now:               now,
	}
}

func (s *urlService) Shorten(ctx context.Context, req ShortenRequest, clientIP, identity string) (*URLResponse, error) {
	if err := s.checkRate(ctx, EndpointShorten, clientIP, identity); err != nil {
		return nil, err
	}
	return s.create(ctx, req, identity)
}

// create runs validation, token selection and persistence for a single URL.
func (s *urlService) create(ctx context.Context, req ShortenRequest, identity string) (*URLResponse, error) {
	if _, err := s.validator.Validate(ctx, req.URL, s.checkAvailability); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, apperror.Validation("Expiration date must be in the future", "expires_at", nil)
	}

	var shortURL string
	if req.CustomAlias != "" {
		if _, err := validator.ValidateAlias(req.CustomAlias); err != nil {
			return nil, err
		}
		taken, err := s.aliasTaken(ctx, req.CustomAlias)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.Duplicate("Custom alias is already in use", map[string]any{
				"original_url": req.URL,
				"custom_alias": req.CustomAlias,
			})
		}
		shortURL = req.CustomAlias
	} else {
		token, err := s.uniqueToken(ctx)
		if err != nil {
			return nil, err
		}
		shortURL = token
	}

	existing, err := s.urls.GetByOriginalURL(ctx, req.URL)
	switch {
	case err == nil:
		return s.response(existing), nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperror.Storage("shorten_url", err, map[string]any{"original_url": req.URL})
	}

	m := &model.URLMapping{
		ShortURL:    shortURL,
		OriginalURL: req.URL,
		OwnerID:     identity,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   s.now(),
	}
	if req.CustomAlias != "" {
		alias := req.CustomAlias
		m.CustomAlias = &alias
	}

	if err := s.urls.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Duplicate("Short URL is already in use", map[string]any{
				"original_url": req.URL,
				"short_url":    shortURL,
			})
		}
		return nil, apperror.Storage("shorten_url", err, map[string]any{"original_url": req.URL})
	}

	if s.bloom != nil {
		s.bloom.Add(m.ShortURL)
	}
	s.metrics.URLShortened()
	s.logger.Info("short url created",
		zap.String("short_url", m.ShortURL),
		zap.String("owner", identity),
		zap.Bool("custom_alias", m.CustomAlias != nil))

	return s.response(m), nil
}

func (s *urlService) aliasTaken(ctx context.Context, alias string) (bool, error) {
	_, err := s.urls.GetByAlias(ctx, alias)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, apperror.Storage("shorten_url", err, map[string]any{"custom_alias": alias})
	}

	_, err = s.urls.GetByShortURL(ctx, alias)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, apperror.Storage("shorten_url", err, map[string]any{"custom_alias": alias})
	}
	return false, nil
}

func (s *urlService) uniqueToken(ctx context.Context) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token := s.tokens.Generate()
		_, err := s.urls.GetByShortURL(ctx, token)
		if errors.Is(err, repository.ErrNotFound) {
			return token, nil
		}
		if err != nil {
			return "", apperror.Storage("generate_short_url", err, nil)
		}
		s.logger.Debug("short token collision", zap.String("token", token), zap.Int("attempt", i+1))
	}
	return "", apperror.Unavailable("Unable to generate unique short URL after maximum attempts", "url_generation")
}

// Resolve returns the original URL of shortURL. Click tracking is best effort.
func (s *urlService) Resolve(ctx context.Context, shortURL string, meta RequestMeta) (string, error) {
	if s.bloom != nil && !s.bloom.MightExist(shortURL) {
		return "", apperror.NotFound("url_mapping", shortURL)
	}

	m, err := s.urls.GetByShortURL(ctx, shortURL)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperror.NotFound("url_mapping", shortURL)
	}
	if err != nil {
		return "", apperror.Storage("get_original_url", err, map[string]any{"short_url": shortURL})
	}

	now := s.now()
	if m.Expired(now) {
		return "", apperror.Expired(shortURL, m.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if s.tracker != nil {
		err := s.tracker.Track(ctx, analytics.ClickInput{
			ShortURL:  shortURL,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Referrer:  meta.Referrer,
			Identity:  meta.Identity,
			Timestamp: now,
		})
		if err != nil {
			s.metrics.ClickTrackingFailed()
			s.logger.Warn("click tracking failed",
				zap.String("short_url", shortURL),
				zap.String("error_code", string(apperror.CodeOf(err))),
				zap.Error(err))
		}
	}

	s.metrics.Redirected()
	return m.OriginalURL, nil
}

// BulkShorten applies one rate-limit check to the batch and collects per-URL failures.
func (s *urlService) BulkShorten(ctx context.Context, req BulkShortenRequest, clientIP, identity string) (*BulkResponse, error) {
	if len(req.URLs) == 0 {
		return nil, apperror.Validation("At least one URL is required", "urls", nil)
	}
	if len(req.URLs) > MaxBulkURLs {
		return nil, apperror.Validation("Too many URLs in one request", "urls", map[string]any{
			"max_urls":     MaxBulkURLs,
			"current_urls": len(req.URLs),
		})
	}
	if err := s.checkRate(ctx, EndpointBulkShorten, clientIP, identity); err != nil {
		return nil, err
	}

	resp := &BulkResponse{
		Created:        make([]URLResponse, 0, len(req.URLs)),
		Failed:         make([]FailedURL, 0),
		TotalRequested: len(req.URLs),
	}
	for _, raw := range req.URLs {
		created, err := s.create(ctx, ShortenRequest{URL: raw, ExpiresAt: req.ExpiresAt}, identity)
		if err != nil {
			e, ok := apperror.As(err)
			if !ok {
				e = apperror.Internal(err)
			}
			resp.Failed = append(resp.Failed, FailedURL{URL: raw, Error: e.Message, ErrorCode: e.Code})
			continue
		}
		resp.Created = append(resp.Created, *created)
	}
	resp.TotalCreated = len(resp.Created)
	resp.TotalFailed = len(resp.Failed)
	return resp, nil
}

func (s *urlService) ListOwned(ctx context.Context, identity string, page, pageSize int) (*URLList, error) {
	if identity == "" {
		return nil, apperror.Unauthenticated("Authentication required")
	}
	if page < 1 {
		return nil, apperror.Validation("Page number must be positive", "page", nil)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, apperror.Validation("Page size must be between 1 and 100", "page_size", nil)
	}

	offset := (page - 1) * pageSize
	total, err := s.urls.Count(ctx, repository.URLFilter{OwnerID: identity})
	if err != nil {
		return nil, apperror.Storage("get_user_urls", err, map[string]any{"user_id": identity})
	}
	mappings, err := s.urls.List(ctx, repository.URLFilter{OwnerID: identity, Offset: offset, Limit: pageSize})
	if err != nil {
		return nil, apperror.Storage("get_user_urls", err, map[string]any{"user_id": identity})
	}

	list := &URLList{
		URLs:        make([]URLResponse, 0, len(mappings)),
		TotalCount:  total,
		Page:        page,
		PageSize:    pageSize,
		HasNext:     int64(offset+pageSize) < total,
		HasPrevious: page > 1,
	}
	for i := range mappings {
		list.URLs = append(list.URLs, *s.response(&mappings[i]))
	}
	return list, nil
}

func (s *urlService) Delete(ctx context.Context, shortURL, identity string) error {
	if _, err := s.owned(ctx, shortURL, identity, "delete_url", "You can only delete your own URLs"); err != nil {
		return err
	}
	if err := s.urls.Delete(ctx, shortURL); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("url_mapping", shortURL)
		}
		return apperror.Storage("delete_url", err, map[string]any{"short_url": shortURL})
	}
	s.logger.Info("short url deleted", zap.String("short_url", shortURL), zap.String("owner", identity))
	return nil
}

// UpdateExpiration moves the expiry of an owned mapping forward.
func (s *urlService) UpdateExpiration(ctx context.Context, shortURL string, expiresAt time.Time, identity string) (*URLResponse, error) {
	if !expiresAt.After(s.now()) {
		return nil, apperror.Validation("Expiration date must be in the future", "expires_at", nil)
	}

	m, err := s.owned(ctx, shortURL, identity, "update_url_expiration", "You can only update your own URLs")
	if err != nil {
		return nil, err
	}
	if m.ExpiresAt != nil && expiresAt.Before(*m.ExpiresAt) {
		return nil, apperror.Validation("Expiration date can only be extended", "expires_at", map[string]any{
			"current_expires_at": m.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}

	updated, err := s.urls.UpdateExpiration(ctx, shortURL, expiresAt.UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("url_mapping", shortURL)
	}
	if err != nil {
		return nil, apperror.Storage("update_url_expiration", err, map[string]any{"short_url": shortURL})
	}
	return s.response(updated), nil
}

// owned loads shortURL and checks that identity owns it.
func (s *urlService) owned(ctx context.Context, shortURL, identity, op, denied string) (*model.URLMapping, error) {
	if identity == "" {
		return nil, apperror.Unauthenticated("Authentication required")
	}

	m, err := s.urls.GetByShortURL(ctx, shortURL)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("url_mapping", shortURL)
	}
	if err != nil {
		return nil, apperror.Storage(op, err, map[string]any{"short_url": shortURL})
	}
	if m.OwnerID != identity {
		return nil, apperror.Forbidden(denied, "url_owner")
	}
	return m, nil
}

func (s *urlService) checkRate(ctx context.Context, endpoint, clientIP, identity string) error {
	if s.limiter == nil {
		return nil
	}
	_, _, err := s.limiter.Check(ctx, s.limiter.KeyFor(endpoint, clientIP, identity), endpoint)
	return apperror.Wrap("check_rate_limit", err, map[string]any{"endpoint": endpoint})
}

func (s *urlService) response(m *model.URLMapping) *URLResponse {
	return &URLResponse{
		ShortURL:    s.baseURL + "/" + m.ShortURL,
		ShortCode:   m.ShortURL,
		OriginalURL: m.OriginalURL,
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
		ClickCount:  m.TotalClicks,
	}
}
