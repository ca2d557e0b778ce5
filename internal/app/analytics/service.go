// Package analytics records click events and aggregates them into reports.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
)

// Service defines the analytics operations.
type Service interface {
	TrackClick(ctx context.Context, in ClickInput) (*ClickSummary, error)
	URLAnalytics(ctx context.Context, shortURL string, r Range) (*URLReport, error)
	UserAnalytics(ctx context.Context, identity string, r Range) (*UserReport, error)
	GlobalAnalytics(ctx context.Context, r Range) (*GlobalReport, error)
}

// ClickInput is one visit to a short URL.
type ClickInput struct {
	ShortURL  string    `json:"short_url"`
	IP        string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	Identity  string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClickSummary struct {
	ShortURL     string    `json:"short_url"`
	OriginalURL  string    `json:"original_url"`
	TotalClicks  int64     `json:"total_clicks"`
	UniqueClicks int64     `json:"unique_clicks"`
	Timestamp    time.Time `json:"timestamp"`
}

// Range is an optional, inclusive time window.
type Range struct {
	Start *time.Time `json:"start_date"`
	End   *time.Time `json:"end_date"`
}

func (r Range) validate() error {
	if r.Start != nil && r.End != nil && !r.Start.Before(*r.End) {
		return apperror.Validation("Start date must be before end date", "date_range", nil)
	}
	return nil
}

type URLReport struct {
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Analytics   URLStats   `json:"analytics"`
	Period      Range      `json:"period"`
}

type URLSummary struct {
	ShortURL      string     `json:"short_url"`
	OriginalURL   string     `json:"original_url"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	TotalClicks   int64      `json:"total_clicks"`
	UniqueClicks  int64      `json:"unique_clicks"`
	LastClickedAt *time.Time `json:"last_clicked_at"`
}

type UserReport struct {
	UserID       string       `json:"user_id"`
	TotalURLs    int          `json:"total_urls"`
	TotalClicks  int64        `json:"total_clicks"`
	UniqueClicks int64        `json:"unique_clicks"`
	URLs         []URLSummary `json:"urls"`
	Period       Range        `json:"period"`
}

type GlobalReport struct {
	TotalURLs         int           `json:"total_urls"`
	TotalClicks       int64         `json:"total_clicks"`
	UniqueClicks      int64         `json:"unique_clicks"`
	TimeAnalytics     TimeStats     `json:"time_analytics"`
	ReferrerAnalytics ReferrerStats `json:"referrer_analytics"`
	Period            Range         `json:"period"`
}

// Deps holds the collaborators of the analytics service.
type Deps struct {
	URLs   repository.URLMappingRepository
	Clicks repository.ClickEventRepository
	Logger *zap.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

type service struct {
	urls   repository.URLMappingRepository
	clicks repository.ClickEventRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(deps Deps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		urls:   deps.URLs,
		clicks: deps.Clicks,
		logger: logger.Named("analytics"),
		now:    now,
	}
}

// TrackClick appends a click event and updates the mapping's counters atomically.
// Anonymous clicks never count as unique.
func (s *service) TrackClick(ctx context.Context, in ClickInput) (*ClickSummary, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	m, err := s.urls.GetByShortURL(ctx, in.ShortURL)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("url_mapping", in.ShortURL)
	}
	if err != nil {
		return nil, apperror.Storage("track_click", err, map[string]any{"short_url": in.ShortURL})
	}
	if m.Expired(ts) {
		return nil, apperror.Expired(in.ShortURL, m.ExpiresAt.UTC().Format(time.RFC3339))
	}

	event := &model.ClickEvent{
		ID:        uuid.NewString(),
		ShortURL:  in.ShortURL,
		UserID:    in.Identity,
		IPAddress: in.IP,
		UserAgent: in.UserAgent,
		Referrer:  in.Referrer,
		Timestamp: ts,
	}
	updated, err := s.clicks.Record(ctx, event)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("url_mapping", in.ShortURL)
	}
	if err != nil {
		return nil, apperror.Storage("track_click", err, map[string]any{"short_url": in.ShortURL})
	}

	return &ClickSummary{
		ShortURL:     updated.ShortURL,
		OriginalURL:  updated.OriginalURL,
		TotalClicks:  updated.TotalClicks,
		UniqueClicks: updated.UniqueClicks,
		Timestamp:    ts,
	}, nil
}

func (s *service) URLAnalytics(ctx context.Context, shortURL string, r Range) (*URLReport, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	m, err := s.urls.GetByShortURL(ctx, shortURL)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("url_mapping", shortURL)
	}
	if err != nil {
		return nil, apperror.Storage("get_analytics", err, map[string]any{"short_url": shortURL})
	}

	events, err := s.clicks.List(ctx, repository.ClickFilter{ShortURL: shortURL, From: r.Start, To: r.End})
	if err != nil {
		return nil, apperror.Storage("get_analytics", err, map[string]any{"short_url": shortURL})
	}

	return &URLReport{
		ShortURL:    m.ShortURL,
		OriginalURL: m.OriginalURL,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		Analytics:   aggregateURL(events),
		Period:      r,
	}, nil
}

// UserAnalytics reports on mappings owned by identity and created within r.
// An owner without mappings gets a zeroed report.
func (s *service) UserAnalytics(ctx context.Context, identity string, r Range) (*UserReport, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	mappings, err := s.urls.List(ctx, repository.URLFilter{OwnerID: identity, CreatedFrom: r.Start, CreatedTo: r.End})
	if err != nil {
		return nil, apperror.Storage("get_user_analytics", err, map[string]any{"user_id": identity})
	}

	report := &UserReport{UserID: identity, URLs: make([]URLSummary, 0, len(mappings)), Period: r}
	for _, m := range mappings {
		report.TotalClicks += m.TotalClicks
		report.UniqueClicks += m.UniqueClicks
		report.URLs = append(report.URLs, URLSummary{
			ShortURL:      m.ShortURL,
			OriginalURL:   m.OriginalURL,
			CreatedAt:     m.CreatedAt,
			ExpiresAt:     m.ExpiresAt,
			TotalClicks:   m.TotalClicks,
			UniqueClicks:  m.UniqueClicks,
			LastClickedAt: m.LastClickedAt,
		})
	}
	report.TotalURLs = len(mappings)
	return report, nil
}

// GlobalAnalytics totals mappings created within r and buckets clicks that happened within r.
func (s *service) GlobalAnalytics(ctx context.Context, r Range) (*GlobalReport, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	mappings, err := s.urls.List(ctx, repository.URLFilter{CreatedFrom: r.Start, CreatedTo: r.End})
	if err != nil {
		return nil, apperror.Storage("get_global_analytics", err, nil)
	}
	events, err := s.clicks.List(ctx, repository.ClickFilter{From: r.Start, To: r.End})
	if err != nil {
		return nil, apperror.Storage("get_global_analytics", err, nil)
	}

	report := &GlobalReport{
		TotalURLs:         len(mappings),
		TimeAnalytics:     aggregateTime(events),
		ReferrerAnalytics: aggregateReferrers(events),
		Period:            r,
	}
	for _, m := range mappings {
		report.TotalClicks += m.TotalClicks
		report.UniqueClicks += m.UniqueClicks
	}

	s.logger.Debug("global analytics computed",
		zap.Int("urls", report.TotalURLs),
		zap.Int("events", len(events)))
	return report, nil
}
