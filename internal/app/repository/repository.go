package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate signals a uniqueness constraint violation.
	ErrDuplicate = errors.New("record already exists")
)

// URLFilter narrows URL mapping queries. Zero values mean "no constraint".
type URLFilter struct {
	OwnerID     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Offset      int
	Limit       int
}

// ClickFilter narrows click event queries. Bounds are inclusive.
type ClickFilter struct {
	ShortURL string
	From     *time.Time
	To       *time.Time
}

// URLMappingRepository defines the data access contract for URL mappings.
type URLMappingRepository interface {
	Create(ctx context.Context, m *model.URLMapping) error
	GetByShortURL(ctx context.Context, shortURL string) (*model.URLMapping, error)
	GetByAlias(ctx context.Context, alias string) (*model.URLMapping, error)
	GetByOriginalURL(ctx context.Context, originalURL string) (*model.URLMapping, error)
	List(ctx context.Context, f URLFilter) ([]model.URLMapping, error)
	Count(ctx context.Context, f URLFilter) (int64, error)
	UpdateExpiration(ctx context.Context, shortURL string, expiresAt time.Time) (*model.URLMapping, error)
	Delete(ctx context.Context, shortURL string) error
	ShortURLs(ctx context.Context) ([]string, error)
}

// ClickEventRepository defines the data access contract for click events.
type ClickEventRepository interface {
	// Record appends the event and bumps the mapping's counters in one unit of work.
	// UniqueClicks is incremented only for the first event of a (short_url, user_id)
	// pair with a non-empty user id. The updated mapping is returned.
	Record(ctx context.Context, event *model.ClickEvent) (*model.URLMapping, error)
	// List returns matching events ordered by timestamp.
	List(ctx context.Context, f ClickFilter) ([]model.ClickEvent, error)
}

// RateLimitRepository stores fixed rate-limit windows.
type RateLimitRepository interface {
	// FindActive returns the window of (identifier, endpoint) containing now.
	FindActive(ctx context.Context, identifier, endpoint string, now time.Time) (*model.RateLimitWindow, error)
	Create(ctx context.Context, w *model.RateLimitWindow) error
	// Increment persists w.RequestCount + 1 and updates w.
	Increment(ctx context.Context, w *model.RateLimitWindow) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Delete(ctx context.Context, identifier, endpoint string) (int64, error)
}
