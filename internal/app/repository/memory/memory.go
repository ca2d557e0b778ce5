// Package memory is a process-local implementation of the repository contracts.
// It backs the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
)

// Store holds all records behind one lock so click recording stays atomic.
type Store struct {
	mu       sync.RWMutex
	urls     map[string]*model.URLMapping
	urlOrder []string
	clicks   []model.ClickEvent
	windows  map[uint]*model.RateLimitWindow
	nextID   uint
	now      func() time.Time

	URLs       *URLMappings
	Clicks     *ClickEvents
	RateLimits *RateLimits
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		urls:    make(map[string]*model.URLMapping),
		windows: make(map[uint]*model.RateLimitWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.URLs = &URLMappings{s: s}
	s.Clicks = &ClickEvents{s: s}
	s.RateLimits = &RateLimits{s: s}
	return s
}

// Ping always succeeds; it lets the store stand in for a database health probe.
func (s *Store) Ping(context.Context) error { return nil }

// URLMappings implements repository.URLMappingRepository.
type URLMappings struct{ s *Store }

var _ repository.URLMappingRepository = (*URLMappings)(nil)

func (r *URLMappings) Create(_ context.Context, m *model.URLMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.urls[m.ShortURL]; ok {
		return repository.ErrDuplicate
	}
	if m.CustomAlias != nil {
		for _, existing := range r.s.urls {
			if existing.CustomAlias != nil && *existing.CustomAlias == *m.CustomAlias {
				return repository.ErrDuplicate
			}
		}
	}

	now := r.s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	stored := *m
	r.s.urls[m.ShortURL] = &stored
	r.s.urlOrder = append(r.s.urlOrder, m.ShortURL)
	return nil
}

func (r *URLMappings) GetByShortURL(_ context.Context, shortURL string) (*model.URLMapping, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.urls[shortURL]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *URLMappings) GetByAlias(_ context.Context, alias string) (*model.URLMapping, error) {
	return r.findFirst(func(m *model.URLMapping) bool {
		return m.CustomAlias != nil && *m.CustomAlias == alias
	})
}

func (r *URLMappings) GetByOriginalURL(_ context.Context, originalURL string) (*model.URLMapping, error) {
	return r.findFirst(func(m *model.URLMapping) bool { return m.OriginalURL == originalURL })
}

func (r *URLMappings) findFirst(match func(*model.URLMapping) bool) (*model.URLMapping, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, code := range r.s.urlOrder {
		m, ok := r.s.urls[code]
		if ok && match(m) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *URLMappings) filtered(f repository.URLFilter) []model.URLMapping {
	var out []model.URLMapping
	for _, code := range r.s.urlOrder {
		m, ok := r.s.urls[code]
		if !ok {
			continue
		}
		if f.OwnerID != "" && m.OwnerID != f.OwnerID {
			continue
		}
		if !inRange(m.CreatedAt, f.CreatedFrom, f.CreatedTo) {
			continue
		}
		out = append(out, *m)
	}
	return out
}

func (r *URLMappings) List(_ context.Context, f repository.URLFilter) ([]model.URLMapping, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.filtered(f)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return nil, nil
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *URLMappings) Count(_ context.Context, f repository.URLFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.filtered(f))), nil
}

func (r *URLMappings) UpdateExpiration(_ context.Context, shortURL string, expiresAt time.Time) (*model.URLMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.urls[shortURL]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.ExpiresAt = &expiresAt
	m.UpdatedAt = r.s.now()
	cp := *m
	return &cp, nil
}

func (r *URLMappings) Delete(_ context.Context, shortURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.urls[shortURL]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.urls, shortURL)
	for i, code := range r.s.urlOrder {
		if code == shortURL {
			r.s.urlOrder = append(r.s.urlOrder[:i], r.s.urlOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (r *URLMappings) ShortURLs(context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]string(nil), r.s.urlOrder...), nil
}

// ClickEvents implements repository.ClickEventRepository.
type ClickEvents struct{ s *Store }

var _ repository.ClickEventRepository = (*ClickEvents)(nil)

func (r *ClickEvents) Record(_ context.Context, event *model.ClickEvent) (*model.URLMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.urls[event.ShortURL]
	if !ok {
		return nil, repository.ErrNotFound
	}

	unique := false
	if event.UserID != "" {
		unique = true
		for _, c := range r.s.clicks {
			if c.ShortURL == event.ShortURL && c.UserID == event.UserID {
				unique = false
				break
			}
		}
	}

	r.s.clicks = append(r.s.clicks, *event)
	m.TotalClicks++
	if unique {
		m.UniqueClicks++
	}
	ts := event.Timestamp
	m.LastClickedAt = &ts
	m.UpdatedAt = r.s.now()

	cp := *m
	return &cp, nil
}

func (r *ClickEvents) List(_ context.Context, f repository.ClickFilter) ([]model.ClickEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []model.ClickEvent
	for _, c := range r.s.clicks {
		if f.ShortURL != "" && c.ShortURL != f.ShortURL {
			continue
		}
		if !inRange(c.Timestamp, f.From, f.To) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// RateLimits implements repository.RateLimitRepository.
type RateLimits struct{ s *Store }

var _ repository.RateLimitRepository = (*RateLimits)(nil)

func (r *RateLimits) FindActive(_ context.Context, identifier, endpoint string, now time.Time) (*model.RateLimitWindow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found *model.RateLimitWindow
	for _, w := range r.s.windows {
		if w.Identifier != identifier || w.Endpoint != endpoint || !w.Contains(now) {
			continue
		}
		if found == nil || w.WindowStart.After(found.WindowStart) {
			found = w
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *RateLimits) Create(_ context.Context, w *model.RateLimitWindow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextID++
	w.ID = r.s.nextID
	if w.CreatedAt.IsZero() {
		w.CreatedAt = r.s.now()
	}
	stored := *w
	r.s.windows[w.ID] = &stored
	return nil
}

func (r *RateLimits) Increment(_ context.Context, w *model.RateLimitWindow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.windows[w.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.RequestCount++
	w.RequestCount = stored.RequestCount
	return nil
}

func (r *RateLimits) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, w := range r.s.windows {
		if !w.WindowEnd.After(now) {
			delete(r.s.windows, id)
			n++
		}
	}
	return n, nil
}

func (r *RateLimits) Delete(_ context.Context, identifier, endpoint string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, w := range r.s.windows {
		if w.Identifier == identifier && w.Endpoint == endpoint {
			delete(r.s.windows, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored windows.
func (r *RateLimits) Len() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.windows)
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
