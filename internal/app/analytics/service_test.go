package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/repository/memory"
)

var base = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) // Monday, ISO week 10

func newTestService(t *testing.T) (Service, *memory.Store, *time.Time) {
	t.Helper()
	store := memory.New()
	now := base
	svc := NewService(Deps{
		URLs:   store.URLs,
		Clicks: store.Clicks,
		Now:    func() time.Time { return now },
	})
	return svc, store, &now
}

func seedMapping(t *testing.T, store *memory.Store, short, owner string, created time.Time, expires *time.Time) {
	t.Helper()
	err := store.URLs.Create(context.Background(), &model.URLMapping{
		ShortURL:    short,
		OriginalURL: "https://example.org/" + short,
		OwnerID:     owner,
		CreatedAt:   created,
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", short, err)
	}
}

func TestTrackClick_UniquePerIdentity(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "abc123", "user_1", base, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "abc123", Identity: "user_9"}); err != nil {
			t.Fatalf("TrackClick: %v", err)
		}
	}
	summary, err := svc.TrackClick(ctx, ClickInput{ShortURL: "abc123"})
	if err != nil {
		t.Fatalf("anonymous TrackClick: %v", err)
	}
	if summary.TotalClicks != 3 || summary.UniqueClicks != 1 {
		t.Fatalf("expected 3 total / 1 unique, got %d / %d", summary.TotalClicks, summary.UniqueClicks)
	}

	m, _ := store.URLs.GetByShortURL(ctx, "abc123")
	if m.LastClickedAt == nil || !m.LastClickedAt.Equal(base) {
		t.Fatalf("expected last_clicked_at to be set, got %v", m.LastClickedAt)
	}
}

func TestTrackClick_Errors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "missing"}); !apperror.Is(err, apperror.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	past := base.Add(-time.Hour)
	seedMapping(t, store, "old", "", base.Add(-48*time.Hour), &past)
	if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "old"}); !apperror.Is(err, apperror.CodeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	events, _ := store.Clicks.List(ctx, repository.ClickFilter{ShortURL: "old"})
	if len(events) != 0 {
		t.Fatalf("expired mapping must not record events, got %d", len(events))
	}
}

type mockURLRepo struct {
	repository.URLMappingRepository
	getFn  func(ctx context.Context, shortURL string) (*model.URLMapping, error)
	listFn func(ctx context.Context, f repository.URLFilter) ([]model.URLMapping, error)
}

func (m *mockURLRepo) GetByShortURL(ctx context.Context, shortURL string) (*model.URLMapping, error) {
	return m.getFn(ctx, shortURL)
}

func (m *mockURLRepo) List(ctx context.Context, f repository.URLFilter) ([]model.URLMapping, error) {
	return m.listFn(ctx, f)
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(Deps{
		URLs: &mockURLRepo{
			getFn:  func(context.Context, string) (*model.URLMapping, error) { return nil, boom },
			listFn: func(context.Context, repository.URLFilter) ([]model.URLMapping, error) { return nil, boom },
		},
		Clicks: memory.New().Clicks,
	})
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["track"] = svc.TrackClick(ctx, ClickInput{ShortURL: "x"})
	_, checks["url"] = svc.URLAnalytics(ctx, "x", Range{})
	_, checks["user"] = svc.UserAnalytics(ctx, "u", Range{})
	_, checks["global"] = svc.GlobalAnalytics(ctx, Range{})

	for name, err := range checks {
		e, ok := apperror.As(err)
		if !ok || e.Code != apperror.CodeStorage {
			t.Fatalf("%s: expected storage error, got %v", name, err)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("%s: cause lost", name)
		}
	}
}

func TestRangeValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "abc123", "u", base, nil)

	start := base
	for _, end := range []time.Time{base, base.Add(-time.Minute)} {
		r := Range{Start: &start, End: &end}
		if _, err := svc.URLAnalytics(ctx, "abc123", r); !apperror.Is(err, apperror.CodeValidation) {
			t.Fatalf("url analytics: expected validation error, got %v", err)
		}
		if _, err := svc.UserAnalytics(ctx, "u", r); !apperror.Is(err, apperror.CodeValidation) {
			t.Fatalf("user analytics: expected validation error, got %v", err)
		}
		if _, err := svc.GlobalAnalytics(ctx, r); !apperror.Is(err, apperror.CodeValidation) {
			t.Fatalf("global analytics: expected validation error, got %v", err)
		}
	}
}

func TestURLAnalytics_Buckets(t *testing.T) {
	svc, store, now := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "abc123", "u", base.Add(-72*time.Hour), nil)

	clicks := []struct {
		at       time.Time
		referrer string
		agent    string
	}{
		{base, "https://b.org", "curl"},
		{base.Add(time.Minute), "https://a.org", "curl"},
		{base.Add(time.Hour), "https://a.org", "firefox"},
		{base.Add(24 * time.Hour), "https://b.org", ""},
		{base.Add(25 * time.Hour), "", "firefox"},
	}
	for _, c := range clicks {
		*now = c.at
		if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "abc123", Referrer: c.referrer, UserAgent: c.agent}); err != nil {
			t.Fatalf("TrackClick: %v", err)
		}
	}

	report, err := svc.URLAnalytics(ctx, "abc123", Range{})
	if err != nil {
		t.Fatalf("URLAnalytics: %v", err)
	}
	a := report.Analytics
	if a.TotalClicks != 5 {
		t.Fatalf("expected 5 clicks, got %d", a.TotalClicks)
	}
	if a.ClicksByDay["2026-03-02"] != 3 || a.ClicksByDay["2026-03-03"] != 2 {
		t.Fatalf("unexpected day buckets: %v", a.ClicksByDay)
	}
	if a.ClicksByHour[9] != 3 || a.ClicksByHour[10] != 2 {
		t.Fatalf("unexpected hour buckets: %v", a.ClicksByHour)
	}
	// b.org and a.org both have 2; b.org was seen first.
	if len(a.TopReferrers) != 2 || a.TopReferrers[0].Referrer != "https://b.org" {
		t.Fatalf("unexpected referrers: %+v", a.TopReferrers)
	}
	if len(a.TopUserAgents) != 2 || a.TopUserAgents[0].UserAgent != "curl" || a.TopUserAgents[0].Count != 2 {
		t.Fatalf("unexpected user agents: %+v", a.TopUserAgents)
	}

	start, end := base.Add(30*time.Minute), base.Add(24*time.Hour)
	report, err = svc.URLAnalytics(ctx, "abc123", Range{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("URLAnalytics with range: %v", err)
	}
	if report.Analytics.TotalClicks != 2 {
		t.Fatalf("expected inclusive range to hold 2 clicks, got %d", report.Analytics.TotalClicks)
	}
}

func TestURLAnalytics_UniqueClicksFollowRange(t *testing.T) {
	svc, store, now := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "abc123", "u", base.Add(-72*time.Hour), nil)

	for _, c := range []struct {
		at       time.Time
		identity string
	}{
		{base, "user_1"},
		{base.Add(time.Minute), "user_2"},
		{base.Add(2 * time.Hour), "user_1"},
		{base.Add(3 * time.Hour), ""},
	} {
		*now = c.at
		if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "abc123", Identity: c.identity}); err != nil {
			t.Fatalf("TrackClick: %v", err)
		}
	}

	report, err := svc.URLAnalytics(ctx, "abc123", Range{})
	if err != nil {
		t.Fatalf("URLAnalytics: %v", err)
	}
	if report.Analytics.TotalClicks != 4 || report.Analytics.UniqueClicks != 2 {
		t.Fatalf("expected 4 total / 2 unique, got %d / %d", report.Analytics.TotalClicks, report.Analytics.UniqueClicks)
	}

	start, end := base.Add(time.Hour), base.Add(4*time.Hour)
	report, err = svc.URLAnalytics(ctx, "abc123", Range{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("URLAnalytics with range: %v", err)
	}
	if report.Analytics.TotalClicks != 2 || report.Analytics.UniqueClicks != 1 {
		t.Fatalf("expected 2 total / 1 unique, got %d / %d", report.Analytics.TotalClicks, report.Analytics.UniqueClicks)
	}

	start, end = base.Add(48*time.Hour), base.Add(72*time.Hour)
	report, err = svc.URLAnalytics(ctx, "abc123", Range{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("URLAnalytics with empty range: %v", err)
	}
	if report.Analytics.TotalClicks != 0 || report.Analytics.UniqueClicks != 0 {
		t.Fatalf("expected an empty range to report 0 / 0, got %d / %d", report.Analytics.TotalClicks, report.Analytics.UniqueClicks)
	}
}

func TestTopTenLimit(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "many", "", base, nil)

	for i := 0; i < 15; i++ {
		if _, err := svc.TrackClick(ctx, ClickInput{ShortURL: "many", Referrer: fmt.Sprintf("https://r%d.org", i)}); err != nil {
			t.Fatalf("TrackClick: %v", err)
		}
	}
	report, err := svc.URLAnalytics(ctx, "many", Range{})
	if err != nil {
		t.Fatalf("URLAnalytics: %v", err)
	}
	if len(report.Analytics.TopReferrers) != 10 {
		t.Fatalf("expected top 10, got %d", len(report.Analytics.TopReferrers))
	}
	if report.Analytics.TopReferrers[0].Referrer != "https://r0.org" {
		t.Fatalf("ties must keep first-seen order, got %s", report.Analytics.TopReferrers[0].Referrer)
	}
}

func TestUserAnalytics(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.UserAnalytics(ctx, "nobody", Range{})
	if err != nil {
		t.Fatalf("UserAnalytics: %v", err)
	}
	if empty.TotalURLs != 0 || empty.TotalClicks != 0 || empty.URLs == nil || len(empty.URLs) != 0 {
		t.Fatalf("expected zeroed report, got %+v", empty)
	}

	seedMapping(t, store, "one", "owner", base, nil)
	seedMapping(t, store, "two", "owner", base.Add(time.Hour), nil)
	seedMapping(t, store, "other", "someone", base, nil)

	svc.TrackClick(ctx, ClickInput{ShortURL: "one", Identity: "v1"})
	svc.TrackClick(ctx, ClickInput{ShortURL: "one", Identity: "v1"})
	svc.TrackClick(ctx, ClickInput{ShortURL: "two", Identity: "v2"})
	svc.TrackClick(ctx, ClickInput{ShortURL: "other"})

	report, err := svc.UserAnalytics(ctx, "owner", Range{})
	if err != nil {
		t.Fatalf("UserAnalytics: %v", err)
	}
	if report.TotalURLs != 2 || report.TotalClicks != 3 || report.UniqueClicks != 2 {
		t.Fatalf("unexpected totals: %+v", report)
	}

	start := base.Add(30 * time.Minute)
	report, err = svc.UserAnalytics(ctx, "owner", Range{Start: &start})
	if err != nil {
		t.Fatalf("UserAnalytics with range: %v", err)
	}
	if report.TotalURLs != 1 || report.URLs[0].ShortURL != "two" {
		t.Fatalf("expected only mappings created in range, got %+v", report.URLs)
	}
}

func TestGlobalAnalytics(t *testing.T) {
	svc, store, now := newTestService(t)
	ctx := context.Background()
	seedMapping(t, store, "g1", "a", base, nil)
	seedMapping(t, store, "g2", "b", base, nil)

	svc.TrackClick(ctx, ClickInput{ShortURL: "g1", Referrer: "https://news.org"})
	svc.TrackClick(ctx, ClickInput{ShortURL: "g2"})
	*now = base.Add(7 * 24 * time.Hour)
	svc.TrackClick(ctx, ClickInput{ShortURL: "g2", Identity: "x"})

	report, err := svc.GlobalAnalytics(ctx, Range{})
	if err != nil {
		t.Fatalf("GlobalAnalytics: %v", err)
	}
	if report.TotalURLs != 2 || report.TotalClicks != 3 || report.UniqueClicks != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	ref := report.ReferrerAnalytics
	if ref.DirectClicks != 2 || ref.TotalWithReferrer != 1 || ref.TopReferrers[0].Referrer != "https://news.org" {
		t.Fatalf("unexpected referrer split: %+v", ref)
	}
	weeks := report.TimeAnalytics.ClicksByWeek
	if weeks["2026-W10"] != 2 || weeks["2026-W11"] != 1 {
		t.Fatalf("unexpected week buckets: %v", weeks)
	}
}
