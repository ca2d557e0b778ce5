package service

import (
	"context"

	"github.com/sifan077/shortener/internal/app/analytics"
)

// ClickTracker receives clicks from resolve. Implementations may record them
// inline or hand them off for asynchronous processing.
type ClickTracker interface {
	Track(ctx context.Context, in analytics.ClickInput) error
}

type ClickTrackerFunc func(ctx context.Context, in analytics.ClickInput) error

func (f ClickTrackerFunc) Track(ctx context.Context, in analytics.ClickInput) error {
	return f(ctx, in)
}

// InlineTracker records each click synchronously through the analytics service.
func InlineTracker(svc analytics.Service) ClickTracker {
	return ClickTrackerFunc(func(ctx context.Context, in analytics.ClickInput) error {
		_, err := svc.TrackClick(ctx, in)
		return err
	})
}

// Recorder receives business metrics from the services.
type Recorder interface {
	URLShortened()
	Redirected()
	ClickTrackingFailed()
}

type nopRecorder struct{}

func (nopRecorder) URLShortened()        {}
func (nopRecorder) Redirected()          {}
func (nopRecorder) ClickTrackingFailed() {}
