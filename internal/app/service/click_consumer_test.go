package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/apperror"
)

func TestClickConsumer_Process(t *testing.T) {
	payload, _ := json.Marshal(analytics.ClickInput{
		ShortURL:  "abc123",
		IP:        "1.2.3.4",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	cases := []struct {
		name string
		data []byte
		err  error
		want disposition
	}{
		{"recorded", payload, nil, dispAck},
		{"not found", payload, apperror.NotFound("url_mapping", "abc123"), dispAck},
		{"expired", payload, apperror.Expired("abc123", "2025-01-01T00:00:00Z"), dispAck},
		{"storage", payload, apperror.Storage("track_click", errors.New("down"), nil), dispNak},
		{"malformed", []byte("{not json"), nil, dispTerm},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got analytics.ClickInput
			metrics := &recordingMetrics{}
			c := NewClickConsumer(nil, ClickTrackerFunc(func(_ context.Context, in analytics.ClickInput) error {
				got = in
				return tc.err
			}), metrics, nil)

			if d := c.process(context.Background(), tc.data); d != tc.want {
				t.Fatalf("expected disposition %d, got %d", tc.want, d)
			}
			if tc.want != dispTerm && got.ShortURL != "abc123" {
				t.Fatalf("click not decoded: %+v", got)
			}
			if tc.err != nil && metrics.trackingFailed != 1 {
				t.Fatalf("expected failure metric, got %d", metrics.trackingFailed)
			}
		})
	}
}
