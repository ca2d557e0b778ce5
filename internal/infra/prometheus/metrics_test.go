package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[f.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[f.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.URLShortened()
	m.URLShortened()
	m.Redirected()
	m.RateLimited("/shorten/")
	m.ClickTrackingFailed()
	m.ObserveRequest("GET", "/:short_url", 302, 5*time.Millisecond)

	got := gather(t, reg)
	want := map[string]float64{
		"urls_shortened_total":          2,
		"redirects_total":               1,
		"rate_limit_denied_total":       1,
		"click_tracking_failures_total": 1,
		"http_requests_total":           1,
		"http_request_duration_seconds": 1,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s: expected %v, got %v", name, v, got[name])
		}
	}
}
