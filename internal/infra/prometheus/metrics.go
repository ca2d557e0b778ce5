package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's collectors. It satisfies service.Recorder.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	shortened       prometheus.Counter
	redirects       prometheus.Counter
	rateLimited     *prometheus.CounterVec
	trackingFailed  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the metrics registered on the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		shortened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urls_shortened_total",
			Help: "Short URLs created.",
		}),
		redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirects_total",
			Help: "Successful short URL resolutions.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_denied_total",
			Help: "Requests denied by the rate limiter, by endpoint.",
		}, []string{"endpoint"}),
		trackingFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "click_tracking_failures_total",
			Help: "Clicks that could not be recorded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.shortened, m.redirects, m.rateLimited, m.trackingFailed)
	}
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) URLShortened()        { m.shortened.Inc() }
func (m *Metrics) Redirected()          { m.redirects.Inc() }
func (m *Metrics) ClickTrackingFailed() { m.trackingFailed.Inc() }

func (m *Metrics) RateLimited(endpoint string) { m.rateLimited.WithLabelValues(endpoint).Inc() }
