// Package metrics exposes poller activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unklstewy/flight-display/internal/cache"
)

// Metrics holds all prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Cycles              *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	FlightsPublished    prometheus.Gauge
	ConsecutiveFailures prometheus.Gauge
	Backoffs            prometheus.Counter
	DetailRequests      *prometheus.CounterVec
	CacheSize           prometheus.Gauge
	CacheHits           prometheus.Gauge
	CacheMisses         prometheus.Gauge
}

// New registers the metrics with reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "The total number of poll cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Time taken by one poll cycle including data source calls",
			Buckets:   prometheus.DefBuckets,
		}),
		FlightsPublished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flights_published",
			Help:      "Number of flights in the most recent successful cycle",
		}),
		ConsecutiveFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current run of failed poll cycles",
		}),
		Backoffs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoff_total",
			Help:      "The total number of backoff cooldowns entered",
		}),
		DetailRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_requests_total",
			Help:      "The total number of full-detail requests by outcome",
		}, []string{"outcome"}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detail_cache_entries",
			Help:      "Entries currently held in the detail cache",
		}),
		CacheHits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detail_cache_hits",
			Help:      "Detail cache hits since start",
		}),
		CacheMisses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detail_cache_misses",
			Help:      "Detail cache misses since start",
		}),
	}
}

// CycleSucceeded records a successful cycle.
func (m *Metrics) CycleSucceeded(d time.Duration, flights int) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues("success").Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.FlightsPublished.Set(float64(flights))
	m.ConsecutiveFailures.Set(0)
}

// CycleFailed records a failed cycle.
func (m *Metrics) CycleFailed(d time.Duration, consecutive int) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues("failure").Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.ConsecutiveFailures.Set(float64(consecutive))
}

// BackoffEntered records a backoff cooldown.
func (m *Metrics) BackoffEntered() {
	if m == nil {
		return
	}
	m.Backoffs.Inc()
}

// DetailRequest records a full-detail call outcome.
func (m *Metrics) DetailRequest(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.DetailRequests.WithLabelValues(outcome).Inc()
}

// ObserveCache copies detail cache counters into the gauges.
func (m *Metrics) ObserveCache(s cache.Stats) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(s.Size))
	m.CacheHits.Set(float64(s.Hits))
	m.CacheMisses.Set(float64(s.Misses))
}
