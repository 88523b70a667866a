package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the weather feed
// service.
type Metrics struct {
	UpdateRequests prometheus.Counter
	FetchOutcomes  *prometheus.CounterVec   // labels: feed={metar,taf}, outcome={committed,not_found,transient_failure,parse_failure,skipped}
	FetchDuration  *prometheus.HistogramVec // labels: feed={metar,taf}
	TrackedFeeds   prometheus.Gauge
	ObserverCount  prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpdateRequests,
		m.FetchOutcomes,
		m.FetchDuration,
		m.TrackedFeeds,
		m.ObserverCount,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpdateRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "avweather",
			Name:      "update_requests_total",
			Help:      "Total operator-triggered update requests.",
		}),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avweather",
			Name:      "fetch_outcomes_total",
			Help:      "Per-target fetch attempt results by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "avweather",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one fetch+parse+commit attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		TrackedFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "avweather",
			Name:      "tracked_feeds",
			Help:      "Number of (airport, feed) pairs in the monitored set.",
		}),
		ObserverCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "avweather",
			Name:      "websocket_observers",
			Help:      "Currently connected websocket observers.",
		}),
	}
}
