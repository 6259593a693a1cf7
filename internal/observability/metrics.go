package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// live-data service.
type Metrics struct {
	CacheEvents   *prometheus.CounterVec   // labels: type={HIT,MISS,INSERT}
	QueryDuration *prometheus.HistogramVec // labels: query
	HTTPRequests  *prometheus.CounterVec   // labels: route, code

	PointsDischarging prometheus.Gauge
	AuditDropped      prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheEvents,
		m.QueryDuration,
		m.HTTPRequests,
		m.PointsDischarging,
		m.AuditDropped,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cso_live",
			Name:      "cache_events_total",
			Help:      "Response cache lookups by outcome.",
		}, []string{"type"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cso_live",
			Name:      "query_duration_seconds",
			Help:      "Named database query duration, including rollback paths.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"query"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cso_live",
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
		PointsDischarging: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_live",
			Name:      "points_discharging",
			Help:      "Monitoring points whose latest event is Start, per the last summary computation.",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_live",
			Name:      "audit_events_dropped_total",
			Help:      "Observability events dropped because the audit sink was full or failing.",
		}),
	}
}
