package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pnlboard/internal/domain"
)

// Metrics holds the Prometheus collectors exported on /metrics. Each
// instance owns its registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	feedLoads   *prometheus.CounterVec
	feedRecords *prometheus.GaugeVec
	exports     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		feedLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pnlboard_feed_loads_total",
			Help: "Applied source loads by outcome.",
		}, []string{"source", "result"}),
		feedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pnlboard_feed_records",
			Help: "Records held for each source after the last successful load.",
		}, []string{"source"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pnlboard_exports_total",
			Help: "Trade exports by source and outcome.",
		}, []string{"source", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.feedLoads, m.feedRecords, m.exports,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLoad records a feed load. Its signature matches feed.LoadObserver.
func (m *Metrics) ObserveLoad(src domain.Source, records int, err error, _ time.Duration) {
	if err != nil {
		m.feedLoads.WithLabelValues(string(src), "error").Inc()
		return
	}
	m.feedLoads.WithLabelValues(string(src), "ok").Inc()
	m.feedRecords.WithLabelValues(string(src)).Set(float64(records))
}

// ObserveExport records an export outcome.
func (m *Metrics) ObserveExport(by domain.Source, err error) {
	if by == "" {
		by = domain.SourceOpen
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exports.WithLabelValues(string(by), result).Inc()
}

func (m *Metrics) observeRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
