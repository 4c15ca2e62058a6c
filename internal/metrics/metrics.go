package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parcelbox"

// Collector holds the service metrics. A nil *Collector is valid and records
// nothing, so services can be built without metrics in tests.
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ledgerConflicts   prometheus.Counter
	parcelTransitions *prometheus.CounterVec
	trackingGenerated *prometheus.CounterVec
	trackingFailures  prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			}, []string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"},
		),
		ledgerConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_version_conflicts_total",
				Help:      "Transactions retried after a concurrent update of the same entity.",
			},
		),
		parcelTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parcel_transitions_total",
				Help:      "Committed parcel status changes by target status.",
			}, []string{"to"},
		),
		trackingGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_generated_total",
				Help:      "Tracking records written, by caller.",
			}, []string{"source"},
		),
		trackingFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_generation_failures_total",
				Help:      "Parcels marked sent whose tracking record could not be written.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.httpRequests.Describe(ch)
	c.httpDuration.Describe(ch)
	c.ledgerConflicts.Describe(ch)
	c.parcelTransitions.Describe(ch)
	c.trackingGenerated.Describe(ch)
	c.trackingFailures.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.httpRequests.Collect(ch)
	c.httpDuration.Collect(ch)
	c.ledgerConflicts.Collect(ch)
	c.parcelTransitions.Collect(ch)
	c.trackingGenerated.Collect(ch)
	c.trackingFailures.Collect(ch)
}

// Registry returns a registry with the collector and the Go runtime metrics.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if c != nil {
		reg.MustRegister(c)
	}
	return reg
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, code int, took time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (c *Collector) LedgerConflict() {
	if c == nil {
		return
	}
	c.ledgerConflicts.Inc()
}

func (c *Collector) ParcelTransition(to string) {
	if c == nil {
		return
	}
	c.parcelTransitions.WithLabelValues(to).Inc()
}

func (c *Collector) TrackingGenerated(source string) {
	if c == nil {
		return
	}
	c.trackingGenerated.WithLabelValues(source).Inc()
}

func (c *Collector) TrackingFailure() {
	if c == nil {
		return
	}
	c.trackingFailures.Inc()
}
