// Package metrics holds the Prometheus collectors of the checkout service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame ingestion outcomes.
const (
	OutcomeAdded    = "added"
	OutcomeUnknown  = "unknown"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// Registry owns a private Prometheus registry. A nil *Registry is valid
// and records nothing.
type Registry struct {
	reg               *prometheus.Registry
	FramesIngested    *prometheus.CounterVec
	ClassifySeconds   prometheus.Histogram
	Transitions       *prometheus.CounterVec
	InvoicesIssued    prometheus.Counter
	LedgerDrift       prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPLatencySecond *prometheus.HistogramVec
}

// NewRegistry creates and registers every collector.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_frames_ingested_total",
		Help: "Frames processed by the ingestion pipeline, by outcome.",
	}, []string{"outcome"})
	classify := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_classify_seconds",
		Help:    "Classifier call latency.",
		Buckets: prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_session_transitions_total",
		Help: "Session state transitions, by target state.",
	}, []string{"to"})
	invoices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_invoices_issued_total",
		Help: "Invoices issued at confirmation.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_ledger_drift_total",
		Help: "Cart reads where the cached total disagreed with the line sum.",
	})
	httpReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_http_request_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(frames, classify, transitions, invoices, drift, httpReqs, httpLatency)
	return &Registry{
		reg:               r,
		FramesIngested:    frames,
		ClassifySeconds:   classify,
		Transitions:       transitions,
		InvoicesIssued:    invoices,
		LedgerDrift:       drift,
		HTTPRequests:      httpReqs,
		HTTPLatencySecond: httpLatency,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Frame(outcome string) {
	if r == nil {
		return
	}
	r.FramesIngested.WithLabelValues(outcome).Inc()
}

func (r *Registry) Classified(d time.Duration) {
	if r == nil {
		return
	}
	r.ClassifySeconds.Observe(d.Seconds())
}

func (r *Registry) Transition(to string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(to).Inc()
}

func (r *Registry) InvoiceIssued() {
	if r == nil {
		return
	}
	r.InvoicesIssued.Inc()
}

func (r *Registry) Drift() {
	if r == nil {
		return
	}
	r.LedgerDrift.Inc()
}

func (r *Registry) HTTPRequest(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, status).Inc()
	r.HTTPLatencySecond.WithLabelValues(method, route).Observe(d.Seconds())
}
