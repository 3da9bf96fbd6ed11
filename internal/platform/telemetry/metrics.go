// Package telemetry owns the Prometheus collectors and the OpenTelemetry
// tracer provider used across the service.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hospital"

// Metrics groups every collector the service exports. A nil *Metrics is valid
// and records nothing, which keeps unit tests free of registry setup.
type Metrics struct {
	registry prometheus.Gatherer

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	StoreCalls   *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec

	FederatedFetches   *prometheus.CounterVec
	FederatedBatchSize prometheus.Histogram
	UnresolvedRefs     *prometheus.CounterVec

	ScheduleConflicts prometheus.Counter
	Transitions       *prometheus.CounterVec
	AuthAttempts      *prometheus.CounterVec
	AccountLockouts   prometheus.Counter
}

// NewMetrics registers all collectors with reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration against the default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		StoreCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "calls_total",
			Help:      "Store calls by store and outcome (ok, error, unavailable).",
		}, []string{"store", "outcome"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per store: 0 closed, 1 half-open, 2 open.",
		}, []string{"store"}),

		FederatedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "fetches_total",
			Help:      "Round trips to the central store issued by the join engine.",
		}, []string{"kind", "outcome"}),

		FederatedBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "batch_size",
			Help:      "Distinct patient identities per batched fetch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),

		UnresolvedRefs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "federation",
			Name:      "unresolved_references_total",
			Help:      "Patient references that did not resolve in the central store.",
		}, []string{"source"}),

		ScheduleConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Appointment writes rejected for an occupied slot.",
		}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Applied workflow transitions.",
		}, []string{"machine", "from", "to"}),

		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),

		AccountLockouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Accounts disabled after too many failed attempts.",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) StoreCall(store, outcome string) {
	if m == nil {
		return
	}
	m.StoreCalls.WithLabelValues(store, outcome).Inc()
}

func (m *Metrics) SetBreakerState(store string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(store).Set(float64(state))
}

func (m *Metrics) FederatedFetch(kind, outcome string, batch int) {
	if m == nil {
		return
	}
	m.FederatedFetches.WithLabelValues(kind, outcome).Inc()
	if batch > 0 {
		m.FederatedBatchSize.Observe(float64(batch))
	}
}

func (m *Metrics) Unresolved(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.UnresolvedRefs.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.ScheduleConflicts.Inc()
}

func (m *Metrics) Transition(machine, from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(machine, from, to).Inc()
}

func (m *Metrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.AccountLockouts.Inc()
}
