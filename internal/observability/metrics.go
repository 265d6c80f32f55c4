package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Request outcomes recorded by the chat pipeline.
const (
	OutcomeAnswered   = "answered"
	OutcomeBlocked    = "blocked"
	OutcomeModelError = "model_error"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	responseSeconds   prometheus.Histogram
	policyMatches     *prometheus.CounterVec
	alertsPublished   prometheus.Counter
	retrievalFailures prometheus.Counter
	auditFailures     prometheus.Counter
	jobRuns           *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Chat requests by outcome",
			},
			[]string{"outcome"},
		),
		responseSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_seconds",
				Help:      "End to end chat pipeline latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		policyMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_matches_total",
				Help:      "Prompts matched by a policy rule, by action",
			},
			[]string{"action"},
		),
		alertsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_published_total",
				Help:      "Alerts published on the alert bus",
			},
		),
		retrievalFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_failures_total",
				Help:      "Retrieval calls that degraded to an empty result",
			},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_failures_total",
				Help:      "Audit ledger appends that failed",
			},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Background job ticks by job and status",
			},
			[]string{"job", "status"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.responseSeconds,
		m.policyMatches,
		m.alertsPublished,
		m.retrievalFailures,
		m.auditFailures,
		m.jobRuns,
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (m *Metrics) RecordRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.responseSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordPolicyMatch(action string) {
	if m == nil {
		return
	}
	m.policyMatches.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordAlert() {
	if m == nil {
		return
	}
	m.alertsPublished.Inc()
}

func (m *Metrics) RecordRetrievalFailure() {
	if m == nil {
		return
	}
	m.retrievalFailures.Inc()
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// RecordJobRun counts one job tick. err == nil records status "ok".
func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}
