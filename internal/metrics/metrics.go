// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "uptimealert"

// Check outcomes used as the "outcome" label of ChecksTotal.
const (
	OutcomeUp          = "up"
	OutcomeDown        = "down"
	OutcomeUnreachable = "unreachable"
)

var (
	// Registry is the registry served by the HTTP API.
	Registry = prometheus.NewRegistry()

	ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checks_total",
		Help:      "Probes executed, by outcome.",
	}, []string{"outcome"})

	CheckLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "check_latency_seconds",
		Help:      "Latency of probes that got a response.",
		Buckets:   prometheus.DefBuckets,
	})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a full check cycle.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	PersistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_errors_total",
		Help:      "Results or alerts that could not be written.",
	})

	AlertsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_created_total",
		Help:      "Alerts recorded for failed probes.",
	})

	AlertsDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_dispatched_total",
		Help:      "Alerts delivered and marked sent.",
	})

	AlertsSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_suppressed_total",
		Help:      "Pending alerts skipped by the per-monitor rate limit.",
	})

	DeliveryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Failed delivery attempts, by path (recipient or monitor).",
	}, []string{"path"})

	ResultsRotatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "results_rotated_total",
		Help:      "Check results deleted by retention.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ChecksTotal,
		CheckLatency,
		CycleDuration,
		PersistErrorsTotal,
		AlertsCreatedTotal,
		AlertsDispatchedTotal,
		AlertsSuppressedTotal,
		DeliveryFailuresTotal,
		ResultsRotatedTotal,
	)
}
