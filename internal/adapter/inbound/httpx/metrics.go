// Package httpx provides shared HTTP infrastructure for the inbound
// adapters: prometheus metrics, health checks, and middleware.
package httpx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for actiongate.
// Pass to components that need to record metrics.
type Metrics struct {
	InvocationsTotal  *prometheus.CounterVec
	DecisionsTotal    *prometheus.CounterVec
	PendingActions    prometheus.Gauge
	ExecutionDuration *prometheus.HistogramVec
	AuditDropsTotal   prometheus.Counter
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		InvocationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "actiongate",
				Name:      "invocations_total",
				Help:      "Total capability invocation attempts by outcome",
			},
			[]string{"outcome"}, // executed/refused/queued/failed
		),
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "actiongate",
				Name:      "decisions_total",
				Help:      "Total owner decisions on pending actions",
			},
			[]string{"decision"}, // approve/reject
		),
		PendingActions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "actiongate",
				Name:      "pending_actions",
				Help:      "Number of actions currently awaiting approval",
			},
		),
		ExecutionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "actiongate",
				Name:      "execution_duration_seconds",
				Help:      "Capability execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "actiongate",
				Name:      "audit_drops_total",
				Help:      "Total action log entries dropped due to backpressure",
			},
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "actiongate",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "actiongate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}
