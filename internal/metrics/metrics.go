// Package metrics exposes Prometheus collectors for ledger, objective and
// premium activity plus HTTP request counts.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tontine"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	Registry *prometheus.Registry

	ledgerOps          *prometheus.CounterVec
	objectives         *prometheus.CounterVec
	premiumActivations prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ledgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Deposits and withdrawals by outcome.",
			},
			[]string{"kind", "outcome"},
		),
		objectives: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "objectives",
				Name:      "created_total",
				Help:      "Objective creation attempts by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		premiumActivations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "premium",
				Name:      "activations_total",
				Help:      "Premium activations.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ledgerOps,
		m.objectives,
		m.premiumActivations,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// LedgerOperation counts one deposit or withdrawal attempt.
func (m *Metrics) LedgerOperation(kind, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(kind, outcome).Inc()
}

// ObjectiveCreation counts one objective creation attempt.
func (m *Metrics) ObjectiveCreation(kind, outcome string) {
	if m == nil {
		return
	}
	m.objectives.WithLabelValues(kind, outcome).Inc()
}

// PremiumActivated counts one premium activation.
func (m *Metrics) PremiumActivated() {
	if m == nil {
		return
	}
	m.premiumActivations.Inc()
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
