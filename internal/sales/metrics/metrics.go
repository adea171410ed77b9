package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus metrics for the sales service.
type Metrics struct {
	registry              *prometheus.Registry
	saleCompleted         prometheus.Counter
	saleCompensated       *prometheus.CounterVec
	sagaLatency           prometheus.Histogram
	criticalInconsistency prometheus.Counter
	ledgerDeferred        prometheus.Counter
	ledgerReconciled      *prometheus.CounterVec
}

// New creates a metrics registry and registers sale saga metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	saleCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sale_completed_total",
		Help: "Total number of completed sales.",
	})

	saleCompensated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_compensated_total",
		Help: "Total number of compensated sales by failed step.",
	}, []string{"step"})

	sagaLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_saga_latency_seconds",
		Help:    "End-to-end latency of the sale completion saga in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	criticalInconsistency := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sale_critical_inconsistency_total",
		Help: "Total number of critical compensation failures requiring manual reconciliation.",
	})

	ledgerDeferred := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sale_ledger_deferred_total",
		Help: "Total number of sales finalized with deferred ledger posting.",
	})

	ledgerReconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_ledger_reconciled_total",
		Help: "Total number of deferred ledger reconciliation attempts by outcome.",
	}, []string{"outcome"})

	registry.MustRegister(saleCompleted, saleCompensated, sagaLatency,
		criticalInconsistency, ledgerDeferred, ledgerReconciled)

	return &Metrics{
		registry:              registry,
		saleCompleted:         saleCompleted,
		saleCompensated:       saleCompensated,
		sagaLatency:           sagaLatency,
		criticalInconsistency: criticalInconsistency,
		ledgerDeferred:        ledgerDeferred,
		ledgerReconciled:      ledgerReconciled,
	}
}

// Handler exposes the metrics registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncSaleCompleted increments the completed sale counter.
func (m *Metrics) IncSaleCompleted() {
	if m == nil {
		return
	}
	m.saleCompleted.Inc()
}

// IncSaleCompensated increments the compensated sale counter.
func (m *Metrics) IncSaleCompensated(step string) {
	if m == nil {
		return
	}
	m.saleCompensated.WithLabelValues(step).Inc()
}

// ObserveSagaLatency records end-to-end saga latency.
func (m *Metrics) ObserveSagaLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.sagaLatency.Observe(d.Seconds())
}

// IncCriticalInconsistency increments the critical inconsistency counter.
func (m *Metrics) IncCriticalInconsistency() {
	if m == nil {
		return
	}
	m.criticalInconsistency.Inc()
}

// IncLedgerDeferred increments the deferred ledger posting counter.
func (m *Metrics) IncLedgerDeferred() {
	if m == nil {
		return
	}
	m.ledgerDeferred.Inc()
}

// IncLedgerReconciled increments the reconciliation outcome counter.
func (m *Metrics) IncLedgerReconciled(outcome string) {
	if m == nil {
		return
	}
	m.ledgerReconciled.WithLabelValues(outcome).Inc()
}
