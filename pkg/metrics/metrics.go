// Package metrics provides Prometheus metrics collection for palace
// operations.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector records palace operation metrics into a dedicated
// registry.
type PrometheusCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	namespaceCount    *prometheus.GaugeVec
	registry          *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palace_operations_total",
			Help: "Total number of palace operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palace_operation_duration_seconds",
			Help:    "Duration of palace operations by type and stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palace_errors_total",
			Help: "Total number of errors by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	namespaceCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "palace_records",
			Help: "Current count of stored records by namespace",
		},
		[]string{"namespace"},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(namespaceCount)

	return &PrometheusCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		namespaceCount:    namespaceCount,
		registry:          registry,
	}
}

// Registry returns the collector's Prometheus registry for exposition.
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation records the completion of an operation.
func (m *PrometheusCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation, "total").Observe(float64(durationMs) / 1000.0)
}

// RecordStage records the duration of a specific stage within an operation.
func (m *PrometheusCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence.
func (m *PrometheusCollector) RecordError(ctx context.Context, operation string, errorKind string) {
	m.errorsTotal.WithLabelValues(operation, errorKind).Inc()
}

// SetNamespaceCount sets the current record count for a namespace.
func (m *PrometheusCollector) SetNamespaceCount(ctx context.Context, namespace string, count int64) {
	m.namespaceCount.WithLabelValues(namespace).Set(float64(count))
}
