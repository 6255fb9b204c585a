package metrics

import "context"

// NoopCollector discards all metrics. Used when no collector is configured.
type NoopCollector struct{}

// NewNoop creates a no-op metrics collector.
func NewNoop() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
}

func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorKind string) {}

func (n *NoopCollector) SetNamespaceCount(ctx context.Context, namespace string, count int64) {}
