package trace

import "context"

// NoopExporter discards all trace records. Used when tracing is not
// configured.
type NoopExporter struct{}

// NewNoop creates a no-op trace exporter.
func NewNoop() *NoopExporter {
	return &NoopExporter{}
}

func (n *NoopExporter) Export(ctx context.Context, record *Record) error {
	return nil
}

func (n *NoopExporter) Close() error {
	return nil
}
