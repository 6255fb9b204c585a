// Package trace exports sanitized operation traces for offline analysis.
package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting operation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *Record) error

	// Close flushes any buffered records and releases resources.
	Close() error
}

// Record represents a sanitized operation trace ready for export. It carries
// identifiers and counters only, never memory content or queries.
type Record struct {
	// Timestamp is the operation start time.
	Timestamp time.Time `json:"timestamp"`

	// OperationID uniquely identifies this operation for correlation.
	OperationID string `json:"operationId"`

	// Operation is the operation type: "store", "recall", "search",
	// "consolidate", "export", "import", "soft_delete", "recover",
	// "purge", "erasure".
	Operation string `json:"operation"`

	// TenantID scopes the operation.
	TenantID string `json:"tenantId,omitempty"`

	// DurationMs is the total operation duration in milliseconds.
	DurationMs int64 `json:"durationMs"`

	// Status is "success" or "error".
	Status string `json:"status"`

	// ErrorKind classifies the error when Status == "error".
	ErrorKind string `json:"errorKind,omitempty"`

	// Counters holds operation-specific counts (records touched, results
	// returned). No content.
	Counters map[string]int64 `json:"counters,omitempty"`
}
