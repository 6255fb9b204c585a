package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsOperations(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	c.RecordOperation(ctx, "search", "success", 12)
	c.RecordOperation(ctx, "search", "success", 5)
	c.RecordOperation(ctx, "search", "error", 3)

	count := testutil.CollectAndCount(c.operationsTotal)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("search", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("search", "error")))
}

func TestCollectorRecordsErrors(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	c.RecordError(ctx, "import", "integrity")
	c.RecordError(ctx, "import", "integrity")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.errorsTotal.WithLabelValues("import", "integrity")))
}

func TestCollectorNamespaceGauge(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	c.SetNamespaceCount(ctx, "active", 42)
	c.SetNamespaceCount(ctx, "active", 40)
	c.SetNamespaceCount(ctx, "archive", 7)

	assert.Equal(t, 40.0, testutil.ToFloat64(c.namespaceCount.WithLabelValues("active")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.namespaceCount.WithLabelValues("archive")))
}

func TestRegistryExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordOperation(context.Background(), "recall", "success", 1)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["palace_operations_total"])
	assert.True(t, names["palace_operation_duration_seconds"])
}
