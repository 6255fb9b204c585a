package palace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/export"
	"github.com/palace-sh/palace/pkg/forget"
	"github.com/palace-sh/palace/pkg/metrics"
	"github.com/palace-sh/palace/pkg/search"
	"github.com/palace-sh/palace/pkg/store"
)

func newTestPalace(t *testing.T) *Palace {
	t.Helper()
	p, err := New(Config{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewRequiresDBPath(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, IsValidation(err))
}

func TestRememberAndRecall(t *testing.T) {
	p := newTestPalace(t)
	ctx := context.Background()

	rec := &store.MemoryRecord{
		TenantID:   "tenant-a",
		Type:       store.TypeInteraction,
		Importance: 0.7,
		Content:    store.Content{"note": "sponsorship call"},
	}
	require.NoError(t, p.Remember(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	records, err := p.Recall(ctx, "tenant-a", store.RecallFilters{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
}

func TestSearchThroughFacade(t *testing.T) {
	p := newTestPalace(t)
	ctx := context.Background()

	require.NoError(t, p.Remember(ctx, &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeProposal,
		Content:  store.Content{"title": "pricing proposal"},
	}))

	results, err := p.Search(ctx, "tenant-a", "pricing", search.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestExportImportForgetLifecycle(t *testing.T) {
	p := newTestPalace(t)
	ctx := context.Background()

	require.NoError(t, p.Remember(ctx, &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeInteraction,
		Tags:     []string{"campaign"},
		Content:  store.Content{"note": "kickoff"},
	}))

	// Backup, forget, recover, and the memory survives.
	pkg, err := p.Export(ctx, "tenant-a", export.Options{})
	require.NoError(t, err)

	receipt, err := p.Forget(ctx, "tenant-a", forget.Criteria{Tags: []string{"campaign"}}, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.MatchedCount)

	records, err := p.Recall(ctx, "tenant-a", store.RecallFilters{})
	require.NoError(t, err)
	assert.Empty(t, records)

	restored, err := p.Recover(ctx, "tenant-a", receipt.DeletionID)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	// Re-importing the backup is now a no-op.
	report, err := p.Import(ctx, "tenant-a", pkg, export.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Skipped)
}

func TestEraseThroughFacade(t *testing.T) {
	p := newTestPalace(t)
	ctx := context.Background()

	require.NoError(t, p.Remember(ctx, &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeInteraction,
	}))

	report, err := p.Erase(ctx, "tenant-a", "account closed", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TotalRemoved)

	summary, err := p.Summary(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Total)

	audits, err := p.ErasureAudits(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestOperationsAreMetered(t *testing.T) {
	collector := metrics.NewCollector()
	p, err := New(Config{DBPath: ":memory:", Metrics: collector})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	ctx := context.Background()

	require.NoError(t, p.Remember(ctx, &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeInteraction,
		Content:  store.Content{"note": "hello"},
	}))
	_, err = p.Search(ctx, "tenant-a", "hello", search.Options{})
	require.NoError(t, err)

	// A failed operation lands in the error counter with its kind.
	_, err = p.Search(ctx, "tenant-a", "", search.Options{})
	require.Error(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	byName := make(map[string]bool)
	for _, f := range families {
		byName[f.GetName()] = true
	}
	assert.True(t, byName["palace_operations_total"])
	assert.True(t, byName["palace_errors_total"])
	assert.True(t, byName["palace_records"])
}
