package consolidate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/store"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(func() time.Time { return testNow })
	return NewEngine(s, nil), s
}

func TestMergeSimilarGroupsByMonth(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	// Three old interactions in March, two in April, one lone in May.
	march := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, ts := range []time.Time{march, march.AddDate(0, 0, 1), march.AddDate(0, 0, 2), april, april.AddDate(0, 0, 3), may} {
		importance := 0.4
		if i == 1 {
			importance = 0.9
		}
		require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
			TenantID:   "tenant-a",
			Type:       store.TypeInteraction,
			Importance: importance,
			CreatedAt:  ts,
			Content:    store.Content{"topic": "sponsorship"},
		}))
	}

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 5, result.MergedCount)
	assert.Equal(t, int64(6), result.BeforeCount)
	// 6 originals - 5 merged + 2 summaries.
	assert.Equal(t, int64(3), result.AfterCount)
	assert.Contains(t, result.Strategies, "merge_similar")

	summaries, err := s.List(ctx, "tenant-a", store.ListFilters{
		Types: []store.MemoryType{store.TypeSummary},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	var marchSummary *store.MemoryRecord
	for i := range summaries {
		if summaries[i].Content["period"] == "2026-03" {
			marchSummary = &summaries[i]
		}
	}
	require.NotNil(t, marchSummary)
	assert.Equal(t, float64(3), marchSummary.Content["source_count"])
	assert.Equal(t, 0.9, marchSummary.Importance)
	assert.Contains(t, marchSummary.Tags, "consolidated")
	assert.Contains(t, marchSummary.Tags, "monthly_summary")
	assert.Contains(t, marchSummary.Tags, "sponsorship")
	assert.True(t, marchSummary.Consolidated)
}

func TestMergeSkipsRecentInteractions(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	recent := testNow.AddDate(0, 0, -5)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
			TenantID:  "tenant-a",
			Type:      store.TypeInteraction,
			CreatedAt: recent,
		}))
	}

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, result.MergedCount)
	assert.Equal(t, result.BeforeCount, result.AfterCount)
}

func TestConsolidationIsIdempotent(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	march := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
			TenantID:  "tenant-a",
			Type:      store.TypeInteraction,
			CreatedAt: march.AddDate(0, 0, i),
		}))
	}

	first, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 3, first.MergedCount)

	second, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, second.MergedCount)
	assert.Equal(t, 0, second.SummarizedCount)
	assert.Equal(t, 0, second.CompressedCount)
	assert.Equal(t, first.AfterCount, second.AfterCount)
}

func TestSummarizeOldOversizedProposals(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	old := testNow.AddDate(0, 0, -90)
	big := &store.MemoryRecord{
		TenantID:  "tenant-a",
		Type:      store.TypeProposal,
		CreatedAt: old,
		Content: store.Content{
			"title":   "Sponsorship pitch for spring campaign",
			"body":    strings.Repeat("a detailed paragraph about deliverables and timelines ", 30),
			"details": strings.Repeat("rates, exclusivity, usage rights and renewal options ", 20),
		},
	}
	small := &store.MemoryRecord{
		TenantID:  "tenant-a",
		Type:      store.TypeProposal,
		CreatedAt: old,
		Content:   store.Content{"title": "short"},
	}
	require.NoError(t, s.Insert(ctx, big))
	require.NoError(t, s.Insert(ctx, small))

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SummarizedCount)

	got, err := s.Get(ctx, "tenant-a", big.ID)
	require.NoError(t, err)
	assert.True(t, got.Summarized)
	assert.Equal(t, "Sponsorship pitch for spring campaign", got.Content.Title())
	assert.NotEmpty(t, got.Content.Summary())
	assert.Less(t, len(got.Content.Serialized()), len(big.Content.Serialized()))

	// Small record untouched.
	gotSmall, err := s.Get(ctx, "tenant-a", small.ID)
	require.NoError(t, err)
	assert.False(t, gotSmall.Summarized)
}

func TestArchiveLowValue(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	old := testNow.AddDate(0, 0, -120)
	lowValue := &store.MemoryRecord{
		TenantID:   "tenant-a",
		Type:       store.TypeInteraction,
		CreatedAt:  old,
		Importance: 0.1,
	}
	important := &store.MemoryRecord{
		TenantID:   "tenant-a",
		Type:       store.TypeInteraction,
		CreatedAt:  old,
		Importance: 0.8,
	}
	require.NoError(t, s.Insert(ctx, lowValue))
	require.NoError(t, s.Insert(ctx, important))

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ArchivedCount)

	archived, err := s.GetArchived(ctx, "tenant-a", lowValue.ID)
	require.NoError(t, err)
	assert.Equal(t, lowValue.ID, archived.ID)

	kept, err := s.Get(ctx, "tenant-a", important.ID)
	require.NoError(t, err)
	assert.Equal(t, important.ID, kept.ID)
}

func TestCompressPatterns(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	confidences := []float64{0.9, 0.8, 0.7, 0.6}
	for _, c := range confidences {
		require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
			TenantID:   "tenant-a",
			Type:       store.TypePattern,
			Importance: 0.5,
			Content: store.Content{
				"category":   "pricing",
				"confidence": c,
				"title":      "pattern",
			},
		}))
	}
	// A small group stays untouched.
	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypePattern,
		Content:  store.Content{"category": "timing", "confidence": 0.5},
	}))

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 4, result.CompressedCount)

	summaries, err := s.List(ctx, "tenant-a", store.ListFilters{
		Types: []store.MemoryType{store.TypePatternSummary},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	summary := summaries[0]
	assert.Equal(t, "pricing", summary.Content["category"])
	assert.Equal(t, float64(4), summary.Content["pattern_count"])
	avg, ok := summary.Content["average_confidence"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0.75, avg, 0.0001)
	assert.True(t, summary.Compressed)

	// Originals superseded, not deleted, and hidden from recall.
	all, err := s.List(ctx, "tenant-a", store.ListFilters{
		Types:             []store.MemoryType{store.TypePattern},
		IncludeSuperseded: true,
	})
	require.NoError(t, err)
	superseded := 0
	for _, rec := range all {
		if rec.Superseded {
			superseded++
		}
	}
	assert.Equal(t, 4, superseded)
}

func TestRunAllContinuesPastFailingTenant(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{TenantID: "tenant-a", Type: store.TypeInteraction}))
	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{TenantID: "tenant-b", Type: store.TypeInteraction}))

	result, err := engine.RunAll(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Tenants, 2)
	assert.Empty(t, result.Failed)
}

func TestRunAppendsConsolidationLog(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	march := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
			TenantID:  "tenant-a",
			Type:      store.TypeInteraction,
			CreatedAt: march,
		}))
	}

	result, err := engine.Run(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2)*storageSavedPerRecord, result.StorageSavedBytes)

	logs, err := s.ConsolidationLogs(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].Details["merged"])
	assert.Equal(t, result.ConsolidatedCount, logs[0].ConsolidatedCount)
}
