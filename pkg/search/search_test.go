package search

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, nil), s
}

func seedMemory(t *testing.T, s *store.Store, rec store.MemoryRecord) string {
	t.Helper()
	rec.TenantID = "tenant-a"
	require.NoError(t, s.Insert(context.Background(), &rec))
	return rec.ID
}

func TestSearchValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Search(ctx, "", "query", Options{})
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	_, err = engine.Search(ctx, "tenant-a", "   ", Options{})
	assert.True(t, fault.IsKind(err, fault.KindValidation))
}

func TestSearchExcludesZeroScore(t *testing.T) {
	engine, s := newTestEngine(t)

	seedMemory(t, s, store.MemoryRecord{
		Type:    store.TypeInteraction,
		Content: store.Content{"note": "sponsorship call with brand"},
	})
	seedMemory(t, s, store.MemoryRecord{
		Type:    store.TypeInteraction,
		Content: store.Content{"note": "unrelated grocery list"},
	})

	results, err := engine.Search(context.Background(), "tenant-a", "sponsorship", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Memory.Content["note"], "sponsorship")
}

func TestTitleExactOutranksTagPartial(t *testing.T) {
	engine, s := newTestEngine(t)

	titleHit := seedMemory(t, s, store.MemoryRecord{
		Type:    store.TypeProposal,
		Content: store.Content{"title": "pricing"},
	})
	tagHit := seedMemory(t, s, store.MemoryRecord{
		Type:    store.TypeInteraction,
		Tags:    []string{"pricing-notes"},
		Content: store.Content{"note": "misc"},
	})

	results, err := engine.Search(context.Background(), "tenant-a", "pricing", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, titleHit, results[0].Memory.ID)
	assert.Equal(t, tagHit, results[1].Memory.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestExactTagOutranksPartialTag(t *testing.T) {
	engine, s := newTestEngine(t)

	exact := seedMemory(t, s, store.MemoryRecord{
		Type: store.TypeInteraction,
		Tags: []string{"pricing"},
	})
	partial := seedMemory(t, s, store.MemoryRecord{
		Type: store.TypeInteraction,
		Tags: []string{"pricing-notes"},
	})

	results, err := engine.Search(context.Background(), "tenant-a", "pricing", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, exact, results[0].Memory.ID)
	assert.Equal(t, partial, results[1].Memory.ID)
}

func TestSearchIsTenantIsolated(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	other := &store.MemoryRecord{
		TenantID: "tenant-b",
		Type:     store.TypeInteraction,
		Content:  store.Content{"note": "sponsorship"},
	}
	require.NoError(t, s.Insert(ctx, other))

	results, err := engine.Search(ctx, "tenant-a", "sponsorship", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchIncludeArchive(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	id := seedMemory(t, s, store.MemoryRecord{
		Type:       store.TypeInteraction,
		Importance: 0.1,
		Content:    store.Content{"note": "sponsorship"},
	})
	_, err := s.ArchiveMemories(ctx, "tenant-a", []string{id})
	require.NoError(t, err)

	results, err := engine.Search(ctx, "tenant-a", "sponsorship", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.Search(ctx, "tenant-a", "sponsorship", Options{IncludeArchive: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, store.NamespaceArchive, results[0].Namespace)
}

func TestSearchHighlights(t *testing.T) {
	engine, s := newTestEngine(t)

	seedMemory(t, s, store.MemoryRecord{
		Type: store.TypeInteraction,
		Content: store.Content{
			"note": "the spring sponsorship campaign went better than expected this quarter",
		},
	})

	results, err := engine.Search(context.Background(), "tenant-a", "sponsorship", Options{Highlight: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEmpty(t, results[0].Highlights)
	assert.Contains(t, results[0].Highlights[0], "sponsorship")
}

func TestHighlightWindowKeepsRunesWhole(t *testing.T) {
	// The context window lands mid-rune on both sides; it must widen to
	// the nearest boundaries instead of cutting the encoding.
	text := "caf" + strings.Repeat("é", 40) + "target" + strings.Repeat("é", 40)
	idx := strings.Index(text, "target")
	require.Positive(t, idx)

	snippet := window(text, idx, len("target"))
	assert.True(t, utf8.ValidString(snippet))
	assert.Contains(t, snippet, "target")
}

func TestSearchLogsQueries(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	seedMemory(t, s, store.MemoryRecord{
		Type:    store.TypeInteraction,
		Content: store.Content{"note": "sponsorship"},
	})

	_, err := engine.Search(ctx, "tenant-a", "sponsorship terms", Options{})
	require.NoError(t, err)

	queries, err := s.RecentQueries(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "sponsorship terms", queries[0])
}

func TestSuggest(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	seedMemory(t, s, store.MemoryRecord{
		Type: store.TypeInteraction,
		Tags: []string{"pricing", "proposals"},
	})

	_, err := engine.Search(ctx, "tenant-a", "pricing strategy", Options{})
	require.NoError(t, err)

	suggestions, err := engine.Suggest(ctx, "tenant-a", "pr", 10)
	require.NoError(t, err)

	var texts []string
	sources := make(map[string]string)
	for _, sug := range suggestions {
		texts = append(texts, sug.Text)
		sources[sug.Text] = sug.Source
	}
	assert.Contains(t, texts, "pricing")
	assert.Contains(t, texts, "proposals")
	assert.Contains(t, texts, string(store.TypeProposal))
	assert.Contains(t, texts, "pricing strategy")
	assert.Equal(t, "tag", sources["pricing"])
	assert.Equal(t, "recent_query", sources["pricing strategy"])
}

func TestSuggestEmptyPrefix(t *testing.T) {
	engine, _ := newTestEngine(t)

	suggestions, err := engine.Suggest(context.Background(), "tenant-a", "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("The Quick, quick brown a fox!")
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, terms)
}
