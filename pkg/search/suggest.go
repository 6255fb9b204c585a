package search

import (
	"context"
	"sort"
	"strings"

	"github.com/palace-sh/palace/pkg/store"
)

// Suggestion is one autocomplete candidate with its source.
type Suggestion struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Suggestion sources, in priority order.
const (
	sourceTag    = "tag"
	sourceType   = "type"
	sourceRecent = "recent_query"
)

// Suggest returns prefix-matched autocomplete candidates drawn from the
// tenant's tags, the known memory type names, and the tenant's recent
// queries. Tags rank first, then types, then recent queries.
func (e *Engine) Suggest(ctx context.Context, tenantID, prefix string, limit int) ([]Suggestion, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	records, err := e.store.List(ctx, tenantID, store.ListFilters{})
	if err != nil {
		return nil, err
	}

	tagSet := make(map[string]bool)
	for _, rec := range records {
		for _, tag := range rec.Tags {
			t := strings.ToLower(strings.TrimSpace(tag))
			if strings.HasPrefix(t, prefix) {
				tagSet[t] = true
			}
		}
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	var suggestions []Suggestion
	seen := make(map[string]bool)
	add := func(text, source string) {
		if len(suggestions) >= limit || seen[text] {
			return
		}
		seen[text] = true
		suggestions = append(suggestions, Suggestion{Text: text, Source: source})
	}

	for _, t := range tags {
		add(t, sourceTag)
	}

	for _, mt := range store.MemoryTypes() {
		name := string(mt)
		if strings.HasPrefix(name, prefix) {
			add(name, sourceType)
		}
	}

	queries, err := e.store.RecentQueries(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	for _, q := range queries {
		if strings.HasPrefix(strings.ToLower(q), prefix) {
			add(strings.ToLower(q), sourceRecent)
		}
	}

	return suggestions, nil
}
