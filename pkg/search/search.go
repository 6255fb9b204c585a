// Package search provides tenant-isolated, token-based relevance search over
// the memory store, with highlighting, logging, and autocomplete.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

// SortOrder selects how results are ordered.
type SortOrder string

const (
	SortRelevance  SortOrder = "relevance"
	SortDate       SortOrder = "date"
	SortImportance SortOrder = "importance"
)

// Options filters and shapes a search call.
type Options struct {
	Types          []store.MemoryType `json:"types,omitempty"`
	Tags           []string           `json:"tags,omitempty"`
	MinImportance  float64            `json:"min_importance,omitempty"`
	From           *time.Time         `json:"from,omitempty"`
	To             *time.Time         `json:"to,omitempty"`
	IncludeArchive bool               `json:"include_archive,omitempty"`
	SortBy         SortOrder          `json:"sort_by,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Highlight      bool               `json:"highlight,omitempty"`
}

// Result is a scored search hit.
type Result struct {
	Memory     store.MemoryRecord `json:"memory"`
	Score      float64            `json:"score"`
	Namespace  store.Namespace    `json:"namespace"`
	Highlights []string           `json:"highlights,omitempty"`
}

// Engine performs token search over one tenant's memories. A query can never
// cross tenant boundaries.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// NewEngine creates a search engine over the given store.
func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger}
}

// Search scores a tenant's memories against the query, excludes zero-score
// matches, and logs the call. Superseded records stay hidden.
func (e *Engine) Search(ctx context.Context, tenantID, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fault.New(fault.KindValidation, "search", "tenant id is required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fault.New(fault.KindValidation, "search", "query is required")
	}

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.SortBy == "" {
		opts.SortBy = SortRelevance
	}

	started := time.Now()

	filters := store.ListFilters{
		Types:         opts.Types,
		CreatedAfter:  opts.From,
		CreatedBefore: opts.To,
	}

	candidates, err := e.store.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}

	namespaces := make([]store.Namespace, len(candidates))
	for i := range namespaces {
		namespaces[i] = store.NamespaceActive
	}

	if opts.IncludeArchive {
		archived, err := e.store.ListArchive(ctx, tenantID, filters)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, archived...)
		for range archived {
			namespaces = append(namespaces, store.NamespaceArchive)
		}
	}

	terms := queryTerms(query)
	var results []Result
	for i, rec := range candidates {
		if rec.Importance < opts.MinImportance {
			continue
		}
		if len(opts.Tags) > 0 && !hasAnyTag(rec.Tags, opts.Tags) {
			continue
		}

		score := scoreMemory(&rec, query, terms)
		if score <= 0 {
			continue
		}

		result := Result{Memory: rec, Score: score, Namespace: namespaces[i]}
		if opts.Highlight {
			result.Highlights = highlights(&rec, query, terms)
		}
		results = append(results, result)
	}

	sortResults(results, opts.SortBy)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	filtersJSON, _ := json.Marshal(opts)
	logRec := &store.SearchLogRecord{
		TenantID:    tenantID,
		Query:       query,
		Filters:     string(filtersJSON),
		ResultCount: len(results),
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if err := e.store.AppendSearchLog(ctx, logRec); err != nil {
		return nil, err
	}

	e.logger.Debug("search finished",
		"tenant", tenantID, "results", len(results), "duration_ms", logRec.DurationMs)

	return results, nil
}

// Relevance point values. Exact matches always outrank partial ones on the
// same field.
const (
	pointsPhrase         = 50.0
	pointsWord           = 10.0
	pointsTagExact       = 15.0
	pointsTagPartial     = 5.0
	pointsTitleExact     = 30.0
	pointsTitlePartial   = 20.0
	pointsSummaryExact   = 25.0
	pointsSummaryPartial = 15.0
	pointsTypeName       = 5.0
	pointsImportance     = 5.0
	recallBonusCap       = 10.0
)

func scoreMemory(rec *store.MemoryRecord, query string, terms []string) float64 {
	q := strings.ToLower(query)
	serialized := strings.ToLower(rec.Content.Serialized())

	var score float64

	if strings.Contains(serialized, q) {
		score += pointsPhrase
	}

	for _, term := range terms {
		if strings.Contains(serialized, term) {
			score += pointsWord
		}
	}

	for _, tag := range rec.Tags {
		t := strings.ToLower(tag)
		switch {
		case t == q || containsTerm(terms, t):
			score += pointsTagExact
		case partialTermMatch(t, terms) || strings.Contains(t, q) || strings.Contains(q, t):
			score += pointsTagPartial
		}
	}

	score += fieldScore(rec.Content.Title(), q, terms, pointsTitleExact, pointsTitlePartial)
	score += fieldScore(rec.Content.Summary(), q, terms, pointsSummaryExact, pointsSummaryPartial)

	typeName := strings.ToLower(string(rec.Type))
	for _, term := range terms {
		if strings.Contains(typeName, term) {
			score += pointsTypeName
			break
		}
	}

	// Importance and recall only boost records the query matched; they
	// never pull in unrelated memories on their own.
	if score == 0 {
		return 0
	}

	score += pointsImportance * rec.Importance

	recallBonus := float64(rec.RecallCount) * 2
	if recallBonus > recallBonusCap {
		recallBonus = recallBonusCap
	}
	score += recallBonus

	return score
}

func fieldScore(field, query string, terms []string, exact, partial float64) float64 {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return 0
	}
	if field == query {
		return exact
	}
	if strings.Contains(field, query) || partialTermMatch(field, terms) {
		return partial
	}
	return 0
}

// queryTerms splits a query into distinct lowercase words of length >= 2.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func containsTerm(terms []string, s string) bool {
	for _, t := range terms {
		if t == s {
			return true
		}
	}
	return false
}

func partialTermMatch(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func hasAnyTag(tags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range tags {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}

func sortResults(results []Result, order SortOrder) {
	switch order {
	case SortDate:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
		})
	case SortImportance:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Memory.Importance > results[j].Memory.Importance
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}
