package consolidate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/palace-sh/palace/pkg/store"
)

// mergeSimilar replaces month-groups of old interaction memories with a
// single summary each. Returns the number of source memories merged away.
func (e *Engine) mergeSimilar(ctx context.Context, tenantID string, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -mergeAgeDays)
	records, err := e.store.List(ctx, tenantID, store.ListFilters{
		Types:         []store.MemoryType{store.TypeInteraction},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]store.MemoryRecord)
	for _, rec := range records {
		month := rec.CreatedAt.UTC().Format("2006-01")
		groups[month] = append(groups[month], rec)
	}

	months := make([]string, 0, len(groups))
	for month := range groups {
		months = append(months, month)
	}
	sort.Strings(months)

	merged := 0
	for _, month := range months {
		group := groups[month]
		if len(group) < 2 {
			continue
		}

		maxImportance := 0.0
		var topics []string
		ids := make([]string, len(group))
		sourceIDs := make([]interface{}, len(group))
		for i, rec := range group {
			if rec.Importance > maxImportance {
				maxImportance = rec.Importance
			}
			topics = append(topics, rec.Content.Topics()...)
			ids[i] = rec.ID
			sourceIDs[i] = rec.ID
		}
		topics = uniqueStrings(topics)

		tags := append([]string{"consolidated", "monthly_summary"}, topics...)
		topicValues := make([]interface{}, len(topics))
		for i, t := range topics {
			topicValues[i] = t
		}

		summary := &store.MemoryRecord{
			TenantID:     tenantID,
			Type:         store.TypeSummary,
			Importance:   maxImportance,
			Tags:         tags,
			Consolidated: true,
			Content: store.Content{
				"period":       month,
				"source_count": len(group),
				"source_ids":   sourceIDs,
				"topics":       topicValues,
				"summary":      fmt.Sprintf("Consolidated %d interactions from %s", len(group), month),
			},
		}

		if err := e.store.ReplaceWithSummary(ctx, summary, ids); err != nil {
			return merged, err
		}
		merged += len(group)
	}

	return merged, nil
}

// summarizeOld replaces oversized content of old proposal and outcome
// memories with a short summary plus extracted key points. Record ids are
// preserved and the records flagged summarized.
func (e *Engine) summarizeOld(ctx context.Context, tenantID string, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -summarizeAgeDays)
	records, err := e.store.List(ctx, tenantID, store.ListFilters{
		Types:             []store.MemoryType{store.TypeProposal, store.TypeOutcome},
		CreatedBefore:     &cutoff,
		OnlyNotSummarized: true,
	})
	if err != nil {
		return 0, err
	}

	summarized := 0
	for _, rec := range records {
		if len(rec.Content.Serialized()) <= summarizeSizeThreshold {
			continue
		}

		content := store.Content{
			"summary":    shortSummary(rec.Content),
			"key_points": keyPoints(rec.Content),
		}
		if title := rec.Content.Title(); title != "" {
			content["title"] = title
		}

		if err := e.store.UpdateContent(ctx, tenantID, rec.ID, content, true); err != nil {
			return summarized, err
		}
		summarized++
	}

	return summarized, nil
}

// archiveLowValue moves old, unimportant, rarely recalled memories into the
// archive namespace.
func (e *Engine) archiveLowValue(ctx context.Context, tenantID string, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -archiveAgeDays)
	maxImportance := archiveImportanceCeiling
	maxRecalls := archiveRecallCeiling

	records, err := e.store.List(ctx, tenantID, store.ListFilters{
		CreatedBefore:  &cutoff,
		MaxImportance:  &maxImportance,
		MaxRecallCount: &maxRecalls,
	})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	return e.store.ArchiveMemories(ctx, tenantID, ids)
}

// compressPatterns replaces category-groups of pattern memories with one
// pattern summary holding the top patterns by confidence plus the average.
// The originals are flagged superseded, not deleted. Returns the number of
// source patterns compressed.
func (e *Engine) compressPatterns(ctx context.Context, tenantID string) (int, error) {
	records, err := e.store.List(ctx, tenantID, store.ListFilters{
		Types: []store.MemoryType{store.TypePattern},
	})
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]store.MemoryRecord)
	for _, rec := range records {
		groups[rec.Content.Category()] = append(groups[rec.Content.Category()], rec)
	}

	categories := make([]string, 0, len(groups))
	for category := range groups {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	compressed := 0
	for _, category := range categories {
		group := groups[category]
		if len(group) < compressMinGroup {
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Content.Confidence() > group[j].Content.Confidence()
		})

		maxImportance := 0.0
		totalConfidence := 0.0
		ids := make([]string, len(group))
		sourceIDs := make([]interface{}, len(group))
		for i, rec := range group {
			if rec.Importance > maxImportance {
				maxImportance = rec.Importance
			}
			totalConfidence += rec.Content.Confidence()
			ids[i] = rec.ID
			sourceIDs[i] = rec.ID
		}

		topN := len(group)
		if topN > compressTopK {
			topN = compressTopK
		}
		top := make([]interface{}, topN)
		for i := 0; i < topN; i++ {
			entry := map[string]interface{}{
				"id":         group[i].ID,
				"confidence": group[i].Content.Confidence(),
			}
			if title := group[i].Content.Title(); title != "" {
				entry["title"] = title
			} else if summary := group[i].Content.Summary(); summary != "" {
				entry["title"] = summary
			}
			top[i] = entry
		}

		summary := &store.MemoryRecord{
			TenantID:   tenantID,
			Type:       store.TypePatternSummary,
			Importance: maxImportance,
			Tags:       []string{"compressed", "pattern_summary", category},
			Compressed: true,
			Content: store.Content{
				"category":           category,
				"pattern_count":      len(group),
				"source_ids":         sourceIDs,
				"top_patterns":       top,
				"average_confidence": totalConfidence / float64(len(group)),
			},
		}

		if err := e.store.SupersedeWithSummary(ctx, summary, ids); err != nil {
			return compressed, err
		}
		compressed += len(group)
	}

	return compressed, nil
}

// shortSummary condenses the content's string fields into a bounded summary.
func shortSummary(c store.Content) string {
	const maxLen = 200

	var combined string
	for _, v := range c.StringValues() {
		if combined != "" {
			combined += " "
		}
		combined += v
		if len(combined) >= maxLen {
			break
		}
	}
	if combined == "" {
		combined = "(no textual content)"
	}
	if len(combined) > maxLen {
		combined = combined[:maxLen] + "..."
	}
	return combined
}

// keyPoints extracts up to three substantial string values as key points.
func keyPoints(c store.Content) []interface{} {
	const (
		maxPoints   = 3
		maxPointLen = 100
	)

	var points []interface{}
	for _, v := range c.StringValues() {
		if len(v) < 20 {
			continue
		}
		if len(v) > maxPointLen {
			v = v[:maxPointLen] + "..."
		}
		points = append(points, v)
		if len(points) == maxPoints {
			break
		}
	}
	return points
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
