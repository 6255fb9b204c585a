package store

import (
	"context"
	"math"
)

// Health bands for a tenant's memory store.
const (
	HealthNew        = "new"
	HealthDeveloping = "developing"
	HealthGood       = "good"
	HealthExcellent  = "excellent"
)

// TenantSummary reports counts-by-type and the banded health score.
type TenantSummary struct {
	TenantID          string               `json:"tenant_id"`
	Total             int64                `json:"total"`
	CountsByType      map[MemoryType]int64 `json:"counts_by_type"`
	ArchivedCount     int64                `json:"archived_count"`
	TotalRecalls      int64                `json:"total_recalls"`
	DistinctTypes     int                  `json:"distinct_types"`
	RecallUtilization float64              `json:"recall_utilization"`
	Health            string               `json:"health"`
}

// Summary computes a tenant's memory summary. Health is a banded function of
// type diversity and the recall-utilization ratio (total recalls divided by
// total memories).
func (s *Store) Summary(ctx context.Context, tenantID string) (*TenantSummary, error) {
	counts, err := s.CountsByType(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	recalls, err := s.TotalRecalls(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	archived, err := s.CountArchive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	summary := &TenantSummary{
		TenantID:      tenantID,
		Total:         total,
		CountsByType:  counts,
		ArchivedCount: archived,
		TotalRecalls:  recalls,
		DistinctTypes: len(counts),
	}

	if total > 0 {
		summary.RecallUtilization = float64(recalls) / float64(total)
	}
	summary.Health = healthBand(summary.DistinctTypes, total, summary.RecallUtilization)

	return summary, nil
}

// healthBand maps type diversity and recall utilization onto the four health
// bands. Diversity contributes up to 10 points per distinct type; utilization
// contributes up to 50 points, saturating at a ratio of 2 recalls per memory.
func healthBand(distinctTypes int, total int64, utilization float64) string {
	if total == 0 {
		return HealthNew
	}

	score := float64(distinctTypes)*10 + math.Min(utilization, 2.0)*25

	switch {
	case score < 15:
		return HealthNew
	case score < 35:
		return HealthDeveloping
	case score < 60:
		return HealthGood
	default:
		return HealthExcellent
	}
}
