// Package consolidate implements the periodic batch job that merges,
// summarizes, archives, and compresses memories to bound store growth.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/palace-sh/palace/pkg/metrics"
	"github.com/palace-sh/palace/pkg/store"
)

const (
	// Age cutoffs per strategy, in days.
	mergeAgeDays     = 30
	summarizeAgeDays = 60
	archiveAgeDays   = 90

	// Serialized content above this size is eligible for summarization.
	summarizeSizeThreshold = 512

	// Archive eligibility ceilings.
	archiveImportanceCeiling = 0.3
	archiveRecallCeiling     = 2

	// Pattern groups of at least this size are compressed, keeping the top
	// patterns by confidence.
	compressMinGroup = 3
	compressTopK     = 5

	// Fixed per-record constant for the storage-saved estimate.
	storageSavedPerRecord = 512
)

// Engine runs the four consolidation strategies in order for one tenant or
// platform-wide.
type Engine struct {
	store   *store.Store
	logger  *slog.Logger
	metrics metrics.Collector
}

// NewEngine creates a consolidation engine over the given store.
func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger, metrics: metrics.NewNoop()}
}

// SetMetrics wires a collector for per-strategy stage timings.
func (e *Engine) SetMetrics(m metrics.Collector) {
	if m != nil {
		e.metrics = m
	}
}

// Result reports one consolidation run for one tenant.
type Result struct {
	TenantID          string    `json:"tenant_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	BeforeCount       int64     `json:"before_count"`
	AfterCount        int64     `json:"after_count"`
	MergedCount       int       `json:"merged_count"`
	SummarizedCount   int       `json:"summarized_count"`
	ArchivedCount     int       `json:"archived_count"`
	CompressedCount   int       `json:"compressed_count"`
	ConsolidatedCount int       `json:"consolidated_count"`
	StorageSavedBytes int64     `json:"storage_saved_bytes"`
	Strategies        []string  `json:"strategies"`
}

// PlatformResult aggregates a platform-wide run. Tenants are processed
// sequentially; a failed tenant is recorded and never aborts the rest.
type PlatformResult struct {
	Tenants []Result          `json:"tenants"`
	Failed  map[string]string `json:"failed,omitempty"`

	ConsolidatedCount int   `json:"consolidated_count"`
	ArchivedCount     int   `json:"archived_count"`
	StorageSavedBytes int64 `json:"storage_saved_bytes"`
}

// Run consolidates a single tenant's memories, applying merge, summarize,
// archive, and compress in order, and appends a run log record.
func (e *Engine) Run(ctx context.Context, tenantID string) (*Result, error) {
	now := e.store.Now()
	result := &Result{TenantID: tenantID, StartedAt: now}

	before, err := e.store.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	result.BeforeCount = before

	merged, err := e.timedStage(ctx, "merge_similar", func() (int, error) {
		return e.mergeSimilar(ctx, tenantID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("merge similar: %w", err)
	}
	result.MergedCount = merged

	summarized, err := e.timedStage(ctx, "summarize_old", func() (int, error) {
		return e.summarizeOld(ctx, tenantID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("summarize old: %w", err)
	}
	result.SummarizedCount = summarized

	archived, err := e.timedStage(ctx, "archive_low_value", func() (int, error) {
		return e.archiveLowValue(ctx, tenantID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("archive low value: %w", err)
	}
	result.ArchivedCount = archived

	compressed, err := e.timedStage(ctx, "compress_patterns", func() (int, error) {
		return e.compressPatterns(ctx, tenantID)
	})
	if err != nil {
		return nil, fmt.Errorf("compress patterns: %w", err)
	}
	result.CompressedCount = compressed

	after, err := e.store.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	result.AfterCount = after
	result.FinishedAt = e.store.Now()

	result.ConsolidatedCount = merged + compressed
	result.StorageSavedBytes = int64(result.ConsolidatedCount) * storageSavedPerRecord
	result.Strategies = appliedStrategies(result)

	logRec := &store.ConsolidationLogRecord{
		TenantID:          tenantID,
		StartedAt:         result.StartedAt,
		FinishedAt:        result.FinishedAt,
		BeforeCount:       result.BeforeCount,
		AfterCount:        result.AfterCount,
		ConsolidatedCount: result.ConsolidatedCount,
		ArchivedCount:     result.ArchivedCount,
		StorageSavedBytes: result.StorageSavedBytes,
		Details: map[string]int{
			"merged":     merged,
			"summarized": summarized,
			"archived":   archived,
			"compressed": compressed,
		},
	}
	if err := e.store.AppendConsolidationLog(ctx, logRec); err != nil {
		return nil, err
	}

	e.logger.Info("consolidation run finished",
		"tenant", tenantID,
		"before", result.BeforeCount,
		"after", result.AfterCount,
		"merged", merged,
		"summarized", summarized,
		"archived", archived,
		"compressed", compressed,
	)

	return result, nil
}

// RunAll consolidates every tenant sequentially. Per-tenant results are
// logged individually, so a restart after failure need not redo tenants
// whose runs already completed.
func (e *Engine) RunAll(ctx context.Context) (*PlatformResult, error) {
	tenants, err := e.store.Tenants(ctx)
	if err != nil {
		return nil, err
	}

	platform := &PlatformResult{}
	for _, tenant := range tenants {
		result, err := e.Run(ctx, tenant)
		if err != nil {
			e.logger.Error("consolidation failed for tenant", "tenant", tenant, "error", err)
			if platform.Failed == nil {
				platform.Failed = make(map[string]string)
			}
			platform.Failed[tenant] = err.Error()
			continue
		}
		platform.Tenants = append(platform.Tenants, *result)
		platform.ConsolidatedCount += result.ConsolidatedCount
		platform.ArchivedCount += result.ArchivedCount
		platform.StorageSavedBytes += result.StorageSavedBytes
	}

	return platform, nil
}

// timedStage runs one strategy and records its duration under the stage
// label.
func (e *Engine) timedStage(ctx context.Context, stage string, fn func() (int, error)) (int, error) {
	started := time.Now()
	n, err := fn()
	e.metrics.RecordStage(ctx, "consolidate", stage, time.Since(started).Milliseconds())
	return n, err
}

func appliedStrategies(r *Result) []string {
	var applied []string
	if r.MergedCount > 0 {
		applied = append(applied, "merge_similar")
	}
	if r.SummarizedCount > 0 {
		applied = append(applied, "summarize_old")
	}
	if r.ArchivedCount > 0 {
		applied = append(applied, "archive_low_value")
	}
	if r.CompressedCount > 0 {
		applied = append(applied, "compress_patterns")
	}
	return applied
}
