// Package export builds versioned, checksummed memory packages and imports
// them back with duplicate detection and conflict strategies.
package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

// PackageVersion is the current export format version. Imports accept only
// this version.
const PackageVersion = "1.0"

// Format selects how much of a tenant's state an export carries.
type Format string

const (
	// FormatFull carries everything, superseded records included, for
	// backup and restore on the same installation.
	FormatFull Format = "full"

	// FormatPortable carries only live records with recall counters reset,
	// for transfer to another installation.
	FormatPortable Format = "portable"
)

// Memories is the checksummed payload section of a package.
type Memories struct {
	Active   []store.MemoryRecord `json:"active"`
	Archived []store.MemoryRecord `json:"archived,omitempty"`
}

// Snapshot summarizes the exported tenant's state at export time. It is
// informational and does not participate in the checksum.
type Snapshot struct {
	ActiveCount   int64                      `json:"active_count"`
	ArchivedCount int64                      `json:"archived_count"`
	TotalRecalls  int64                      `json:"total_recalls"`
	CountsByType  map[store.MemoryType]int64 `json:"counts_by_type"`
}

// PatternStats summarizes a tenant's pattern memories for one category.
type PatternStats struct {
	Count             int     `json:"count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Package is one versioned export of a tenant's memories.
type Package struct {
	Version    string                  `json:"version"`
	PackageID  string                  `json:"package_id"`
	TenantID   string                  `json:"tenant_id"`
	Format     Format                  `json:"format"`
	ExportedAt time.Time               `json:"exported_at"`
	Memories   Memories                `json:"memories"`
	Patterns   map[string]PatternStats `json:"patterns,omitempty"`
	Metrics    *Snapshot               `json:"metrics,omitempty"`
	Checksum   string                  `json:"checksum"`
}

// Options controls an export.
type Options struct {
	Format         Format `json:"format,omitempty"`
	IncludeArchive bool   `json:"include_archive,omitempty"`
}

// Engine exports and imports memory packages.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// NewEngine creates an export engine over the given store.
func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger}
}

// Export builds a checksummed package of the tenant's memories and logs it.
func (e *Engine) Export(ctx context.Context, tenantID string, opts Options) (*Package, error) {
	if opts.Format == "" {
		opts.Format = FormatFull
	}
	if opts.Format != FormatFull && opts.Format != FormatPortable {
		return nil, fault.New(fault.KindValidation, "export", "unknown format %q", opts.Format)
	}

	filters := store.ListFilters{IncludeSuperseded: opts.Format == FormatFull}

	active, err := e.store.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}

	var archived []store.MemoryRecord
	if opts.IncludeArchive {
		archived, err = e.store.ListArchive(ctx, tenantID, filters)
		if err != nil {
			return nil, err
		}
	}

	if opts.Format == FormatPortable {
		stripInternal(active)
		stripInternal(archived)
	}

	memories := Memories{Active: active, Archived: archived}
	sum, err := checksum(memories)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "export", err)
	}

	snapshot, err := e.snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	pkg := &Package{
		Version:    PackageVersion,
		PackageID:  ulid.Make().String(),
		TenantID:   tenantID,
		Format:     opts.Format,
		ExportedAt: e.store.Now(),
		Memories:   memories,
		Patterns:   patternStats(active),
		Metrics:    snapshot,
		Checksum:   sum,
	}

	logRec := &store.ExportLogRecord{
		TenantID:       tenantID,
		PackageID:      pkg.PackageID,
		Format:         string(opts.Format),
		MemoryCount:    len(active) + len(archived),
		IncludeArchive: opts.IncludeArchive,
	}
	if err := e.store.AppendExportLog(ctx, logRec); err != nil {
		return nil, err
	}

	e.logger.Info("exported memory package",
		"tenant", tenantID,
		"package", pkg.PackageID,
		"format", opts.Format,
		"memories", logRec.MemoryCount,
	)

	return pkg, nil
}

// stripInternal clears the fields that only have meaning inside the source
// installation. Portable records carry content, type, importance, tags, and
// created_at; the importing side assigns fresh ids.
func stripInternal(records []store.MemoryRecord) {
	for i := range records {
		records[i].ID = ""
		records[i].TenantID = ""
		records[i].RecallCount = 0
		records[i].Consolidated = false
		records[i].Summarized = false
		records[i].Compressed = false
		records[i].Superseded = false
		records[i].ArchivedAt = nil
	}
}

// patternStats groups the exported pattern memories by category. The section
// is informational and, like the metrics snapshot, stays outside the checksum.
func patternStats(records []store.MemoryRecord) map[string]PatternStats {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		if rec.Type != store.TypePattern {
			continue
		}
		category := rec.Content.Category()
		counts[category]++
		sums[category] += rec.Content.Confidence()
	}
	if len(counts) == 0 {
		return nil
	}

	stats := make(map[string]PatternStats, len(counts))
	for category, count := range counts {
		stats[category] = PatternStats{
			Count:             count,
			AverageConfidence: sums[category] / float64(count),
		}
	}
	return stats
}

func (e *Engine) snapshot(ctx context.Context, tenantID string) (*Snapshot, error) {
	activeCount, err := e.store.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	archivedCount, err := e.store.CountArchive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalRecalls, err := e.store.TotalRecalls(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byType, err := e.store.CountsByType(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ActiveCount:   activeCount,
		ArchivedCount: archivedCount,
		TotalRecalls:  totalRecalls,
		CountsByType:  byType,
	}, nil
}
