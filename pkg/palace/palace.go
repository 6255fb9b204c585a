// Package palace is the public facade over the memory subsystem. It wires
// the store and the engines together and instruments every operation with
// metrics and trace export.
package palace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/palace-sh/palace/pkg/consolidate"
	"github.com/palace-sh/palace/pkg/export"
	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/forget"
	"github.com/palace-sh/palace/pkg/metrics"
	"github.com/palace-sh/palace/pkg/search"
	"github.com/palace-sh/palace/pkg/similarity"
	"github.com/palace-sh/palace/pkg/store"
	"github.com/palace-sh/palace/pkg/trace"
)

// Config configures a Palace instance. Only DBPath is required; logging,
// metrics, and tracing default to no-ops.
type Config struct {
	// DBPath is the SQLite database path, or ":memory:" for an ephemeral
	// store.
	DBPath string

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives operation counters and durations. Defaults to the
	// no-op collector.
	Metrics metrics.Collector

	// Trace receives sanitized per-operation trace records. Defaults to
	// the no-op exporter.
	Trace trace.Exporter
}

// Palace is the entry point to the memory subsystem.
type Palace struct {
	store        *store.Store
	consolidator *consolidate.Engine
	similarity   *similarity.Engine
	search       *search.Engine
	exporter     *export.Engine
	forgetter    *forget.Engine

	logger  *slog.Logger
	metrics metrics.Collector
	trace   trace.Exporter
}

// New opens the store and assembles the engines.
func New(cfg Config) (*Palace, error) {
	if cfg.DBPath == "" {
		return nil, fault.New(fault.KindValidation, "new", "db path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Trace == nil {
		cfg.Trace = trace.NewNoop()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	consolidator := consolidate.NewEngine(st, cfg.Logger)
	consolidator.SetMetrics(cfg.Metrics)

	return &Palace{
		store:        st,
		consolidator: consolidator,
		similarity:   similarity.NewEngine(st, cfg.Logger),
		search:       search.NewEngine(st, cfg.Logger),
		exporter:     export.NewEngine(st, cfg.Logger),
		forgetter:    forget.NewEngine(st, cfg.Logger),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		trace:        cfg.Trace,
	}, nil
}

// Close releases the store and flushes the trace exporter.
func (p *Palace) Close() error {
	traceErr := p.trace.Close()
	if err := p.store.Close(); err != nil {
		return err
	}
	return traceErr
}

// Store gives direct access to the underlying store, mainly for tests and
// tooling.
func (p *Palace) Store() *store.Store {
	return p.store
}

// Remember stores one memory for a tenant.
func (p *Palace) Remember(ctx context.Context, record *store.MemoryRecord) (err error) {
	defer p.observe(ctx, "store", recordTenant(record), time.Now(), &err, nil)

	if err = p.store.Insert(ctx, record); err != nil {
		return err
	}
	p.refreshGauges(ctx, record.TenantID)
	return nil
}

// Recall returns a tenant's most relevant active memories and bumps their
// recall counters.
func (p *Palace) Recall(ctx context.Context, tenantID string, filters store.RecallFilters) (records []store.MemoryRecord, err error) {
	defer p.observeCount(ctx, "recall", tenantID, time.Now(), &err, "results", func() int { return len(records) })

	records, err = p.store.Recall(ctx, tenantID, filters)
	return records, err
}

// Get fetches one active memory by id.
func (p *Palace) Get(ctx context.Context, tenantID, id string) (*store.MemoryRecord, error) {
	return p.store.Get(ctx, tenantID, id)
}

// Summary reports a tenant's memory counts and health band.
func (p *Palace) Summary(ctx context.Context, tenantID string) (*store.TenantSummary, error) {
	return p.store.Summary(ctx, tenantID)
}

// UpsertProfile creates or updates a tenant's similarity profile.
func (p *Palace) UpsertProfile(ctx context.Context, profile *store.TenantProfile) error {
	return p.store.UpsertProfile(ctx, profile)
}

// Consolidate runs the consolidation strategies for one tenant.
func (p *Palace) Consolidate(ctx context.Context, tenantID string) (result *consolidate.Result, err error) {
	defer p.observeCount(ctx, "consolidate", tenantID, time.Now(), &err, "consolidated", func() int {
		if result == nil {
			return 0
		}
		return result.ConsolidatedCount
	})

	result, err = p.consolidator.Run(ctx, tenantID)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return result, err
}

// ConsolidateAll runs consolidation for every tenant sequentially.
func (p *Palace) ConsolidateAll(ctx context.Context) (result *consolidate.PlatformResult, err error) {
	defer p.observeCount(ctx, "consolidate", "", time.Now(), &err, "consolidated", func() int {
		if result == nil {
			return 0
		}
		return result.ConsolidatedCount
	})

	result, err = p.consolidator.RunAll(ctx)
	return result, err
}

// SimilarTenants returns the tenant's qualifying peer group.
func (p *Palace) SimilarTenants(ctx context.Context, tenantID string) ([]similarity.PeerMatch, error) {
	return p.similarity.SimilarTenants(ctx, tenantID)
}

// Insights derives anonymized cross-tenant insights for a tenant.
func (p *Palace) Insights(ctx context.Context, tenantID string, limit int) ([]similarity.Insight, error) {
	return p.similarity.CrossTenantInsights(ctx, tenantID, limit)
}

// Search scores a tenant's memories against a query.
func (p *Palace) Search(ctx context.Context, tenantID, query string, opts search.Options) (results []search.Result, err error) {
	defer p.observeCount(ctx, "search", tenantID, time.Now(), &err, "results", func() int { return len(results) })

	results, err = p.search.Search(ctx, tenantID, query, opts)
	return results, err
}

// Suggest returns autocomplete candidates for a query prefix.
func (p *Palace) Suggest(ctx context.Context, tenantID, prefix string, limit int) ([]search.Suggestion, error) {
	return p.search.Suggest(ctx, tenantID, prefix, limit)
}

// Export builds a checksummed package of a tenant's memories.
func (p *Palace) Export(ctx context.Context, tenantID string, opts export.Options) (pkg *export.Package, err error) {
	defer p.observeCount(ctx, "export", tenantID, time.Now(), &err, "memories", func() int {
		if pkg == nil {
			return 0
		}
		return len(pkg.Memories.Active) + len(pkg.Memories.Archived)
	})

	pkg, err = p.exporter.Export(ctx, tenantID, opts)
	return pkg, err
}

// Import loads a package into a tenant after verifying its checksum.
func (p *Palace) Import(ctx context.Context, tenantID string, pkg *export.Package, opts export.ImportOptions) (report *export.Report, err error) {
	defer p.observeCount(ctx, "import", tenantID, time.Now(), &err, "imported", func() int {
		if report == nil {
			return 0
		}
		return report.Imported
	})

	report, err = p.exporter.Import(ctx, tenantID, pkg, opts)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return report, err
}

// Forget soft-deletes the memories matching the criteria.
func (p *Palace) Forget(ctx context.Context, tenantID string, criteria forget.Criteria, reason string) (receipt *forget.Receipt, err error) {
	defer p.observeCount(ctx, "soft_delete", tenantID, time.Now(), &err, "matched", func() int {
		if receipt == nil {
			return 0
		}
		return receipt.MatchedCount
	})

	receipt, err = p.forgetter.SoftDelete(ctx, tenantID, criteria, reason)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return receipt, err
}

// Recover restores a soft deletion within its retention window.
func (p *Palace) Recover(ctx context.Context, tenantID, deletionID string) (restored int, err error) {
	defer p.observeCount(ctx, "recover", tenantID, time.Now(), &err, "restored", func() int { return restored })

	restored, err = p.forgetter.Recover(ctx, tenantID, deletionID)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return restored, err
}

// DeletionStatus lists the recoverable entries of one deletion.
func (p *Palace) DeletionStatus(ctx context.Context, tenantID, deletionID string) ([]store.DeletionEntry, error) {
	return p.forgetter.Status(ctx, tenantID, deletionID)
}

// PurgeExpired removes deletion-queue entries past their retention window.
func (p *Palace) PurgeExpired(ctx context.Context) (purged int, err error) {
	defer p.observeCount(ctx, "purge", "", time.Now(), &err, "purged", func() int { return purged })

	purged, err = p.forgetter.PurgeExpired(ctx)
	return purged, err
}

// PermanentDelete removes matching memories immediately, with no recovery.
func (p *Palace) PermanentDelete(ctx context.Context, tenantID string, criteria forget.Criteria, confirm bool) (deleted int, err error) {
	defer p.observeCount(ctx, "purge", tenantID, time.Now(), &err, "deleted", func() int { return deleted })

	deleted, err = p.forgetter.PermanentDelete(ctx, tenantID, criteria, confirm)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return deleted, err
}

// Erase removes every trace of a tenant, leaving only the audit record.
func (p *Palace) Erase(ctx context.Context, tenantID, reason string, confirm bool) (report *forget.ErasureReport, err error) {
	defer p.observeCount(ctx, "erasure", tenantID, time.Now(), &err, "removed", func() int {
		if report == nil {
			return 0
		}
		return int(report.TotalRemoved)
	})

	report, err = p.forgetter.FullErasure(ctx, tenantID, reason, confirm)
	if err == nil {
		p.refreshGauges(ctx, tenantID)
	}
	return report, err
}

// ErasureAudits lists the audit records of past erasures.
func (p *Palace) ErasureAudits(ctx context.Context, tenantID string) ([]store.ErasureAuditRecord, error) {
	return p.forgetter.ErasureAudits(ctx, tenantID)
}

// observe records one finished operation in metrics and trace.
func (p *Palace) observe(ctx context.Context, operation, tenantID string, started time.Time, errp *error, counters map[string]int64) {
	durationMs := time.Since(started).Milliseconds()

	status := "success"
	errorKind := ""
	if errp != nil && *errp != nil {
		status = "error"
		errorKind = string(fault.KindOf(*errp))
		p.metrics.RecordError(ctx, operation, errorKind)
	}
	p.metrics.RecordOperation(ctx, operation, status, durationMs)

	record := &trace.Record{
		Timestamp:   started,
		OperationID: ulid.Make().String(),
		Operation:   operation,
		TenantID:    tenantID,
		DurationMs:  durationMs,
		Status:      status,
		ErrorKind:   errorKind,
		Counters:    counters,
	}
	if err := p.trace.Export(ctx, record); err != nil {
		p.logger.Warn("failed to export trace record", "operation", operation, "error", err)
	}
}

// observeCount is observe with a single lazily evaluated counter.
func (p *Palace) observeCount(ctx context.Context, operation, tenantID string, started time.Time, errp *error, counterName string, counter func() int) {
	counters := map[string]int64{counterName: int64(counter())}
	p.observe(ctx, operation, tenantID, started, errp, counters)
}

// refreshGauges updates the namespace record gauges after a mutation. Best
// effort; failures are logged and ignored.
func (p *Palace) refreshGauges(ctx context.Context, tenantID string) {
	if active, err := p.store.CountActive(ctx, tenantID); err == nil {
		p.metrics.SetNamespaceCount(ctx, string(store.NamespaceActive), active)
	}
	if archived, err := p.store.CountArchive(ctx, tenantID); err == nil {
		p.metrics.SetNamespaceCount(ctx, string(store.NamespaceArchive), archived)
	}
	if queued, err := p.store.CountQueue(ctx, tenantID); err == nil {
		p.metrics.SetNamespaceCount(ctx, "deletion_queue", queued)
	}
}

func recordTenant(record *store.MemoryRecord) string {
	if record == nil {
		return ""
	}
	return record.TenantID
}
