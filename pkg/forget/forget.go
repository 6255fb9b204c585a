// Package forget implements the deletion protocol: criteria-based soft
// deletion with a retention window, recovery, scheduled purge, and full
// tenant erasure with an audit trail.
package forget

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

// retentionDays is how long soft-deleted records stay recoverable.
const retentionDays = 30

// State tracks a deletion through its lifecycle.
type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft_deleted"
	StateRecovered   State = "recovered"
	StatePurged      State = "permanently_purged"
)

// CanTransition reports whether a deletion may move from one state to the
// next. Soft deletion is the only exit from active, and purge is terminal.
func CanTransition(from, to State) bool {
	switch from {
	case StateActive:
		return to == StateSoftDeleted
	case StateSoftDeleted:
		return to == StateRecovered || to == StatePurged
	default:
		return false
	}
}

// Criteria selects the memories a deletion applies to. At least one
// criterion must be set.
type Criteria struct {
	IDs           []string           `json:"ids,omitempty"`
	Types         []store.MemoryType `json:"types,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}

// Validate rejects empty criteria. A deletion that matches everything must
// be requested as a full erasure instead.
func (c Criteria) Validate() error {
	if len(c.IDs) == 0 && len(c.Types) == 0 && len(c.Tags) == 0 && c.CreatedBefore == nil {
		return fault.New(fault.KindValidation, "forget",
			"at least one criterion is required; use full erasure to remove everything")
	}
	for _, t := range c.Types {
		if !t.Valid() {
			return fault.New(fault.KindValidation, "forget", "unknown memory type %q", t)
		}
	}
	return nil
}

// Receipt identifies one soft deletion and its recovery deadline.
type Receipt struct {
	DeletionID     string    `json:"deletion_id"`
	TenantID       string    `json:"tenant_id"`
	State          State     `json:"state"`
	MatchedCount   int       `json:"matched_count"`
	Reason         string    `json:"reason,omitempty"`
	DeletedAt      time.Time `json:"deleted_at"`
	RetentionUntil time.Time `json:"retention_until"`
}

// ErasureReport documents a completed full erasure.
type ErasureReport struct {
	TenantID     string              `json:"tenant_id"`
	Reason       string              `json:"reason"`
	Counts       store.ErasureCounts `json:"counts"`
	TotalRemoved int64               `json:"total_removed"`
	ErasedAt     time.Time           `json:"erased_at"`
}

// Engine drives the deletion protocol over the store.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// NewEngine creates a forget engine over the given store.
func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger}
}

// SoftDelete moves every memory matching the criteria, active and archived,
// into the deletion queue. The records disappear from recall and search
// immediately but stay recoverable for the retention window.
func (e *Engine) SoftDelete(ctx context.Context, tenantID string, criteria Criteria, reason string) (*Receipt, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fault.New(fault.KindValidation, "forget", "tenant id is required")
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	matched, err := e.matchRecords(ctx, tenantID, criteria)
	if err != nil {
		return nil, err
	}

	now := e.store.Now()
	receipt := &Receipt{
		DeletionID:     ulid.Make().String(),
		TenantID:       tenantID,
		State:          StateSoftDeleted,
		Reason:         reason,
		DeletedAt:      now,
		RetentionUntil: now.AddDate(0, 0, retentionDays),
	}

	if len(matched) > 0 {
		count, err := e.store.EnqueueDeletion(ctx, tenantID, receipt.DeletionID, reason, receipt.RetentionUntil, matched)
		if err != nil {
			return nil, err
		}
		receipt.MatchedCount = count
	}

	e.logger.Info("soft deleted memories",
		"tenant", tenantID,
		"deletion", receipt.DeletionID,
		"matched", receipt.MatchedCount,
		"retention_until", receipt.RetentionUntil,
	)

	return receipt, nil
}

// Recover restores a soft deletion's records to their original namespaces.
// Once the retention window has passed the deletion is no longer visible and
// recovery reports not found.
func (e *Engine) Recover(ctx context.Context, tenantID, deletionID string) (int, error) {
	restored, err := e.store.RestoreDeletion(ctx, tenantID, deletionID, e.store.Now())
	if err != nil {
		return 0, err
	}
	e.logger.Info("recovered soft deletion",
		"tenant", tenantID, "deletion", deletionID, "restored", restored)
	return restored, nil
}

// Status lists the still-recoverable entries of one deletion.
func (e *Engine) Status(ctx context.Context, tenantID, deletionID string) ([]store.DeletionEntry, error) {
	return e.store.DeletionEntries(ctx, tenantID, deletionID, e.store.Now())
}

// PurgeExpired permanently removes every queue entry whose retention window
// has passed, across all tenants. Meant to run on a schedule.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	purged, err := e.store.PurgeExpired(ctx, e.store.Now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		e.logger.Info("purged expired deletions", "purged", purged)
	}
	return purged, nil
}

// PermanentDelete removes matching memories immediately, skipping the
// retention window. The confirm flag is a deliberate extra step since there
// is no recovery.
func (e *Engine) PermanentDelete(ctx context.Context, tenantID string, criteria Criteria, confirm bool) (int, error) {
	if !confirm {
		return 0, fault.New(fault.KindValidation, "forget",
			"permanent deletion requires explicit confirmation")
	}
	if err := criteria.Validate(); err != nil {
		return 0, err
	}

	matched, err := e.matchRecords(ctx, tenantID, criteria)
	if err != nil {
		return 0, err
	}

	var activeIDs, archivedIDs []string
	for _, m := range matched {
		if m.Origin == store.NamespaceArchive {
			archivedIDs = append(archivedIDs, m.Record.ID)
		} else {
			activeIDs = append(activeIDs, m.Record.ID)
		}
	}

	deleted := 0
	if len(activeIDs) > 0 {
		n, err := e.store.DeleteMemories(ctx, tenantID, activeIDs)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if len(archivedIDs) > 0 {
		n, err := e.store.DeleteArchived(ctx, tenantID, archivedIDs)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	e.logger.Info("permanently deleted memories", "tenant", tenantID, "deleted", deleted)
	return deleted, nil
}

// FullErasure removes every trace of a tenant: memories, archive, deletion
// queue, logs, and profile. Only the erasure audit record remains as proof
// the erasure happened.
func (e *Engine) FullErasure(ctx context.Context, tenantID, reason string, confirm bool) (*ErasureReport, error) {
	if !confirm {
		return nil, fault.New(fault.KindValidation, "forget",
			"full erasure requires explicit confirmation")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, fault.New(fault.KindValidation, "forget", "tenant id is required")
	}

	counts, err := e.store.EraseTenant(ctx, tenantID, reason)
	if err != nil {
		return nil, err
	}

	report := &ErasureReport{
		TenantID:     tenantID,
		Reason:       reason,
		Counts:       *counts,
		TotalRemoved: counts.Total(),
		ErasedAt:     e.store.Now(),
	}

	e.logger.Info("erased tenant",
		"tenant", tenantID, "reason", reason, "removed", report.TotalRemoved)

	return report, nil
}

// ErasureAudits lists the audit records proving past erasures of a tenant.
func (e *Engine) ErasureAudits(ctx context.Context, tenantID string) ([]store.ErasureAuditRecord, error) {
	return e.store.ErasureAudits(ctx, tenantID)
}

// matchRecords collects the active and archived memories a criteria selects.
func (e *Engine) matchRecords(ctx context.Context, tenantID string, criteria Criteria) ([]store.QueuedRecord, error) {
	filters := store.ListFilters{
		Types:             criteria.Types,
		CreatedBefore:     criteria.CreatedBefore,
		IncludeSuperseded: true,
	}

	var matched []store.QueuedRecord

	active, err := e.store.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	for _, rec := range active {
		if criteriaMatches(criteria, &rec) {
			matched = append(matched, store.QueuedRecord{Record: rec, Origin: store.NamespaceActive})
		}
	}

	archived, err := e.store.ListArchive(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	for _, rec := range archived {
		if criteriaMatches(criteria, &rec) {
			matched = append(matched, store.QueuedRecord{Record: rec, Origin: store.NamespaceArchive})
		}
	}

	return matched, nil
}

// criteriaMatches applies the id and tag criteria the store query cannot
// express. All set criteria must hold.
func criteriaMatches(criteria Criteria, rec *store.MemoryRecord) bool {
	if len(criteria.IDs) > 0 {
		found := false
		for _, id := range criteria.IDs {
			if id == rec.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(criteria.Tags) > 0 {
		found := false
		for _, want := range criteria.Tags {
			for _, tag := range rec.Tags {
				if strings.EqualFold(tag, want) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
