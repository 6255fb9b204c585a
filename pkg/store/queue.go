package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palace-sh/palace/pkg/fault"
)

// QueuedRecord pairs a memory snapshot with the namespace it came from, so
// recovery is exact.
type QueuedRecord struct {
	Record MemoryRecord `json:"record"`
	Origin Namespace    `json:"origin"`
}

// DeletionEntry is one row of the deletion queue.
type DeletionEntry struct {
	ID             string       `json:"id"`
	DeletionID     string       `json:"deletion_id"`
	TenantID       string       `json:"tenant_id"`
	Origin         Namespace    `json:"origin"`
	Record         MemoryRecord `json:"record"`
	Reason         string       `json:"reason"`
	DeletedAt      time.Time    `json:"deleted_at"`
	RetentionUntil time.Time    `json:"retention_until"`
}

// EnqueueDeletion snapshots the given records into the deletion queue and
// removes them from their source namespaces, all in one transaction. Queue
// rows are inserted before the sources are deleted.
func (s *Store) EnqueueDeletion(ctx context.Context, tenantID, deletionID, reason string, retentionUntil time.Time, records []QueuedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.Now()
	insert := `
		INSERT INTO deletion_queue (id, deletion_id, tenant_id, origin, snapshot_json, reason, deleted_at, retention_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	activeIDs := make([]string, 0, len(records))
	archiveIDs := make([]string, 0)

	for _, qr := range records {
		snapshot, err := json.Marshal(qr.Record)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
		}

		_, err = tx.ExecContext(ctx, insert,
			uuid.New().String(),
			deletionID,
			tenantID,
			string(qr.Origin),
			snapshot,
			reason,
			now,
			retentionUntil,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to enqueue deletion: %w", err)
		}

		switch qr.Origin {
		case NamespaceArchive:
			archiveIDs = append(archiveIDs, qr.Record.ID)
		default:
			activeIDs = append(activeIDs, qr.Record.ID)
		}
	}

	if err := deleteByIDsTx(ctx, tx, "memories", tenantID, activeIDs); err != nil {
		return 0, err
	}
	if err := deleteByIDsTx(ctx, tx, "archive_memories", tenantID, archiveIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(records), nil
}

func deleteByIDsTx(ctx context.Context, tx execer, table, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{tenantID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ? AND id IN (%s)", table, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// DeletionEntries returns the unexpired queue entries for a deletion id.
func (s *Store) DeletionEntries(ctx context.Context, tenantID, deletionID string, now time.Time) ([]DeletionEntry, error) {
	query := `
		SELECT id, deletion_id, tenant_id, origin, snapshot_json, reason, deleted_at, retention_until
		FROM deletion_queue
		WHERE tenant_id = ? AND deletion_id = ? AND retention_until >= ?
		ORDER BY deleted_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, deletionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion entries: %w", err)
	}
	defer rows.Close()

	var entries []DeletionEntry
	for rows.Next() {
		var entry DeletionEntry
		var origin string
		var snapshot []byte

		err := rows.Scan(&entry.ID, &entry.DeletionID, &entry.TenantID, &origin,
			&snapshot, &entry.Reason, &entry.DeletedAt, &entry.RetentionUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deletion entry: %w", err)
		}

		entry.Origin = Namespace(origin)
		if err := json.Unmarshal(snapshot, &entry.Record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deletion entries: %w", err)
	}

	return entries, nil
}

// RestoreDeletion puts every queued record for a deletion id back into its
// original namespace and clears the queue entries, in one transaction.
// Returns the number of restored records, or NotFound when the queue holds no
// unexpired entries for the deletion id.
func (s *Store) RestoreDeletion(ctx context.Context, tenantID, deletionID string, now time.Time) (int, error) {
	entries, err := s.DeletionEntries(ctx, tenantID, deletionID, now)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fault.New(fault.KindNotFound, "store.restore_deletion", "deletion %s not found", deletionID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertActive := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, entry := range entries {
		rec := entry.Record

		if entry.Origin == NamespaceArchive {
			if err := s.insertArchivedExec(ctx, tx, &rec); err != nil {
				return 0, err
			}
			continue
		}

		contentJSON, err := json.Marshal(rec.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal content: %w", err)
		}
		tagsJSON, err := json.Marshal(rec.Tags)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, insertActive,
			rec.ID, rec.TenantID, string(rec.Type), contentJSON, rec.Importance,
			tagsJSON, rec.RecallCount, rec.CreatedAt,
			rec.Consolidated, rec.Summarized, rec.Compressed, rec.Superseded,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to restore memory: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM deletion_queue WHERE tenant_id = ? AND deletion_id = ?", tenantID, deletionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear deletion queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(entries), nil
}

// PurgeExpired permanently removes queue entries whose retention window has
// elapsed. Returns the number purged.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM deletion_queue WHERE retention_until < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deletion queue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// CountQueue returns the number of queue entries for a tenant.
func (s *Store) CountQueue(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM deletion_queue WHERE tenant_id = ?", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deletion queue: %w", err)
	}
	return count, nil
}

// ErasureCounts itemizes what a full erasure removed, per collection.
type ErasureCounts struct {
	Active            int64 `json:"active"`
	Archived          int64 `json:"archived"`
	Queued            int64 `json:"queued"`
	SearchLogs        int64 `json:"search_logs"`
	ExportLogs        int64 `json:"export_logs"`
	ImportLogs        int64 `json:"import_logs"`
	ConsolidationLogs int64 `json:"consolidation_logs"`
	Profiles          int64 `json:"profiles"`
}

// Total returns the total number of records removed.
func (c ErasureCounts) Total() int64 {
	return c.Active + c.Archived + c.Queued + c.SearchLogs +
		c.ExportLogs + c.ImportLogs + c.ConsolidationLogs + c.Profiles
}

// EraseTenant removes every record for a tenant across all collections in one
// irreversible transaction and writes the erasure audit record. The audit
// table itself is never erased.
func (s *Store) EraseTenant(ctx context.Context, tenantID, reason string) (*ErasureCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	counts := &ErasureCounts{}
	targets := []struct {
		table string
		count *int64
	}{
		{"memories", &counts.Active},
		{"archive_memories", &counts.Archived},
		{"deletion_queue", &counts.Queued},
		{"search_log", &counts.SearchLogs},
		{"export_log", &counts.ExportLogs},
		{"import_log", &counts.ImportLogs},
		{"consolidation_log", &counts.ConsolidationLogs},
		{"tenant_profiles", &counts.Profiles},
	}

	for _, t := range targets {
		result, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ?", t.table), tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to erase %s: %w", t.table, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected for %s: %w", t.table, err)
		}
		*t.count = rows
	}

	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal erasure counts: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO erasure_audit (id, tenant_id, reason, counts_json, erased_at) VALUES (?, ?, ?, ?, ?)",
		uuid.New().String(), tenantID, reason, countsJSON, s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to write erasure audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return counts, nil
}

// ErasureAudits returns the erasure audit records for a tenant.
func (s *Store) ErasureAudits(ctx context.Context, tenantID string) ([]ErasureAuditRecord, error) {
	query := `
		SELECT id, tenant_id, reason, counts_json, erased_at
		FROM erasure_audit WHERE tenant_id = ? ORDER BY erased_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query erasure audits: %w", err)
	}
	defer rows.Close()

	var audits []ErasureAuditRecord
	for rows.Next() {
		var rec ErasureAuditRecord
		var countsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Reason, &countsJSON, &rec.ErasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan erasure audit: %w", err)
		}
		if err := json.Unmarshal(countsJSON, &rec.Counts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal erasure counts: %w", err)
		}
		audits = append(audits, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating erasure audits: %w", err)
	}

	return audits, nil
}

// ErasureAuditRecord is the permanent trace of a full erasure.
type ErasureAuditRecord struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Reason   string        `json:"reason"`
	Counts   ErasureCounts `json:"counts"`
	ErasedAt time.Time     `json:"erased_at"`
}
