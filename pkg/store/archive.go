package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/palace-sh/palace/pkg/fault"
)

const archiveColumns = memoryColumns + `, archived_at`

// ArchiveMemories moves active records into the archive namespace. The copy
// is inserted before the active row is removed, inside one transaction.
// Returns the number of records moved.
func (s *Store) ArchiveMemories(ctx context.Context, tenantID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := []interface{}{s.Now(), tenantID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	in := strings.Join(placeholders, ",")

	copyQuery := fmt.Sprintf(`
		INSERT INTO archive_memories (`+archiveColumns+`)
		SELECT `+memoryColumns+`, ? FROM memories
		WHERE tenant_id = ? AND id IN (%s)
	`, in)

	result, err := tx.ExecContext(ctx, copyQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to copy memories to archive: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	deleteQuery := fmt.Sprintf("DELETE FROM memories WHERE tenant_id = ? AND id IN (%s)", in)
	if _, err := tx.ExecContext(ctx, deleteQuery, args[1:]...); err != nil {
		return 0, fmt.Errorf("failed to remove archived memories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int(moved), nil
}

// GetArchived retrieves a record from the archive namespace.
func (s *Store) GetArchived(ctx context.Context, tenantID, id string) (*MemoryRecord, error) {
	query := `SELECT ` + archiveColumns + ` FROM archive_memories WHERE tenant_id = ? AND id = ?`

	record, err := scanArchiveRow(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "store.get_archived", "archived memory %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived memory: %w", err)
	}

	return record, nil
}

// ListArchive returns archived memories for a tenant, oldest first.
func (s *Store) ListArchive(ctx context.Context, tenantID string, filters ListFilters) ([]MemoryRecord, error) {
	query := `SELECT ` + archiveColumns + ` FROM archive_memories WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if len(filters.Types) > 0 {
		placeholders := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " AND type IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filters.CreatedBefore != nil {
		query += " AND created_at < ?"
		args = append(args, *filters.CreatedBefore)
	}

	query += " ORDER BY created_at ASC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	defer rows.Close()

	var records []MemoryRecord
	for rows.Next() {
		record, err := scanArchiveRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive: %w", err)
	}

	return records, nil
}

// CountArchive returns the number of archived memories for a tenant.
func (s *Store) CountArchive(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM archive_memories WHERE tenant_id = ?", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archive: %w", err)
	}
	return count, nil
}

// DeleteArchived removes archived records by id. Returns the number deleted.
func (s *Store) DeleteArchived(ctx context.Context, tenantID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{tenantID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM archive_memories WHERE tenant_id = ? AND id IN (%s)", strings.Join(placeholders, ","))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived memories: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// InsertArchived places a record directly into the archive namespace. Used by
// import (preserving source placement) and by deletion recovery.
func (s *Store) InsertArchived(ctx context.Context, record *MemoryRecord) error {
	return s.insertArchivedExec(ctx, s.db, record)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insertArchivedExec(ctx context.Context, db execer, record *MemoryRecord) error {
	if record.ID == "" {
		return fault.New(fault.KindValidation, "store.insert_archived", "record id is required")
	}
	record.Importance = ClampImportance(record.Importance)

	archivedAt := s.Now()
	if record.ArchivedAt != nil {
		archivedAt = *record.ArchivedAt
	}

	contentJSON, err := json.Marshal(record.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO archive_memories (` + archiveColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		string(record.Type),
		contentJSON,
		record.Importance,
		tagsJSON,
		record.RecallCount,
		record.CreatedAt,
		record.Consolidated,
		record.Summarized,
		record.Compressed,
		record.Superseded,
		archivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert archived memory: %w", err)
	}

	return nil
}

func scanArchiveRow(row rowScanner) (*MemoryRecord, error) {
	var record MemoryRecord
	var typ string
	var contentJSON, tagsJSON []byte
	var archivedAt time.Time

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&typ,
		&contentJSON,
		&record.Importance,
		&tagsJSON,
		&record.RecallCount,
		&record.CreatedAt,
		&record.Consolidated,
		&record.Summarized,
		&record.Compressed,
		&record.Superseded,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Type = MemoryType(typ)
	record.ArchivedAt = &archivedAt
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &record.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &record.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &record, nil
}
