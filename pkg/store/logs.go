package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Append-only audit and analytics records. Log ids are ULIDs so records sort
// lexicographically by creation time.

// ConsolidationLogRecord captures one consolidation run for one tenant.
type ConsolidationLogRecord struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	BeforeCount       int64          `json:"before_count"`
	AfterCount        int64          `json:"after_count"`
	ConsolidatedCount int            `json:"consolidated_count"`
	ArchivedCount     int            `json:"archived_count"`
	StorageSavedBytes int64          `json:"storage_saved_bytes"`
	Details           map[string]int `json:"details"`
}

// SearchLogRecord captures one search call.
type SearchLogRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Query       string    `json:"query"`
	Filters     string    `json:"filters"`
	ResultCount int       `json:"result_count"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportLogRecord captures one export.
type ExportLogRecord struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	PackageID      string    `json:"package_id"`
	Format         string    `json:"format"`
	MemoryCount    int       `json:"memory_count"`
	IncludeArchive bool      `json:"include_archive"`
	CreatedAt      time.Time `json:"created_at"`
}

// ImportLogRecord captures one import, including per-item errors.
type ImportLogRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	PackageID    string    `json:"package_id"`
	Strategy     string    `json:"strategy"`
	Imported     int       `json:"imported"`
	Skipped      int       `json:"skipped"`
	Overwritten  int       `json:"overwritten"`
	Errors       []string  `json:"errors"`
	ValidateOnly bool      `json:"validate_only"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppendConsolidationLog writes a consolidation run record.
func (s *Store) AppendConsolidationLog(ctx context.Context, rec *ConsolidationLogRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Details == nil {
		rec.Details = map[string]int{}
	}

	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
		INSERT INTO consolidation_log (id, tenant_id, started_at, finished_at,
			before_count, after_count, consolidated_count, archived_count,
			storage_saved_bytes, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.StartedAt, rec.FinishedAt,
		rec.BeforeCount, rec.AfterCount, rec.ConsolidatedCount, rec.ArchivedCount,
		rec.StorageSavedBytes, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to append consolidation log: %w", err)
	}

	return nil
}

// ConsolidationLogs returns the run records for a tenant, oldest first.
func (s *Store) ConsolidationLogs(ctx context.Context, tenantID string) ([]ConsolidationLogRecord, error) {
	query := `
		SELECT id, tenant_id, started_at, finished_at, before_count, after_count,
			consolidated_count, archived_count, storage_saved_bytes, details_json
		FROM consolidation_log WHERE tenant_id = ? ORDER BY started_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidation logs: %w", err)
	}
	defer rows.Close()

	var records []ConsolidationLogRecord
	for rows.Next() {
		var rec ConsolidationLogRecord
		var detailsJSON []byte
		err := rows.Scan(&rec.ID, &rec.TenantID, &rec.StartedAt, &rec.FinishedAt,
			&rec.BeforeCount, &rec.AfterCount, &rec.ConsolidatedCount, &rec.ArchivedCount,
			&rec.StorageSavedBytes, &detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consolidation log: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &rec.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consolidation logs: %w", err)
	}

	return records, nil
}

// AppendSearchLog writes a search call record.
func (s *Store) AppendSearchLog(ctx context.Context, rec *SearchLogRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.Now()
	}
	if rec.Filters == "" {
		rec.Filters = "{}"
	}

	query := `
		INSERT INTO search_log (id, tenant_id, query, filters_json, result_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.Query, rec.Filters, rec.ResultCount, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append search log: %w", err)
	}

	return nil
}

// RecentQueries returns a tenant's most recent distinct search queries,
// newest first. Feeds autocomplete.
func (s *Store) RecentQueries(ctx context.Context, tenantID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT query, MAX(created_at) AS last_used
		FROM search_log
		WHERE tenant_id = ? AND query != ''
		GROUP BY query
		ORDER BY last_used DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent searches: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		var lastUsed time.Time
		if err := rows.Scan(&q, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan recent query: %w", err)
		}
		queries = append(queries, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent queries: %w", err)
	}

	return queries, nil
}

// SearchLogs returns a tenant's search log records, oldest first.
func (s *Store) SearchLogs(ctx context.Context, tenantID string) ([]SearchLogRecord, error) {
	query := `
		SELECT id, tenant_id, query, filters_json, result_count, duration_ms, created_at
		FROM search_log WHERE tenant_id = ? ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query search logs: %w", err)
	}
	defer rows.Close()

	var records []SearchLogRecord
	for rows.Next() {
		var rec SearchLogRecord
		err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Query, &rec.Filters,
			&rec.ResultCount, &rec.DurationMs, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search log: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search logs: %w", err)
	}

	return records, nil
}

// AppendExportLog writes an export record.
func (s *Store) AppendExportLog(ctx context.Context, rec *ExportLogRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.Now()
	}

	query := `
		INSERT INTO export_log (id, tenant_id, package_id, format, memory_count, include_archive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.PackageID, rec.Format, rec.MemoryCount, rec.IncludeArchive, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append export log: %w", err)
	}

	return nil
}

// ExportLogs returns a tenant's export log records, oldest first.
func (s *Store) ExportLogs(ctx context.Context, tenantID string) ([]ExportLogRecord, error) {
	query := `
		SELECT id, tenant_id, package_id, format, memory_count, include_archive, created_at
		FROM export_log WHERE tenant_id = ? ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query export logs: %w", err)
	}
	defer rows.Close()

	var records []ExportLogRecord
	for rows.Next() {
		var rec ExportLogRecord
		err := rows.Scan(&rec.ID, &rec.TenantID, &rec.PackageID, &rec.Format,
			&rec.MemoryCount, &rec.IncludeArchive, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export log: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export logs: %w", err)
	}

	return records, nil
}

// AppendImportLog writes an import record.
func (s *Store) AppendImportLog(ctx context.Context, rec *ImportLogRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.Now()
	}
	if rec.Errors == nil {
		rec.Errors = []string{}
	}

	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal import errors: %w", err)
	}

	query := `
		INSERT INTO import_log (id, tenant_id, package_id, strategy, imported, skipped, overwritten, errors_json, validate_only, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.PackageID, rec.Strategy,
		rec.Imported, rec.Skipped, rec.Overwritten, errorsJSON, rec.ValidateOnly, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append import log: %w", err)
	}

	return nil
}

// ImportLogs returns a tenant's import log records, oldest first.
func (s *Store) ImportLogs(ctx context.Context, tenantID string) ([]ImportLogRecord, error) {
	query := `
		SELECT id, tenant_id, package_id, strategy, imported, skipped, overwritten, errors_json, validate_only, created_at
		FROM import_log WHERE tenant_id = ? ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	var records []ImportLogRecord
	for rows.Next() {
		var rec ImportLogRecord
		var errorsJSON []byte
		err := rows.Scan(&rec.ID, &rec.TenantID, &rec.PackageID, &rec.Strategy,
			&rec.Imported, &rec.Skipped, &rec.Overwritten, &errorsJSON, &rec.ValidateOnly, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode import errors: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import logs: %w", err)
	}

	return records, nil
}
