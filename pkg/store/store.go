// Package store implements the persisted, tenant-scoped memory store backing
// the palace subsystems: active memories, the archive namespace, the deletion
// queue, tenant profiles, and the append-only audit logs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store wraps the SQLite handle shared by every palace subsystem.
// All operations are scoped by tenant id; a query can never cross
// tenant boundaries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the store at dbPath. Use ":memory:" for an
// in-memory database in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps in-memory databases coherent and serializes
	// writers; batch jobs and live reads share it safely.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current UTC time.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// initSchema creates the database schema if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content_json TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		tags_json TEXT NOT NULL DEFAULT '[]',
		recall_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		consolidated INTEGER NOT NULL DEFAULT 0,
		summarized INTEGER NOT NULL DEFAULT 0,
		compressed INTEGER NOT NULL DEFAULT 0,
		superseded INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_memories_tenant ON memories(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_memories_tenant_type ON memories(tenant_id, type);
	CREATE INDEX IF NOT EXISTS idx_memories_tenant_created ON memories(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS archive_memories (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content_json TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		tags_json TEXT NOT NULL DEFAULT '[]',
		recall_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		consolidated INTEGER NOT NULL DEFAULT 0,
		summarized INTEGER NOT NULL DEFAULT 0,
		compressed INTEGER NOT NULL DEFAULT 0,
		superseded INTEGER NOT NULL DEFAULT 0,
		archived_at DATETIME NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_archive_tenant ON archive_memories(tenant_id);

	CREATE TABLE IF NOT EXISTS deletion_queue (
		id TEXT PRIMARY KEY,
		deletion_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		deleted_at DATETIME NOT NULL,
		retention_until DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_deletion ON deletion_queue(deletion_id);
	CREATE INDEX IF NOT EXISTS idx_queue_tenant ON deletion_queue(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_queue_retention ON deletion_queue(retention_until);

	CREATE TABLE IF NOT EXISTS tenant_profiles (
		tenant_id TEXT PRIMARY KEY,
		platforms_json TEXT NOT NULL DEFAULT '[]',
		niche TEXT NOT NULL DEFAULT '',
		approvals INTEGER NOT NULL DEFAULT 0,
		submissions INTEGER NOT NULL DEFAULT 0,
		velocity REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS consolidation_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		before_count INTEGER NOT NULL,
		after_count INTEGER NOT NULL,
		consolidated_count INTEGER NOT NULL,
		archived_count INTEGER NOT NULL,
		storage_saved_bytes INTEGER NOT NULL,
		details_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_consolidation_tenant ON consolidation_log(tenant_id);

	CREATE TABLE IF NOT EXISTS search_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		query TEXT NOT NULL,
		filters_json TEXT NOT NULL DEFAULT '{}',
		result_count INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_search_tenant ON search_log(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS export_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		format TEXT NOT NULL,
		memory_count INTEGER NOT NULL,
		include_archive INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS import_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		package_id TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL,
		imported INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		overwritten INTEGER NOT NULL,
		errors_json TEXT NOT NULL DEFAULT '[]',
		validate_only INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS erasure_audit (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		counts_json TEXT NOT NULL,
		erased_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Tenants returns the distinct tenant ids present in the active store or the
// archive. Used by platform-wide batch jobs.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id FROM memories
		UNION
		SELECT DISTINCT tenant_id FROM archive_memories
		ORDER BY tenant_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}
