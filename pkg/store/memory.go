package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palace-sh/palace/pkg/fault"
)

// MemoryType enumerates the kinds of memories a tenant can hold. The summary
// and pattern-summary variants are derived by the consolidation engine.
type MemoryType string

const (
	TypeInteraction    MemoryType = "interaction"
	TypeProposal       MemoryType = "proposal"
	TypeOutcome        MemoryType = "outcome"
	TypePattern        MemoryType = "pattern"
	TypePreference     MemoryType = "preference"
	TypeFeedback       MemoryType = "feedback"
	TypeMilestone      MemoryType = "milestone"
	TypeSummary        MemoryType = "summary"
	TypePatternSummary MemoryType = "pattern_summary"
)

var memoryTypes = []MemoryType{
	TypeInteraction, TypeProposal, TypeOutcome, TypePattern,
	TypePreference, TypeFeedback, TypeMilestone,
	TypeSummary, TypePatternSummary,
}

// MemoryTypes returns every valid memory type.
func MemoryTypes() []MemoryType {
	out := make([]MemoryType, len(memoryTypes))
	copy(out, memoryTypes)
	return out
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	for _, mt := range memoryTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// Namespace identifies where a record lives. A record exists in exactly one
// of {active, archive, deletion queue} at any time.
type Namespace string

const (
	NamespaceActive  Namespace = "active"
	NamespaceArchive Namespace = "archive"
)

// MemoryRecord is a tenant-scoped memory with importance and tags.
type MemoryRecord struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Type         MemoryType `json:"type"`
	Content      Content    `json:"content"`
	Importance   float64    `json:"importance"`
	Tags         []string   `json:"tags"`
	RecallCount  int        `json:"recall_count"`
	CreatedAt    time.Time  `json:"created_at"`
	Consolidated bool       `json:"consolidated,omitempty"`
	Summarized   bool       `json:"summarized,omitempty"`
	Compressed   bool       `json:"compressed,omitempty"`
	Superseded   bool       `json:"superseded,omitempty"`

	// ArchivedAt is set only for records in the archive namespace.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// RecallFilters narrows a Recall call.
type RecallFilters struct {
	Type          *MemoryType
	MinImportance float64
	Limit int // default 50, capped at 200
}

// ListFilters narrows a List call. Nil pointer fields are ignored.
type ListFilters struct {
	Types             []MemoryType
	CreatedBefore     *time.Time
	CreatedAfter      *time.Time
	MaxImportance     *float64
	MaxRecallCount    *int
	IncludeSuperseded bool
	OnlyNotSummarized bool
	Limit             int
}

// ClampImportance clamps v to [0,1]. Applied on every write path so the
// stored importance is always in range regardless of input.
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const memoryColumns = `id, tenant_id, type, content_json, importance, tags_json,
	recall_count, created_at, consolidated, summarized, compressed, superseded`

// Insert creates a new memory record in the active namespace. Generates an id
// and timestamp when absent and clamps importance.
func (s *Store) Insert(ctx context.Context, record *MemoryRecord) error {
	if strings.TrimSpace(record.TenantID) == "" {
		return fault.New(fault.KindValidation, "store.insert", "tenant id is required")
	}
	if !record.Type.Valid() {
		return fault.New(fault.KindValidation, "store.insert", "unknown memory type %q", record.Type)
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.Now()
	}
	record.Importance = ClampImportance(record.Importance)
	if record.Content == nil {
		record.Content = Content{}
	}
	if record.Tags == nil {
		record.Tags = []string{}
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
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
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
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	return nil
}

// Get retrieves an active memory by id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE tenant_id = ? AND id = ?`

	record, err := scanMemoryRow(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "store.get", "memory %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	return record, nil
}

// Recall returns active memories matching the filters, most important first,
// and increments recall_count on every returned record. Superseded records
// are hidden from recall.
func (s *Store) Recall(ctx context.Context, tenantID string, filters RecallFilters) ([]MemoryRecord, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fault.New(fault.KindValidation, "store.recall", "tenant id is required")
	}

	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Limit > 200 {
		filters.Limit = 200
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE tenant_id = ? AND superseded = 0`
	args := []interface{}{tenantID}

	if filters.Type != nil {
		query += " AND type = ?"
		args = append(args, string(*filters.Type))
	}
	if filters.MinImportance > 0 {
		query += " AND importance >= ?"
		args = append(args, filters.MinImportance)
	}

	query += " ORDER BY importance DESC, created_at DESC LIMIT ?"
	args = append(args, filters.Limit)

	records, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to recall memories: %w", err)
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i := range records {
			ids[i] = records[i].ID
			records[i].RecallCount++
		}
		if err := s.bumpRecallCounts(ctx, tenantID, ids); err != nil {
			return nil, fmt.Errorf("failed to update recall counts: %w", err)
		}
	}

	return records, nil
}

// List returns active memories matching the filters without touching recall
// counts. Used by the batch engines and search.
func (s *Store) List(ctx context.Context, tenantID string, filters ListFilters) ([]MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if !filters.IncludeSuperseded {
		query += " AND superseded = 0"
	}
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
	if filters.CreatedAfter != nil {
		query += " AND created_at >= ?"
		args = append(args, *filters.CreatedAfter)
	}
	if filters.MaxImportance != nil {
		query += " AND importance < ?"
		args = append(args, *filters.MaxImportance)
	}
	if filters.MaxRecallCount != nil {
		query += " AND recall_count < ?"
		args = append(args, *filters.MaxRecallCount)
	}
	if filters.OnlyNotSummarized {
		query += " AND summarized = 0"
	}

	query += " ORDER BY created_at ASC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	records, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return records, nil
}

// UpdateContent replaces a memory's content in place, optionally flagging it
// as summarized. The record id is preserved.
func (s *Store) UpdateContent(ctx context.Context, tenantID, id string, content Content, markSummarized bool) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	query := "UPDATE memories SET content_json = ?"
	args := []interface{}{contentJSON}
	if markSummarized {
		query += ", summarized = 1"
	}
	query += " WHERE tenant_id = ? AND id = ?"
	args = append(args, tenantID, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update memory content: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fault.New(fault.KindNotFound, "store.update_content", "memory %s not found", id)
	}

	return nil
}

// ReplaceWithSummary inserts a summary record and removes its source records
// in one transaction. The summary is inserted before the sources are deleted
// so a concurrent reader sees a superset, never a gap.
func (s *Store) ReplaceWithSummary(ctx context.Context, summary *MemoryRecord, sourceIDs []string) error {
	return s.insertSummaryTx(ctx, summary, sourceIDs, true)
}

// SupersedeWithSummary inserts a summary record and flags its source records
// as superseded, keeping them for audit. Summary-first ordering as above.
func (s *Store) SupersedeWithSummary(ctx context.Context, summary *MemoryRecord, sourceIDs []string) error {
	return s.insertSummaryTx(ctx, summary, sourceIDs, false)
}

func (s *Store) insertSummaryTx(ctx context.Context, summary *MemoryRecord, sourceIDs []string, removeSources bool) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = s.Now()
	}
	summary.Importance = ClampImportance(summary.Importance)

	contentJSON, err := json.Marshal(summary.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal summary content: %w", err)
	}
	tagsJSON, err := json.Marshal(summary.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal summary tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insert,
		summary.ID,
		summary.TenantID,
		string(summary.Type),
		contentJSON,
		summary.Importance,
		tagsJSON,
		summary.RecallCount,
		summary.CreatedAt,
		summary.Consolidated,
		summary.Summarized,
		summary.Compressed,
		summary.Superseded,
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	placeholders := make([]string, len(sourceIDs))
	args := make([]interface{}, 0, len(sourceIDs)+1)
	for i, id := range sourceIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	in := strings.Join(placeholders, ",")

	if removeSources {
		query := fmt.Sprintf("DELETE FROM memories WHERE tenant_id = ? AND id IN (%s)", in)
		_, err = tx.ExecContext(ctx, query, append([]interface{}{summary.TenantID}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to remove source memories: %w", err)
		}
	} else {
		query := fmt.Sprintf("UPDATE memories SET superseded = 1 WHERE tenant_id = ? AND id IN (%s)", in)
		_, err = tx.ExecContext(ctx, query, append([]interface{}{summary.TenantID}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to supersede source memories: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteMemories removes active records by id. Returns the number deleted.
func (s *Store) DeleteMemories(ctx context.Context, tenantID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{tenantID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM memories WHERE tenant_id = ? AND id IN (%s)", strings.Join(placeholders, ","))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// CountActive returns the number of active memories for a tenant.
func (s *Store) CountActive(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE tenant_id = ?", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// CountsByType returns active memory counts grouped by type, excluding
// superseded records.
func (s *Store) CountsByType(ctx context.Context, tenantID string) (map[MemoryType]int64, error) {
	query := `
		SELECT type, COUNT(*) FROM memories
		WHERE tenant_id = ? AND superseded = 0
		GROUP BY type
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count memories by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[MemoryType]int64)
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts[MemoryType(typ)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}

	return counts, nil
}

// TotalRecalls returns the sum of recall counts across a tenant's active
// memories.
func (s *Store) TotalRecalls(ctx context.Context, tenantID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(recall_count) FROM memories WHERE tenant_id = ?", tenantID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum recall counts: %w", err)
	}
	return total.Int64, nil
}

func (s *Store) bumpRecallCounts(ctx context.Context, tenantID string, ids []string) error {
	placeholders := make([]string, len(ids))
	args := []interface{}{tenantID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	// Imported records keep their original ids, so the same id can exist
	// under more than one tenant. The bump must never cross tenants.
	query := fmt.Sprintf(
		"UPDATE memories SET recall_count = recall_count + 1 WHERE tenant_id = ? AND id IN (%s)",
		strings.Join(placeholders, ","))

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...interface{}) ([]MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MemoryRecord
	for rows.Next() {
		record, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryRow(row rowScanner) (*MemoryRecord, error) {
	var record MemoryRecord
	var typ string
	var contentJSON, tagsJSON []byte

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
	)
	if err != nil {
		return nil, err
	}

	record.Type = MemoryType(typ)
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
