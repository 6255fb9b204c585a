package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

// Strategy decides what happens when an imported memory duplicates an
// existing one.
type Strategy string

const (
	// StrategySkipDuplicates leaves existing memories alone and skips
	// incoming duplicates. Importing a package into the tenant it was
	// exported from is a no-op.
	StrategySkipDuplicates Strategy = "skip_duplicates"

	// StrategyOverwrite replaces the existing memory with the incoming
	// one. The match is by record id when the id still exists in the
	// target namespace, by content signature otherwise.
	StrategyOverwrite Strategy = "overwrite"

	// StrategyMerge imports every record under a fresh id with recall
	// counters reset and an extra "imported" tag, keeping both copies of
	// any duplicate.
	StrategyMerge Strategy = "merge"
)

// ImportOptions controls an import.
type ImportOptions struct {
	Strategy     Strategy `json:"strategy,omitempty"`
	ValidateOnly bool     `json:"validate_only,omitempty"`
}

// Report summarizes one import run. Per-record failures land in Errors and
// never abort the remaining records.
type Report struct {
	PackageID    string   `json:"package_id"`
	TenantID     string   `json:"tenant_id"`
	Strategy     Strategy `json:"strategy"`
	ValidateOnly bool     `json:"validate_only"`
	Imported     int      `json:"imported"`
	Skipped      int      `json:"skipped"`
	Overwritten  int      `json:"overwritten"`
	Errors       []string `json:"errors,omitempty"`
}

// Import loads a package into the target tenant. The package structure and
// checksum are verified before any record is written; a corrupted package
// never partially applies.
func (e *Engine) Import(ctx context.Context, tenantID string, pkg *Package, opts ImportOptions) (*Report, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategySkipDuplicates
	}
	switch opts.Strategy {
	case StrategySkipDuplicates, StrategyOverwrite, StrategyMerge:
	default:
		return nil, fault.New(fault.KindValidation, "import", "unknown strategy %q", opts.Strategy)
	}

	if err := validatePackage(tenantID, pkg); err != nil {
		return nil, err
	}

	// Hand-assembled packages may omit the checksum; verification applies
	// only when one is declared.
	if pkg.Checksum != "" {
		sum, err := checksum(pkg.Memories)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "import", err)
		}
		if sum != pkg.Checksum {
			return nil, fault.New(fault.KindIntegrity, "import",
				"checksum mismatch: package declares %s, payload hashes to %s", pkg.Checksum, sum)
		}
	}

	report := &Report{
		PackageID:    pkg.PackageID,
		TenantID:     tenantID,
		Strategy:     opts.Strategy,
		ValidateOnly: opts.ValidateOnly,
	}

	// A validate-only run walks the same duplicate-detection pass and fills
	// the report counts, it just never writes.
	existing, err := e.existingSignatures(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dryRun := opts.ValidateOnly
	e.applyRecords(ctx, tenantID, pkg.Memories.Active, store.NamespaceActive, opts.Strategy, existing, report, dryRun)
	e.applyRecords(ctx, tenantID, pkg.Memories.Archived, store.NamespaceArchive, opts.Strategy, existing, report, dryRun)

	logRec := &store.ImportLogRecord{
		TenantID:     tenantID,
		PackageID:    pkg.PackageID,
		Strategy:     string(opts.Strategy),
		Imported:     report.Imported,
		Skipped:      report.Skipped,
		Overwritten:  report.Overwritten,
		Errors:       report.Errors,
		ValidateOnly: opts.ValidateOnly,
	}
	if err := e.store.AppendImportLog(ctx, logRec); err != nil {
		return nil, err
	}

	e.logger.Info("imported memory package",
		"tenant", tenantID,
		"package", pkg.PackageID,
		"strategy", opts.Strategy,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"overwritten", report.Overwritten,
		"errors", len(report.Errors),
	)

	return report, nil
}

// validatePackage checks the package structure before anything is written.
func validatePackage(tenantID string, pkg *Package) error {
	if strings.TrimSpace(tenantID) == "" {
		return fault.New(fault.KindValidation, "import", "tenant id is required")
	}
	if pkg == nil {
		return fault.New(fault.KindValidation, "import", "package is required")
	}
	if pkg.Version != PackageVersion {
		return fault.New(fault.KindValidation, "import",
			"unsupported package version %q, want %q", pkg.Version, PackageVersion)
	}
	for _, rec := range pkg.Memories.Active {
		if !rec.Type.Valid() {
			return fault.New(fault.KindValidation, "import", "unknown memory type %q", rec.Type)
		}
	}
	for _, rec := range pkg.Memories.Archived {
		if !rec.Type.Valid() {
			return fault.New(fault.KindValidation, "import", "unknown memory type %q", rec.Type)
		}
	}
	return nil
}

// existingRef locates a stored memory by signature.
type existingRef struct {
	id        string
	namespace store.Namespace
}

func (e *Engine) existingSignatures(ctx context.Context, tenantID string) (map[string]existingRef, error) {
	filters := store.ListFilters{IncludeSuperseded: true}

	refs := make(map[string]existingRef)
	active, err := e.store.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	for _, rec := range active {
		sig, err := signature(string(rec.Type), rec.Content)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "import", err)
		}
		refs[sig] = existingRef{id: rec.ID, namespace: store.NamespaceActive}
	}

	archived, err := e.store.ListArchive(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	for _, rec := range archived {
		sig, err := signature(string(rec.Type), rec.Content)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "import", err)
		}
		refs[sig] = existingRef{id: rec.ID, namespace: store.NamespaceArchive}
	}

	return refs, nil
}

// applyRecords imports one namespace's records. A failing record is recorded
// in the report and the rest continue.
func (e *Engine) applyRecords(ctx context.Context, tenantID string, records []store.MemoryRecord, namespace store.Namespace, strategy Strategy, existing map[string]existingRef, report *Report, dryRun bool) {
	for i := range records {
		rec := records[i]
		rec.TenantID = tenantID

		if err := e.applyRecord(ctx, tenantID, &rec, namespace, strategy, existing, report, dryRun); err != nil {
			id := rec.ID
			if id == "" {
				id = fmt.Sprintf("index %d", i)
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s/%s: %v", namespace, id, err))
		}
	}
}

func (e *Engine) applyRecord(ctx context.Context, tenantID string, rec *store.MemoryRecord, namespace store.Namespace, strategy Strategy, existing map[string]existingRef, report *Report, dryRun bool) error {
	sig, err := signature(string(rec.Type), rec.Content)
	if err != nil {
		return err
	}
	ref, isDuplicate := existing[sig]

	insert := func() error {
		if dryRun {
			return nil
		}
		return e.insertRecord(ctx, rec, namespace)
	}
	remove := func(target existingRef) error {
		if dryRun {
			return nil
		}
		return e.removeRecord(ctx, tenantID, target)
	}

	switch strategy {
	case StrategySkipDuplicates:
		if isDuplicate {
			report.Skipped++
			return nil
		}
		if err := insert(); err != nil {
			return err
		}

	case StrategyOverwrite:
		target, found, err := e.overwriteTarget(ctx, tenantID, rec.ID, namespace)
		if err != nil {
			return err
		}
		if !found && isDuplicate {
			target, found = ref, true
		}
		if found {
			if err := remove(target); err != nil {
				return err
			}
			if err := insert(); err != nil {
				return err
			}
			report.Overwritten++
			existing[sig] = existingRef{id: rec.ID, namespace: namespace}
			return nil
		}
		if err := insert(); err != nil {
			return err
		}

	case StrategyMerge:
		rec.ID = uuid.New().String()
		rec.RecallCount = 0
		rec.Tags = appendUnique(rec.Tags, "imported")
		if err := insert(); err != nil {
			return err
		}
	}

	report.Imported++
	existing[sig] = existingRef{id: rec.ID, namespace: namespace}
	return nil
}

// overwriteTarget checks whether the incoming record's original id still
// exists in the target namespace.
func (e *Engine) overwriteTarget(ctx context.Context, tenantID, id string, namespace store.Namespace) (existingRef, bool, error) {
	if id == "" {
		return existingRef{}, false, nil
	}

	var err error
	if namespace == store.NamespaceArchive {
		_, err = e.store.GetArchived(ctx, tenantID, id)
	} else {
		_, err = e.store.Get(ctx, tenantID, id)
	}
	if err != nil {
		if fault.IsKind(err, fault.KindNotFound) {
			return existingRef{}, false, nil
		}
		return existingRef{}, false, err
	}
	return existingRef{id: id, namespace: namespace}, true, nil
}

func (e *Engine) insertRecord(ctx context.Context, rec *store.MemoryRecord, namespace store.Namespace) error {
	// Portable packages strip record ids.
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if namespace == store.NamespaceArchive {
		if rec.ArchivedAt == nil {
			now := e.store.Now()
			rec.ArchivedAt = &now
		}
		return e.store.InsertArchived(ctx, rec)
	}
	return e.store.Insert(ctx, rec)
}

func (e *Engine) removeRecord(ctx context.Context, tenantID string, ref existingRef) error {
	var err error
	if ref.namespace == store.NamespaceArchive {
		_, err = e.store.DeleteArchived(ctx, tenantID, []string{ref.id})
	} else {
		_, err = e.store.DeleteMemories(ctx, tenantID, []string{ref.id})
	}
	return err
}

func appendUnique(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
