package forget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/fault"
	"github.com/palace-sh/palace/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, nil), s
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateActive, StateSoftDeleted))
	assert.True(t, CanTransition(StateSoftDeleted, StateRecovered))
	assert.True(t, CanTransition(StateSoftDeleted, StatePurged))
	assert.False(t, CanTransition(StateActive, StatePurged))
	assert.False(t, CanTransition(StatePurged, StateRecovered))
	assert.False(t, CanTransition(StateRecovered, StatePurged))
}

func TestCriteriaValidate(t *testing.T) {
	err := Criteria{}.Validate()
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	err = Criteria{Tags: []string{"old"}}.Validate()
	assert.NoError(t, err)

	err = Criteria{Types: []store.MemoryType{"nonsense"}}.Validate()
	assert.True(t, fault.IsKind(err, fault.KindValidation))
}

func TestSoftDeleteAndRecover(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	rec := &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeInteraction,
		Tags:     []string{"old-campaign"},
	}
	keep := &store.MemoryRecord{
		TenantID: "tenant-a",
		Type:     store.TypeInteraction,
		Tags:     []string{"current"},
	}
	require.NoError(t, s.Insert(ctx, rec))
	require.NoError(t, s.Insert(ctx, keep))

	receipt, err := engine.SoftDelete(ctx, "tenant-a", Criteria{Tags: []string{"old-campaign"}}, "user request")
	require.NoError(t, err)
	assert.Equal(t, StateSoftDeleted, receipt.State)
	assert.Equal(t, 1, receipt.MatchedCount)
	assert.Equal(t, receipt.DeletedAt.AddDate(0, 0, 30), receipt.RetentionUntil)

	// Deleted record is gone from the active namespace, the other stays.
	_, err = s.Get(ctx, "tenant-a", rec.ID)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
	_, err = s.Get(ctx, "tenant-a", keep.ID)
	require.NoError(t, err)

	entries, err := engine.Status(ctx, "tenant-a", receipt.DeletionID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.ID, entries[0].Record.ID)

	restored, err := engine.Recover(ctx, "tenant-a", receipt.DeletionID)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := s.Get(ctx, "tenant-a", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestSoftDeleteByTypeAndAge(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
		TenantID: "tenant-a", Type: store.TypeInteraction, CreatedAt: old,
	}))
	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
		TenantID: "tenant-a", Type: store.TypeProposal, CreatedAt: old,
	}))
	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{
		TenantID: "tenant-a", Type: store.TypeInteraction,
	}))

	cutoff := old.AddDate(0, 1, 0)
	receipt, err := engine.SoftDelete(ctx, "tenant-a", Criteria{
		Types:         []store.MemoryType{store.TypeInteraction},
		CreatedBefore: &cutoff,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.MatchedCount)
}

func TestSoftDeleteCoversArchive(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	rec := &store.MemoryRecord{
		TenantID: "tenant-a", Type: store.TypeInteraction, Tags: []string{"old"},
	}
	require.NoError(t, s.Insert(ctx, rec))
	_, err := s.ArchiveMemories(ctx, "tenant-a", []string{rec.ID})
	require.NoError(t, err)

	receipt, err := engine.SoftDelete(ctx, "tenant-a", Criteria{Tags: []string{"old"}}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.MatchedCount)

	// Recovery puts it back in the archive, not the active namespace.
	_, err = engine.Recover(ctx, "tenant-a", receipt.DeletionID)
	require.NoError(t, err)

	got, err := s.GetArchived(ctx, "tenant-a", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestRecoverAfterRetentionWindow(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	rec := &store.MemoryRecord{TenantID: "tenant-a", Type: store.TypeInteraction, Tags: []string{"old"}}
	require.NoError(t, s.Insert(ctx, rec))

	receipt, err := engine.SoftDelete(ctx, "tenant-a", Criteria{Tags: []string{"old"}}, "")
	require.NoError(t, err)

	// 31 days later the deletion is past retention.
	now = now.AddDate(0, 0, 31)

	_, err = engine.Recover(ctx, "tenant-a", receipt.DeletionID)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	purged, err := engine.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestPermanentDeleteRequiresConfirmation(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	rec := &store.MemoryRecord{TenantID: "tenant-a", Type: store.TypeInteraction, Tags: []string{"old"}}
	require.NoError(t, s.Insert(ctx, rec))

	_, err := engine.PermanentDelete(ctx, "tenant-a", Criteria{Tags: []string{"old"}}, false)
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	deleted, err := engine.PermanentDelete(ctx, "tenant-a", Criteria{Tags: []string{"old"}}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// No queue entry to recover from.
	count, err := s.CountQueue(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestFullErasure(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &store.MemoryRecord{TenantID: "tenant-a", Type: store.TypeInteraction}))
	require.NoError(t, s.UpsertProfile(ctx, &store.TenantProfile{TenantID: "tenant-a", Niche: "tech"}))

	_, err := engine.FullErasure(ctx, "tenant-a", "gdpr", false)
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	report, err := engine.FullErasure(ctx, "tenant-a", "gdpr", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.TotalRemoved)

	audits, err := engine.ErasureAudits(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "gdpr", audits[0].Reason)
}
