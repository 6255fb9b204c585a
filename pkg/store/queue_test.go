package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/fault"
)

func TestEnqueueAndRestoreDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := s.Now()

	rec := &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction}
	require.NoError(t, s.Insert(ctx, rec))

	queued := []QueuedRecord{{Record: *rec, Origin: NamespaceActive}}
	count, err := s.EnqueueDeletion(ctx, "tenant-a", "del-1", "user request", now.AddDate(0, 0, 30), queued)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Gone from active while queued.
	_, err = s.Get(ctx, "tenant-a", rec.ID)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	entries, err := s.DeletionEntries(ctx, "tenant-a", "del-1", now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user request", entries[0].Reason)

	restored, err := s.RestoreDeletion(ctx, "tenant-a", "del-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := s.Get(ctx, "tenant-a", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	// Queue rows are consumed by recovery.
	queuedCount, err := s.CountQueue(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), queuedCount)
}

func TestRestoreToArchiveOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := s.Now()

	rec := &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction, Importance: 0.1}
	require.NoError(t, s.Insert(ctx, rec))
	_, err := s.ArchiveMemories(ctx, "tenant-a", []string{rec.ID})
	require.NoError(t, err)

	archived, err := s.GetArchived(ctx, "tenant-a", rec.ID)
	require.NoError(t, err)

	queued := []QueuedRecord{{Record: *archived, Origin: NamespaceArchive}}
	_, err = s.EnqueueDeletion(ctx, "tenant-a", "del-arc", "", now.AddDate(0, 0, 30), queued)
	require.NoError(t, err)

	_, err = s.RestoreDeletion(ctx, "tenant-a", "del-arc", now)
	require.NoError(t, err)

	// Restored to the archive, not to active.
	got, err := s.GetArchived(ctx, "tenant-a", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = s.Get(ctx, "tenant-a", rec.ID)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestRestoreAfterRetentionReportsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := s.Now()

	rec := &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction}
	require.NoError(t, s.Insert(ctx, rec))

	queued := []QueuedRecord{{Record: *rec, Origin: NamespaceActive}}
	_, err := s.EnqueueDeletion(ctx, "tenant-a", "del-2", "", now.AddDate(0, 0, 30), queued)
	require.NoError(t, err)

	afterRetention := now.AddDate(0, 0, 31)
	_, err = s.RestoreDeletion(ctx, "tenant-a", "del-2", afterRetention)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestPurgeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := s.Now()

	fresh := &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction}
	stale := &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction}
	require.NoError(t, s.Insert(ctx, fresh))
	require.NoError(t, s.Insert(ctx, stale))

	_, err := s.EnqueueDeletion(ctx, "tenant-a", "del-fresh", "", now.AddDate(0, 0, 30),
		[]QueuedRecord{{Record: *fresh, Origin: NamespaceActive}})
	require.NoError(t, err)
	_, err = s.EnqueueDeletion(ctx, "tenant-a", "del-stale", "", now.Add(-time.Hour),
		[]QueuedRecord{{Record: *stale, Origin: NamespaceActive}})
	require.NoError(t, err)

	purged, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	remaining, err := s.CountQueue(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestEraseTenantLeavesAuditOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &MemoryRecord{TenantID: "tenant-a", Type: TypeInteraction}))
	require.NoError(t, s.Insert(ctx, &MemoryRecord{TenantID: "tenant-a", Type: TypePattern, Importance: 0.1}))
	require.NoError(t, s.UpsertProfile(ctx, &TenantProfile{TenantID: "tenant-a", Niche: "tech"}))
	require.NoError(t, s.Insert(ctx, &MemoryRecord{TenantID: "tenant-b", Type: TypeInteraction}))

	counts, err := s.EraseTenant(ctx, "tenant-a", "gdpr request")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Active)
	assert.Equal(t, int64(1), counts.Profiles)
	assert.Equal(t, int64(3), counts.Total())

	active, err := s.CountActive(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)

	// Other tenants untouched.
	otherActive, err := s.CountActive(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherActive)

	audits, err := s.ErasureAudits(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "gdpr request", audits[0].Reason)
	assert.Equal(t, int64(3), audits[0].Counts.Total())
}
