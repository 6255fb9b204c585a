package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palace-sh/palace/pkg/fault"
)

func TestUpsertProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	profile := &TenantProfile{
		TenantID:    "tenant-a",
		Platforms:   []string{"youtube", "tiktok"},
		Niche:       "tech reviews",
		Approvals:   8,
		Submissions: 10,
		Velocity:    2.5,
	}
	require.NoError(t, s.UpsertProfile(ctx, profile))

	got, err := s.GetProfile(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube", "tiktok"}, got.Platforms)
	assert.Equal(t, "tech reviews", got.Niche)

	// Second upsert replaces the row.
	profile.Niche = "gaming"
	require.NoError(t, s.UpsertProfile(ctx, profile))

	got, err = s.GetProfile(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "gaming", got.Niche)

	profiles, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestGetProfileNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProfile(context.Background(), "nobody")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestApprovalRateNeedsSamples(t *testing.T) {
	p := TenantProfile{Approvals: 2, Submissions: 2}
	_, ok := p.ApprovalRate()
	assert.False(t, ok)

	p = TenantProfile{Approvals: 3, Submissions: 4}
	rate, ok := p.ApprovalRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.75, rate, 0.0001)
}
