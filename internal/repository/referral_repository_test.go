package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralRepo_StatsStartAtZero(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewReferralRepo(store)

	stats, err := repo.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAffiliates)
	assert.Zero(t, stats.TotalReferrals)

	events, err := repo.ForCode(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReferralRepo_RecordN(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewReferralRepo(store)
	ctx := context.Background()

	const n = 7
	ids := map[string]bool{}
	for i := 0; i < n; i++ {
		ev, err := repo.Record(ctx, "r-abc123", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.Equal(t, "r-abc123", ev.ReferrerCode)
		assert.False(t, ev.CreatedAt.IsZero())
		ids[ev.ID] = true
		assert.True(t, mr.Exists("referral:"+ev.ID))
	}
	assert.Len(t, ids, n)

	events, err := repo.ForCode(ctx, "r-abc123")
	require.NoError(t, err)
	assert.Len(t, events, n)

	stats, err := repo.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.TotalReferrals)
	assert.Zero(t, stats.TotalAffiliates)

	other, err := repo.ForCode(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReferralRepo_ForCodeDropsMissingEvents(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewReferralRepo(store)
	ctx := context.Background()

	ev, err := repo.Record(ctx, "r-abc123", "user-1")
	require.NoError(t, err)
	_, err = mr.SAdd("referrals:byRef:r-abc123", "half-written")
	require.NoError(t, err)

	events, err := repo.ForCode(ctx, "r-abc123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, "user-1", events[0].ReferredUserID)
}

func TestReferralRepo_IncrementAffiliateCount(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewReferralRepo(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementAffiliateCount(ctx))
	}
	_, err := repo.Record(ctx, "r-abc123", "user-1")
	require.NoError(t, err)

	stats, err := repo.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalAffiliates)
	assert.Equal(t, int64(1), stats.TotalReferrals)
}
