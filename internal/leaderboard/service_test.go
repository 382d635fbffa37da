package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/score"
)

func setup(t *testing.T) (*Service, *database.ProfileService) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	profiles := database.NewProfileService(repo, score.NewTracker(time.UTC), "secret")
	svc := NewService(repo, time.Minute)
	t.Cleanup(svc.Close)
	return svc, profiles
}

func seed(t *testing.T, profiles *database.ProfileService, email string, commits int) string {
	t.Helper()
	ctx := context.Background()

	p, _, err := profiles.Bootstrap(ctx, email, email, "")
	require.NoError(t, err)
	_, err = profiles.PatchBreakdown(ctx, p.ID, score.BreakdownPatch{Commits: &commits})
	require.NoError(t, err)
	return p.ID
}

func TestGetLeaderboardAssignsTiers(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		seed(t, profiles, string(rune('a'+i))+"@x.io", i+1)
	}

	resp, err := svc.GetLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, resp.Entries, 20)
	assert.Equal(t, 20, resp.TotalUsers)

	top := resp.Entries[0]
	assert.Equal(t, 1, top.Position)
	assert.Equal(t, 20, top.Total)
	assert.Equal(t, score.TierDiamond, top.Tier)
	assert.Equal(t, score.TierGold, resp.Entries[2].Tier)
	assert.Equal(t, score.TierBronze, resp.Entries[19].Tier)
}

func TestLeaderboardIsCachedUntilInvalidated(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	id := seed(t, profiles, "solo@x.io", 5)

	first, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	seed(t, profiles, "late@x.io", 10)

	cached, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, cached.Entries, 1, "served from cache")

	svc.Invalidate()

	fresh, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fresh.Entries, 2)
	assert.NotEqual(t, id, fresh.Entries[0].ProfileID)
}

func TestGetRank(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	low := seed(t, profiles, "low@x.io", 1)
	seed(t, profiles, "high@x.io", 20)

	rank, err := svc.GetRank(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, 2, rank.Position)
	assert.Equal(t, 2, rank.TotalUsers)
	assert.Equal(t, 100.0, rank.Percentile)
	assert.Equal(t, score.TierBronze, rank.Tier)

	_, err = svc.GetRank(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRankComputedBeforeInvalidateIsNotCached(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	low := seed(t, profiles, "low@x.io", 1)
	seed(t, profiles, "high@x.io", 20)

	gen := svc.generation()
	stale := score.NewGlobalRank(1, 2)
	svc.Invalidate()
	svc.storeRank(low, stale, gen)
	assert.Equal(t, 0, svc.ranks.Len())

	rank, err := svc.GetRank(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, 2, rank.Position)
	assert.Equal(t, 1, svc.ranks.Len())
}

func TestTiesSharePosition(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	seed(t, profiles, "a@x.io", 7)
	seed(t, profiles, "b@x.io", 7)

	resp, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 1, resp.Entries[0].Position)
	assert.Equal(t, 1, resp.Entries[1].Position)
}

func TestAutoRefreshStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(database.NewRepository(db), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	svc.StartAutoRefresh(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	svc.Close()
	time.Sleep(20 * time.Millisecond)
}

func TestLeaderboardSummary(t *testing.T) {
	svc, profiles := setup(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		seed(t, profiles, string(rune('a'+i))+"@x.io", i+1)
	}

	resp, err := svc.GetLeaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, 5.5, resp.Summary.MedianScore)
	assert.Equal(t, 9.0, resp.Summary.P90Score)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, summarize(nil))
	assert.Equal(t, Summary{MedianScore: 42, P90Score: 42}, summarize([]int{42}))
}
