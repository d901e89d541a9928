package leaderboard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/testutil/memstore"
)

var now = time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)

func addPost(t *testing.T, store *memstore.Store, id, author string, pts float64, age time.Duration) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &activity.Post{
		ID:          id,
		CommunityID: "c1",
		AuthorID:    author,
		Kind:        activity.KindForum,
		Points:      pts,
		CreatedAt:   now.Add(-age),
	}))
}

func newService(store *memstore.Store) *leaderboard.Service {
	return leaderboard.NewService(store, store).WithClock(func() time.Time { return now })
}

func TestRefreshUserTotals_Windows(t *testing.T) {
	store := memstore.New()
	day := 24 * time.Hour
	addPost(t, store, "p1", "alice", 10.5, 1*day)
	addPost(t, store, "p2", "alice", 4.2, 10*day)
	addPost(t, store, "p3", "alice", 100, 60*day)

	svc := newService(store)
	ctx := context.Background()

	written, err := svc.RefreshUserTotals(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	standing, err := svc.UserStanding(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 10.5, standing[leaderboard.Weekly].Points, 1e-9)
	assert.InDelta(t, 14.7, standing[leaderboard.Monthly].Points, 1e-9)
	assert.InDelta(t, 114.7, standing[leaderboard.AllTime].Points, 1e-9)
	assert.Equal(t, "rolling_7d", standing[leaderboard.Weekly].PeriodStart)

	// повторный пересчёт ничего не пишет
	written, err = svc.RefreshUserTotals(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestRecalculateRanks_ContiguousAndTieBreak(t *testing.T) {
	store := memstore.New()
	addPost(t, store, "p1", "carol", 50, time.Hour)
	addPost(t, store, "p2", "bob", 50, time.Hour)
	addPost(t, store, "p3", "alice", 20, time.Hour)
	addPost(t, store, "p4", "dave", 70, time.Hour)

	svc := newService(store)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		_, err := svc.RefreshUserTotals(ctx, u, "c1")
		require.NoError(t, err)
	}

	written, err := svc.RecalculateRanks(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 12, written, "4 участника × 3 периода")

	for _, period := range leaderboard.AllPeriods {
		top, err := svc.Top(ctx, "c1", period, 10)
		require.NoError(t, err)
		require.Len(t, top, 4)

		var order []string
		for i, e := range top {
			assert.Equal(t, i+1, e.Rank)
			if i > 0 {
				assert.LessOrEqual(t, e.Points, top[i-1].Points)
			}
			order = append(order, e.UserID)
		}
		assert.Equal(t, []string{"dave", "bob", "carol", "alice"}, order)
	}

	// места не изменились: записей нет
	written, err = svc.RecalculateRanks(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestRecalculateRanks_OnlyChangedRanksWritten(t *testing.T) {
	store := memstore.New()
	addPost(t, store, "p1", "alice", 30, time.Hour)
	addPost(t, store, "p2", "bob", 20, time.Hour)
	addPost(t, store, "p3", "carol", 10, time.Hour)

	svc := newService(store)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := svc.RefreshUserTotals(ctx, u, "c1")
		require.NoError(t, err)
	}
	_, err := svc.RecalculateRanks(ctx, "c1")
	require.NoError(t, err)

	// carol обгоняет bob
	addPost(t, store, "p4", "carol", 15, time.Hour)
	_, err = svc.RefreshUserTotals(ctx, "carol", "c1")
	require.NoError(t, err)

	written, err := svc.RecalculateRanks(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 6, written, "bob и carol меняются местами в трёх периодах")

	standing, err := svc.UserStanding(ctx, "carol", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, standing[leaderboard.Weekly].Rank)
}

func TestTop(t *testing.T) {
	store := memstore.New()
	svc := newService(store)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		store.SetEntry(&leaderboard.Entry{
			UserID: fmt.Sprintf("u%02d", i), CommunityID: "c1", PeriodType: leaderboard.Weekly, Points: float64(i),
		})
	}

	top, err := svc.Top(ctx, "c1", leaderboard.Weekly, 0)
	require.NoError(t, err)
	require.Len(t, top, 10)
	assert.Equal(t, "u15", top[0].UserID)

	top, err = svc.Top(ctx, "c1", leaderboard.Weekly, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)

	_, err = svc.Top(ctx, "c1", "yearly", 10)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestParsePeriod(t *testing.T) {
	p, err := leaderboard.ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Weekly, p)

	p, err = leaderboard.ParsePeriod("all_time")
	require.NoError(t, err)
	assert.Equal(t, leaderboard.AllTime, p)

	_, err = leaderboard.ParsePeriod("daily")
	assert.Error(t, err)
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, now.Add(-7*24*time.Hour), *leaderboard.Weekly.WindowStart(now))
	assert.Equal(t, now.Add(-30*24*time.Hour), *leaderboard.Monthly.WindowStart(now))
	assert.Nil(t, leaderboard.AllTime.WindowStart(now))
}
