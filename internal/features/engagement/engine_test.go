package engagement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/engagement"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/streak"
	"serotonyl.ru/community-leaderboard/internal/lock"
	"serotonyl.ru/community-leaderboard/internal/platform"
	"serotonyl.ru/community-leaderboard/internal/testutil/fakeplatform"
	"serotonyl.ru/community-leaderboard/internal/testutil/memstore"
)

const communityID = "comm_1"

type harness struct {
	store    *memstore.Store
	platform *fakeplatform.Platform
	members  *members.Service
	locker   *lock.Local
	engine   *engagement.Engine
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		platform: fakeplatform.New(),
		locker:   lock.NewLocal(time.Minute),
		now:      time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	h.members = members.NewService(h.store)
	h.engine = engagement.NewEngine(engagement.Deps{
		Source:     h.platform,
		Posts:      h.store,
		Users:      h.store,
		Channels:   h.members,
		Aggregator: leaderboard.NewService(h.store, h.store).WithClock(clock),
		Streaks:    streak.NewService(h.store, h.store).WithClock(clock),
		Runs:       h.store,
		Locker:     h.locker,
	}, 2).WithClock(clock)
	return h
}

func author(id string) platform.Author {
	return platform.Author{ID: id, Username: id, Name: "User " + id}
}

// seed наполняет форум f1 и чат c1.
func (h *harness) seed() {
	h.platform.SetForum("f1",
		platform.ForumPost{
			ID: "p1", Author: author("alice"), Content: "подробный разбор задачи",
			CreatedAt: h.now.Add(-2 * time.Hour), ViewCount: 40, CommentCount: 2,
		},
		platform.ForumPost{
			ID: "p2", Author: author("bob"), Content: "ok",
			CreatedAt: h.now.Add(-26 * time.Hour), ViewCount: 100, CommentCount: 5,
		},
		platform.ForumPost{
			ID: "p3", Author: author("bob"), Content: "закреплённая инструкция",
			CreatedAt: h.now.Add(-3 * time.Hour), ViewCount: 10, IsPinned: true,
		},
	)
	h.platform.SetChat("c1",
		platform.ChatMessage{
			ID: "m1", Author: author("alice"), Content: "кто идёт на встречу?",
			CreatedAt:      h.now.Add(-25 * time.Hour),
			ReactionCounts: map[string]int{"👍": 2, "🔥": 1},
		},
		platform.ChatMessage{ID: "m2", Author: author("bob"), Content: "я", ReplyingToID: "m1", CreatedAt: h.now.Add(-24 * time.Hour)},
		platform.ChatMessage{ID: "m3", Author: author("carol"), Content: "и я", ReplyingToID: "m1", CreatedAt: h.now.Add(-23 * time.Hour)},
		platform.ChatMessage{
			ID: "m4", Author: author("carol"), Content: "опрос",
			CreatedAt:      h.now.Add(-time.Hour),
			PollVoteCounts: map[string]int{"да": 4, "нет": 1},
		},
	)
}

func (h *harness) post(t *testing.T, id string) *activity.Post {
	t.Helper()
	p, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestSync_ComputesPoints(t *testing.T) {
	h := newHarness(t)
	h.seed()

	report, err := h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, engagement.StatusSuccess, report.Status)
	assert.Equal(t, 7, report.Synced)
	assert.Zero(t, report.Skipped)
	require.Len(t, report.Channels, 2)
	assert.Equal(t, 3, report.Channels[0].Fetched)
	assert.Equal(t, 4, report.Channels[1].Fetched)

	// 40 × 0.1 + 2 × 1
	assert.InDelta(t, 6.0, h.post(t, "p1").Points, 1e-9)

	// короткий пост не квалифицируется: очков нет, разбивка нулевая
	p2 := h.post(t, "p2")
	assert.Zero(t, p2.Points)
	assert.Zero(t, p2.Breakdown.Total())
	assert.Equal(t, 5, p2.Replies)

	// 10 × 0.1 + 10 за закреп
	assert.InDelta(t, 11.0, h.post(t, "p3").Points, 1e-9)

	// на m1 ответили два сообщения пачки: 2 × 0.5 + 3 × 0.2
	m1 := h.post(t, "m1")
	assert.Equal(t, 2, m1.Replies)
	assert.Equal(t, 3, m1.Likes)
	assert.InDelta(t, 1.6, m1.Points, 1e-9)
	assert.Equal(t, activity.KindChat, m1.Kind)

	// 5 голосов × 0.2
	m4 := h.post(t, "m4")
	assert.Equal(t, 5, m4.PollVotes)
	assert.InDelta(t, 1.0, m4.Points, 1e-9)

	top, err := h.store.TopEntries(context.Background(), communityID, leaderboard.Weekly, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "bob", top[0].UserID) // 11
	assert.InDelta(t, 11.0, top[0].Points, 1e-9)
	assert.Equal(t, "alice", top[1].UserID) // 6 + 1.6
	assert.InDelta(t, 7.6, top[1].Points, 1e-9)
	assert.Equal(t, "carol", top[2].UserID) // 0 + 1
	for i, e := range top {
		assert.Equal(t, i+1, e.Rank)
	}

	u, err := h.store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "User alice", u.DisplayName)
}

func TestSync_SecondRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.seed()
	ctx := context.Background()

	first, err := h.engine.SyncCommunityEngagement(ctx, communityID, []string{"f1"}, []string{"c1"})
	require.NoError(t, err)
	assert.Positive(t, first.Writes())

	entriesBefore, err := h.store.ListEntries(ctx, communityID, leaderboard.AllTime)
	require.NoError(t, err)
	streakBefore, err := h.store.GetStreak(ctx, "bob", communityID)
	require.NoError(t, err)

	h.store.ResetWrites()
	second, err := h.engine.SyncCommunityEngagement(ctx, communityID, []string{"f1"}, []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, engagement.StatusSuccess, second.Status)
	assert.Zero(t, second.Synced)
	assert.Equal(t, 7, second.Skipped)
	assert.Zero(t, second.Writes())
	assert.Zero(t, h.store.Writes().Total())

	entriesAfter, err := h.store.ListEntries(ctx, communityID, leaderboard.AllTime)
	require.NoError(t, err)
	require.Len(t, entriesAfter, len(entriesBefore))
	for i := range entriesBefore {
		assert.Equal(t, entriesBefore[i].UserID, entriesAfter[i].UserID)
		assert.Equal(t, entriesBefore[i].Points, entriesAfter[i].Points)
		assert.Equal(t, entriesBefore[i].Rank, entriesAfter[i].Rank)
	}

	streakAfter, err := h.store.GetStreak(ctx, "bob", communityID)
	require.NoError(t, err)
	assert.Equal(t, streakBefore.CurrentStreak, streakAfter.CurrentStreak)
	assert.Equal(t, streakBefore.LongestStreak, streakAfter.LongestStreak)
}

func TestSync_ChangedEngagementUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	h.seed()
	ctx := context.Background()

	_, err := h.engine.SyncCommunityEngagement(ctx, communityID, []string{"f1"}, nil)
	require.NoError(t, err)

	h.platform.SetForum("f1",
		platform.ForumPost{
			ID: "p1", Author: author("alice"), Content: "подробный разбор задачи",
			CreatedAt: h.now.Add(-2 * time.Hour), ViewCount: 50, CommentCount: 2,
		},
	)
	h.store.ResetWrites()

	report, err := h.engine.SyncCommunityEngagement(ctx, communityID, []string{"f1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, h.store.Writes().Posts)
	assert.Zero(t, h.store.Writes().Users, "автор уже известен")
	assert.InDelta(t, 7.0, h.post(t, "p1").Points, 1e-9)

	entry, err := h.store.GetEntry(ctx, "alice", communityID, leaderboard.AllTime)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, entry.Points, 1e-9)
}

func TestSync_StreaksFromHistory(t *testing.T) {
	h := newHarness(t)
	h.seed()

	_, err := h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, []string{"c1"})
	require.NoError(t, err)

	// bob: сегодня (p3) и вчера (p2, m2)
	rec, err := h.store.GetStreak(context.Background(), "bob", communityID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CurrentStreak)
	assert.Equal(t, 2, rec.LongestStreak)
}

func TestSync_ChannelFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.platform.FailChannel("f2")

	report, err := h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1", "f2"}, []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, engagement.StatusPartial, report.Status)
	assert.Equal(t, 1, report.FailedChannels())
	assert.True(t, report.Channels[1].Failed())
	assert.Equal(t, "f2", report.Channels[1].ChannelID)
	assert.Equal(t, 7, report.Synced)

	_, err = h.store.GetEntry(context.Background(), "alice", communityID, leaderboard.Weekly)
	assert.NoError(t, err, "рейтинг пересчитан, несмотря на упавший канал")
}

func TestSync_AllChannelsFailed(t *testing.T) {
	h := newHarness(t)
	h.platform.FailChannel("f1")
	h.platform.FailChannel("c1")

	report, err := h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusFailed, report.Status)
	assert.Equal(t, 2, report.FailedChannels())
	assert.Zero(t, h.store.Writes().Total())

	run, err := h.engine.LastRun(context.Background(), communityID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusFailed, run.Status)
	assert.Equal(t, 2, run.FailedChannels)
}

func TestSync_FinalizeFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.store.FailOn = "UpdateRanks"

	report, err := h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusPartial, report.Status)
	assert.NotEmpty(t, report.Errors)
	assert.Equal(t, 3, report.Synced, "записанные посты остаются")
}

func TestSync_ContractViolations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.SyncCommunityEngagement(ctx, " ", []string{"f1"}, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.engine.SyncCommunityEngagement(ctx, communityID, nil, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.engine.SyncCommunity(ctx, communityID)
	assert.ErrorIs(t, err, common.ErrValidation, "у сообщества нет каналов")
}

func TestSync_LockedCommunity(t *testing.T) {
	h := newHarness(t)
	h.seed()

	unlock, err := h.locker.TryLock(context.Background(), lock.CommunityKey(communityID))
	require.NoError(t, err)

	_, err = h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, nil)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Zero(t, h.platform.Fetches())

	unlock()
	_, err = h.engine.SyncCommunityEngagement(context.Background(), communityID, []string{"f1"}, nil)
	assert.NoError(t, err)
}

func TestSyncAll_UsesTrackedChannels(t *testing.T) {
	h := newHarness(t)
	h.seed()
	ctx := context.Background()

	_, err := h.members.SetChannels(ctx, communityID, []members.Channel{
		{ChannelID: "f1", Kind: activity.KindForum},
		{ChannelID: "c1", Kind: activity.KindChat},
	})
	require.NoError(t, err)
	_, err = h.members.SetChannels(ctx, "comm_2", []members.Channel{{ChannelID: "f_missing", Kind: activity.KindForum}})
	require.NoError(t, err)

	reports, err := h.engine.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byCommunity := map[string]*engagement.SyncReport{}
	for _, r := range reports {
		byCommunity[r.CommunityID] = r
	}
	assert.Equal(t, engagement.StatusSuccess, byCommunity[communityID].Status)
	assert.Equal(t, 7, byCommunity[communityID].Synced)
	assert.Equal(t, engagement.StatusSuccess, byCommunity["comm_2"].Status, "пустой канал не ошибка")
}

func TestNeedsRefresh(t *testing.T) {
	h := newHarness(t)
	h.seed()
	ctx := context.Background()

	stale, err := h.engine.NeedsRefresh(ctx, communityID, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, stale, "синхронизаций ещё не было")

	_, err = h.engine.SyncCommunityEngagement(ctx, communityID, []string{"f1"}, nil)
	require.NoError(t, err)

	stale, err = h.engine.NeedsRefresh(ctx, communityID, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, stale)

	h.now = h.now.Add(10 * time.Minute)
	stale, err = h.engine.NeedsRefresh(ctx, communityID, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, stale)
}
