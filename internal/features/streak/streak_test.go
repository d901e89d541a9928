package streak

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/common"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.AddDate(0, 0, -n)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		times   []time.Time
		current int
		longest int
	}{
		{"empty", nil, 0, 0},
		{"three consecutive ending today", []time.Time{daysAgo(0), daysAgo(1), daysAgo(2)}, 3, 3},
		{"ending yesterday still counts", []time.Time{daysAgo(1), daysAgo(2)}, 2, 2},
		{"broken two days ago", []time.Time{daysAgo(2), daysAgo(3), daysAgo(4)}, 0, 3},
		{"gap keeps prior longest", []time.Time{
			daysAgo(0),
			daysAgo(3), daysAgo(4), daysAgo(5), daysAgo(6), daysAgo(7),
		}, 1, 5},
		{"duplicates in one day collapse", []time.Time{
			daysAgo(0), daysAgo(0).Add(-time.Hour), daysAgo(0).Add(-2 * time.Hour),
		}, 1, 1},
		{"unordered input", []time.Time{daysAgo(2), daysAgo(0), daysAgo(1)}, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.times, now)
			assert.Equal(t, tt.current, got.Current)
			assert.Equal(t, tt.longest, got.Longest)
			assert.GreaterOrEqual(t, got.Longest, got.Current)
		})
	}
}

func TestCalculate_UTCDayBoundary(t *testing.T) {
	// 23:30 и 00:30 по UTC: разные дни
	late := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	early := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)
	got := Calculate([]time.Time{late, early}, now)
	assert.Equal(t, 2, got.Current)

	// локальная зона не влияет на день
	msk := time.FixedZone("MSK", 3*60*60)
	got = Calculate([]time.Time{time.Date(2026, 3, 10, 1, 0, 0, 0, msk)}, now)
	require.NotNil(t, got.LastActivity)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), *got.LastActivity)
	assert.Equal(t, 1, got.Current)
}

type fakeStore struct {
	records map[string]*Record
	writes  int
}

func (f *fakeStore) GetStreak(_ context.Context, userID, communityID string) (*Record, error) {
	r, ok := f.records[userID+"/"+communityID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpsertStreak(_ context.Context, r *Record) error {
	f.writes++
	cp := *r
	f.records[r.UserID+"/"+r.CommunityID] = &cp
	return nil
}

type fakeHistory map[string][]time.Time

func (f fakeHistory) ListActivityTimes(_ context.Context, userID, _ string) ([]time.Time, error) {
	return f[userID], nil
}

func TestService_RecomputeWritesOnlyOnChange(t *testing.T) {
	store := &fakeStore{records: map[string]*Record{}}
	history := fakeHistory{"u1": {daysAgo(0), daysAgo(1)}}
	svc := NewService(store, history).WithClock(func() time.Time { return now })
	ctx := context.Background()

	changed, err := svc.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, store.writes)

	changed, err = svc.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, store.writes)

	rec, err := svc.GetStreak(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CurrentStreak)

	// через три дня без активности серия обнуляется, рекорд остаётся
	svc.WithClock(func() time.Time { return now.AddDate(0, 0, 3) })
	changed, err = svc.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, changed)
	rec, _ = svc.GetStreak(ctx, "u1", "c1")
	assert.Equal(t, 0, rec.CurrentStreak)
	assert.Equal(t, 2, rec.LongestStreak)
}

func TestService_GetStreakMissing(t *testing.T) {
	svc := NewService(&fakeStore{records: map[string]*Record{}}, fakeHistory{})
	rec, err := svc.GetStreak(context.Background(), "nobody", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CurrentStreak)
}
