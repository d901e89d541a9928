package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/features/engagement"
)

type fakeSyncer struct {
	mu       sync.Mutex
	calls    int
	deadline bool
	err      error
}

func (f *fakeSyncer) SyncAll(ctx context.Context) ([]*engagement.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, f.deadline = ctx.Deadline()
	return []*engagement.SyncReport{
		{CommunityID: "a", Status: engagement.StatusSuccess},
		{CommunityID: "b", Status: engagement.StatusPartial},
	}, f.err
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunSync(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("список сообществ недоступен")}
	s := NewScheduler(syncer, "*/15 * * * *", time.Minute)

	s.RunSync(context.Background())
	assert.Equal(t, 1, syncer.Calls())
	assert.True(t, syncer.deadline, "проход ограничен таймаутом")
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeSyncer{}, "каждые 5 минут", 0)
	assert.Error(t, s.Start(context.Background()))
}

func TestStart_RunsOnSchedule(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, "@every 1s", 0)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return syncer.Calls() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
