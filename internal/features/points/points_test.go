package points

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForumPostPoints(t *testing.T) {
	tests := []struct {
		name string
		in   ForumMetrics
		want float64
	}{
		{"views only", ForumMetrics{Views: 50}, 5},
		{"views and replies", ForumMetrics{Views: 123, Replies: 4}, 16.3},
		{"pinned", ForumMetrics{Views: 120, Replies: 4, Pinned: true}, 26},
		{"likes carry no weight", ForumMetrics{Views: 10, Likes: 1000}, 1},
		{"negative clamped", ForumMetrics{Views: -10, Replies: -3, Likes: -1}, 0},
		{"zero", ForumMetrics{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, breakdown := ForumPostPoints(tt.in)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.InDelta(t, got, breakdown.Total(), 1e-9)
		})
	}
}

func TestForumPostPoints_Breakdown(t *testing.T) {
	_, b := ForumPostPoints(ForumMetrics{Views: 30, Replies: 2, Likes: 7, Pinned: true})
	assert.InDelta(t, 3.0, b[KeyViews], 1e-9)
	assert.InDelta(t, 2.0, b[KeyReplies], 1e-9)
	assert.InDelta(t, 0.0, b[KeyLikes], 1e-9)
	assert.InDelta(t, ForumPinnedBonus, b[KeyPinned], 1e-9)
}

func TestChatMessagePoints(t *testing.T) {
	tests := []struct {
		name string
		in   ChatMetrics
		want float64
	}{
		{"replies", ChatMetrics{Replies: 3}, 1.5},
		{"reactions and votes", ChatMetrics{Reactions: 7, PollVotes: 3}, 2},
		{"pinned", ChatMetrics{Replies: 1, Pinned: true}, 5.5},
		{"negative clamped", ChatMetrics{Replies: -1, Reactions: -5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, b := ChatMessagePoints(tt.in)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Contains(t, b, KeyReactions)
			assert.Contains(t, b, KeyPollVotes)
		})
	}
}

func TestPointsAreNonNegativeAndRounded(t *testing.T) {
	for views := 0; views < 200; views += 7 {
		for replies := 0; replies < 20; replies += 3 {
			got, _ := ForumPostPoints(ForumMetrics{Views: views, Replies: replies})
			want := float64(views)*ForumViewWeight + float64(replies)*ForumReplyWeight
			assert.InDelta(t, want, got, 0.05+1e-9)
			assert.InDelta(t, got*10, float64(int64(got*10+0.5)), 1e-6)

			chat, _ := ChatMessagePoints(ChatMetrics{Replies: replies, Reactions: views})
			assert.GreaterOrEqual(t, chat, 0.0)
		}
	}
}

func TestZeroBreakdown(t *testing.T) {
	_, b := ForumPostPoints(ForumMetrics{Views: 100, Replies: 2})
	z := ZeroBreakdown(b)
	assert.Len(t, z, len(b))
	assert.Equal(t, 0.0, z.Total())
}

func TestQualifiesForPoints(t *testing.T) {
	assert.False(t, QualifiesForPoints("привет", 100))
	assert.False(t, QualifiesForPoints("  короткий  ", 100))
	assert.False(t, QualifiesForPoints("подробный разбор задачи", 4))
	assert.True(t, QualifiesForPoints("подробный разбор задачи", 5))
	assert.Equal(t, 6, ContentLength(" привет "))
}

func TestLevelForPoints_Thresholds(t *testing.T) {
	for _, l := range DefaultLevels {
		assert.Equal(t, l.Level, LevelForPoints(l.Threshold), "threshold %v", l.Threshold)
	}
	assert.Equal(t, 1, LevelForPoints(-5))
	assert.Equal(t, 1, LevelForPoints(4.9))
	assert.Equal(t, 9, LevelForPoints(99999.9))
	assert.Equal(t, 10, LevelForPoints(1e9))
}

func TestLevelForPoints_Monotonic(t *testing.T) {
	prev := LevelForPoints(0)
	for p := 0.0; p <= 120000; p += 13.7 {
		lvl := LevelForPoints(p)
		require.GreaterOrEqual(t, lvl, prev)
		require.GreaterOrEqual(t, lvl, 1)
		require.LessOrEqual(t, lvl, MaxLevel)
		prev = lvl
	}
}

func TestNextLevelInfo(t *testing.T) {
	info := NextLevelInfo(10)
	assert.Equal(t, 2, info.Current.Level)
	require.NotNil(t, info.Next)
	assert.Equal(t, 3, info.Next.Level)
	assert.InDelta(t, 10.0, info.PointsRemaining, 1e-9)
	assert.InDelta(t, 33.3, info.Progress, 1e-9)
	assert.False(t, info.IsMaxLevel)

	info = NextLevelInfo(0)
	assert.Equal(t, 1, info.Current.Level)
	assert.Equal(t, 0.0, info.Progress)

	info = NextLevelInfo(150000)
	assert.True(t, info.IsMaxLevel)
	assert.Equal(t, 100.0, info.Progress)
	assert.Nil(t, info.Next)
}

func TestTable_WithTitles(t *testing.T) {
	base := NewTable()
	custom := base.WithTitles(map[int]string{1: "Новичок", 10: "Легенда", 42: "нет такого", 3: ""})

	levels := custom.Levels()
	assert.Equal(t, "Новичок", levels[0].Title)
	assert.Equal(t, "Легенда", levels[9].Title)
	assert.Equal(t, DefaultLevels[2].Title, levels[2].Title)

	// исходная таблица не меняется
	assert.Equal(t, DefaultLevels[0].Title, base.Levels()[0].Title)
	assert.Equal(t, "Легенда", custom.NextLevelInfo(100000).Current.Title)
}
