// Package activity хранит нормализованные посты форума и сообщения чата,
// по которым начисляются очки.
package activity

import (
	"time"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/points"
)

// Kind: тип источника активности.
type Kind string

const (
	KindForum Kind = "forum"
	KindChat  Kind = "chat"
)

// Valid проверяет, что тип источника известен.
func (k Kind) Valid() bool {
	return k == KindForum || k == KindChat
}

// Post: одна единица активности (пост форума или сообщение чата).
// Ключ: внешний ID из платформы. Очки и разбивка зависят только от счётчиков.
type Post struct {
	ID          string           `json:"id"`
	CommunityID string           `json:"communityId"`
	ChannelID   string           `json:"channelId"`
	AuthorID    string           `json:"authorId"`
	Kind        Kind             `json:"kind"`
	Content     string           `json:"content"`
	Views       int              `json:"views"`
	Likes       int              `json:"likes"` // Для чата: сумма реакций
	Replies     int              `json:"replies"`
	PollVotes   int              `json:"pollVotes"`
	Pinned      bool             `json:"pinned"`
	Points      float64          `json:"points"`
	Breakdown   points.Breakdown `json:"breakdown"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	SyncedAt    time.Time        `json:"syncedAt"`
}

// EngagementChanged сравнивает значимые поля: очки, счётчики и закреп.
// Текст и метки времени не учитываются.
func (p *Post) EngagementChanged(other *Post) bool {
	return common.Round1(p.Points) != common.Round1(other.Points) ||
		p.Views != other.Views ||
		p.Likes != other.Likes ||
		p.Replies != other.Replies ||
		p.PollVotes != other.PollVotes ||
		p.Pinned != other.Pinned
}
