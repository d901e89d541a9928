// Package platform: клиент API внешней платформы сообществ:
// форумы, чаты, баланс счёта и переводы.
//
// Сырые ответы API разбираются здесь же и превращаются в нормализованные
// структуры. Остальной код не видит внешних имён полей.
package platform

import (
	"time"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Author: автор поста или сообщения.
type Author struct {
	ID        string
	Username  string
	Name      string
	AvatarURL string
}

// ForumPost: нормализованный пост форума.
type ForumPost struct {
	ID           string
	ChannelID    string
	Author       Author
	Content      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ViewCount    int
	LikeCount    int
	CommentCount int
	PollVotes    int
	IsPinned     bool
}

// ChatMessage: нормализованное сообщение чата.
type ChatMessage struct {
	ID             string
	ChannelID      string
	Author         Author
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ReactionCounts map[string]int // эмодзи → количество
	PollVoteCounts map[string]int // вариант опроса → голоса
	IsPinned       bool
	ReplyingToID   string
}

// TotalReactions суммирует реакции по всем эмодзи.
func (m ChatMessage) TotalReactions() int {
	return sumCounts(m.ReactionCounts)
}

// TotalPollVotes суммирует голоса по всем вариантам опроса.
func (m ChatMessage) TotalPollVotes() int {
	return sumCounts(m.PollVoteCounts)
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += common.ClampNonNegative(n)
	}
	return total
}

// Balance: баланс счёта в центах.
type Balance struct {
	BalanceCents   int64
	AvailableCents int64
	Currency       string
}

// TransferRequest: перевод средств со счёта сообщества пользователю.
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	OriginID       string
	DestinationID  string
	IdempotencyKey string
	Notes          string
}

// --- Сырые ответы API ---

type rawUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture *struct {
		URL string `json:"url"`
	} `json:"profile_picture"`
}

func (u rawUser) normalize() Author {
	a := Author{ID: u.ID, Username: u.Username, Name: u.Name}
	if u.ProfilePicture != nil {
		a.AvatarURL = u.ProfilePicture.URL
	}
	return a
}

type rawForumPost struct {
	ID           string    `json:"id"`
	User         rawUser   `json:"user"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ViewCount    int       `json:"view_count"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	IsPinned     bool      `json:"is_pinned"`
	Poll         *rawPoll  `json:"poll"`
}

type rawPoll struct {
	Options []struct {
		ID    string `json:"id"`
		Text  string `json:"text"`
		Votes int    `json:"vote_count"`
	} `json:"options"`
}

func (p *rawPoll) counts() map[string]int {
	if p == nil || len(p.Options) == 0 {
		return nil
	}
	out := make(map[string]int, len(p.Options))
	for _, o := range p.Options {
		key := o.ID
		if key == "" {
			key = o.Text
		}
		out[key] += o.Votes
	}
	return out
}

func (p rawForumPost) normalize(channelID string) ForumPost {
	content := p.Content
	if p.Title != "" && content == "" {
		content = p.Title
	}
	return ForumPost{
		ID:           p.ID,
		ChannelID:    channelID,
		Author:       p.User.normalize(),
		Content:      content,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
		ViewCount:    common.ClampNonNegative(p.ViewCount),
		LikeCount:    common.ClampNonNegative(p.LikeCount),
		CommentCount: common.ClampNonNegative(p.CommentCount),
		PollVotes:    sumCounts(p.Poll.counts()),
		IsPinned:     p.IsPinned,
	}
}

type rawChatMessage struct {
	ID             string    `json:"id"`
	User           rawUser   `json:"user"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsPinned       bool      `json:"is_pinned"`
	ReplyingToID   string    `json:"replying_to_message_id"`
	ReactionCounts []struct {
		Emoji string `json:"emoji"`
		Count int    `json:"count"`
	} `json:"reaction_counts"`
	Poll *rawPoll `json:"poll"`
}

func (m rawChatMessage) normalize(channelID string) ChatMessage {
	var reactions map[string]int
	if len(m.ReactionCounts) > 0 {
		reactions = make(map[string]int, len(m.ReactionCounts))
		for _, r := range m.ReactionCounts {
			reactions[r.Emoji] += r.Count
		}
	}
	return ChatMessage{
		ID:             m.ID,
		ChannelID:      channelID,
		Author:         m.User.normalize(),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
		ReactionCounts: reactions,
		PollVoteCounts: m.Poll.counts(),
		IsPinned:       m.IsPinned,
		ReplyingToID:   m.ReplyingToID,
	}
}

type rawPage[T any] struct {
	Data     []T `json:"data"`
	PageInfo struct {
		EndCursor   string `json:"end_cursor"`
		HasNextPage bool   `json:"has_next_page"`
	} `json:"page_info"`
}

type rawBalance struct {
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"available_balance"`
	Currency         string  `json:"currency"`
}

type rawTransferRequest struct {
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	OriginID       string  `json:"origin_id"`
	DestinationID  string  `json:"destination_id"`
	IdempotenceKey string  `json:"idempotence_key"`
	Notes          string  `json:"notes,omitempty"`
}

type rawTransfer struct {
	ID string `json:"id"`
}

type rawError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
