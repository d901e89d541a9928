// Package points считает очки за активность и уровни участников.
// calculator.go: чистая арифметика над счётчиками вовлечённости,
// без обращений к БД и внешним API.
package points

import "serotonyl.ru/community-leaderboard/internal/common"

// Веса метрик для постов форума.
// Лайки хранятся для отслеживания изменений, но очков не дают.
const (
	ForumViewWeight    = 0.1
	ForumReplyWeight   = 1.0
	ForumLikeWeight    = 0.0
	ForumPinnedBonus   = 10.0
	ChatReplyWeight    = 0.5
	ChatReactionWeight = 0.2
	ChatPollVoteWeight = 0.2
	ChatPinnedBonus    = 5.0
)

// Ключи разбивки очков (хранятся в JSONB рядом с итогом).
const (
	KeyViews     = "views"
	KeyReplies   = "replies"
	KeyLikes     = "likes"
	KeyReactions = "reactions"
	KeyPollVotes = "poll_votes"
	KeyPinned    = "pinned"
)

// Breakdown: вклад каждой метрики в итоговые очки.
type Breakdown map[string]float64

// Total возвращает сумму вкладов, округлённую до одного знака.
func (b Breakdown) Total() float64 {
	var sum float64
	for _, v := range b {
		sum += v
	}
	return common.Round1(sum)
}

// ForumMetrics: сырые счётчики поста форума.
type ForumMetrics struct {
	Views         int
	Replies       int
	Likes         int
	Pinned        bool
	ContentLength int
}

// ChatMetrics: сырые счётчики сообщения чата.
type ChatMetrics struct {
	Replies   int
	Reactions int
	PollVotes int
	Pinned    bool
}

// ForumPostPoints считает очки поста форума.
//
// Формула: 0.1 × просмотры + 1 × ответы + 10 за закреп.
// Отрицательные счётчики приводятся к нулю.
// Порог квалификации (длина текста, минимум просмотров) проверяет вызывающий код
// через QualifiesForPoints, сама функция только считает.
//
// Пример:
//
//	ForumPostPoints(ForumMetrics{Views: 120, Replies: 4, Pinned: true}) → 26
func ForumPostPoints(m ForumMetrics) (float64, Breakdown) {
	views := common.ClampNonNegative(m.Views)
	replies := common.ClampNonNegative(m.Replies)
	likes := common.ClampNonNegative(m.Likes)

	b := Breakdown{
		KeyViews:   common.Round1(float64(views) * ForumViewWeight),
		KeyReplies: common.Round1(float64(replies) * ForumReplyWeight),
		KeyLikes:   common.Round1(float64(likes) * ForumLikeWeight),
		KeyPinned:  0,
	}
	if m.Pinned {
		b[KeyPinned] = ForumPinnedBonus
	}
	return b.Total(), b
}

// ChatMessagePoints считает очки сообщения чата.
//
// Формула: 0.5 × ответы + 0.2 × реакции + 0.2 × голоса в опросе + 5 за закреп.
func ChatMessagePoints(m ChatMetrics) (float64, Breakdown) {
	replies := common.ClampNonNegative(m.Replies)
	reactions := common.ClampNonNegative(m.Reactions)
	votes := common.ClampNonNegative(m.PollVotes)

	b := Breakdown{
		KeyReplies:   common.Round1(float64(replies) * ChatReplyWeight),
		KeyReactions: common.Round1(float64(reactions) * ChatReactionWeight),
		KeyPollVotes: common.Round1(float64(votes) * ChatPollVoteWeight),
		KeyPinned:    0,
	}
	if m.Pinned {
		b[KeyPinned] = ChatPinnedBonus
	}
	return b.Total(), b
}

// ZeroBreakdown: разбивка для неквалифицированного поста: все вклады нулевые.
func ZeroBreakdown(b Breakdown) Breakdown {
	out := make(Breakdown, len(b))
	for k := range b {
		out[k] = 0
	}
	return out
}
