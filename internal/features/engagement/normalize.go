package engagement

import (
	"time"

	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/points"
	"serotonyl.ru/community-leaderboard/internal/platform"
)

// forumPost превращает пост форума в запись активности с очками.
// Короткие посты и посты с малым числом просмотров сохраняются с нулём очков.
func forumPost(communityID string, p platform.ForumPost) *activity.Post {
	pts, breakdown := points.ForumPostPoints(points.ForumMetrics{
		Views:         p.ViewCount,
		Replies:       p.CommentCount,
		Likes:         p.LikeCount,
		Pinned:        p.IsPinned,
		ContentLength: points.ContentLength(p.Content),
	})
	if !points.QualifiesForPoints(p.Content, p.ViewCount) {
		pts, breakdown = 0, points.ZeroBreakdown(breakdown)
	}

	return &activity.Post{
		ID:          p.ID,
		CommunityID: communityID,
		ChannelID:   p.ChannelID,
		AuthorID:    p.Author.ID,
		Kind:        activity.KindForum,
		Content:     p.Content,
		Views:       p.ViewCount,
		Likes:       p.LikeCount,
		Replies:     p.CommentCount,
		PollVotes:   p.PollVotes,
		Pinned:      p.IsPinned,
		Points:      pts,
		Breakdown:   breakdown,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   orCreated(p.UpdatedAt, p.CreatedAt),
	}
}

// chatPosts превращает пачку сообщений одного канала в записи активности.
// Число ответов на сообщение считается по этой же пачке.
func chatPosts(communityID string, msgs []platform.ChatMessage) []*activity.Post {
	replies := countReplies(msgs)

	out := make([]*activity.Post, 0, len(msgs))
	for _, m := range msgs {
		metrics := points.ChatMetrics{
			Replies:   replies[m.ID],
			Reactions: m.TotalReactions(),
			PollVotes: m.TotalPollVotes(),
			Pinned:    m.IsPinned,
		}
		pts, breakdown := points.ChatMessagePoints(metrics)

		out = append(out, &activity.Post{
			ID:          m.ID,
			CommunityID: communityID,
			ChannelID:   m.ChannelID,
			AuthorID:    m.Author.ID,
			Kind:        activity.KindChat,
			Content:     m.Content,
			Likes:       metrics.Reactions,
			Replies:     metrics.Replies,
			PollVotes:   metrics.PollVotes,
			Pinned:      m.IsPinned,
			Points:      pts,
			Breakdown:   breakdown,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   orCreated(m.UpdatedAt, m.CreatedAt),
		})
	}
	return out
}

// countReplies считает, сколько других сообщений пачки отвечают на каждое сообщение.
func countReplies(msgs []platform.ChatMessage) map[string]int {
	out := make(map[string]int)
	for _, m := range msgs {
		if m.ReplyingToID == "" || m.ReplyingToID == m.ID {
			continue
		}
		out[m.ReplyingToID]++
	}
	return out
}

func authorUser(a platform.Author) *members.User {
	return &members.User{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.Name,
		AvatarURL:   a.AvatarURL,
	}
}

func orCreated(updated, created time.Time) time.Time {
	if updated.IsZero() {
		return created
	}
	return updated
}
