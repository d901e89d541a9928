// Package members управляет пользователями, сообществами и их каналами.
// models.go описывает структуры данных для таблиц users, communities,
// community_members, tracked_channels и level_names.
package members

import (
	"time"

	"serotonyl.ru/community-leaderboard/internal/features/activity"
)

// User: автор активности. ID это внешний ID пользователя платформы.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`    // @username (может быть пустым)
	DisplayName string    `json:"displayName"` // Отображаемое имя
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Name возвращает имя для отображения.
// Возвращает отображаемое имя, если оно есть, иначе @username или ID.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.ID
}

// Community: сообщество на платформе.
// LedgerAccountID: счёт, с которого выплачиваются призовые фонды.
type Community struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	LedgerAccountID string    `json:"ledgerAccountId"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Channel: отслеживаемый канал сообщества (форум или чат).
type Channel struct {
	CommunityID string        `json:"communityId"`
	ChannelID   string        `json:"channelId"`
	Kind        activity.Kind `json:"kind"`
}

// ChannelSet: каналы сообщества, разделённые по типу.
type ChannelSet struct {
	Forum []string
	Chat  []string
}

// Empty: нет ни одного канала.
func (c ChannelSet) Empty() bool {
	return len(c.Forum) == 0 && len(c.Chat) == 0
}

// SplitChannels раскладывает каналы по типу, сохраняя порядок.
func SplitChannels(channels []Channel) ChannelSet {
	var set ChannelSet
	for _, ch := range channels {
		switch ch.Kind {
		case activity.KindForum:
			set.Forum = append(set.Forum, ch.ChannelID)
		case activity.KindChat:
			set.Chat = append(set.Chat, ch.ChannelID)
		}
	}
	return set
}
