// Package streak считает серии дней с активностью участника в сообществе.
// models.go описывает структуру записи стрика.
package streak

import "time"

// Record: стрик пользователя в одном сообществе.
// Пересчитывается целиком из истории активности на каждой синхронизации.
type Record struct {
	UserID           string     `json:"userId"`
	CommunityID      string     `json:"communityId"`
	CurrentStreak    int        `json:"currentStreak"`    // Текущая серия (дней подряд до сегодня/вчера)
	LongestStreak    int        `json:"longestStreak"`    // Лучшая серия за всю историю
	LastActivityDate *time.Time `json:"lastActivityDate"` // Последний день с активностью (UTC)
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Stats: результат расчёта по истории активности.
type Stats struct {
	Current      int
	Longest      int
	LastActivity *time.Time
}

// Equal сравнивает результат расчёта с сохранённой записью.
func (s Stats) Equal(r *Record) bool {
	if r == nil {
		return false
	}
	if s.Current != r.CurrentStreak || s.Longest != r.LongestStreak {
		return false
	}
	if s.LastActivity == nil || r.LastActivityDate == nil {
		return s.LastActivity == nil && r.LastActivityDate == nil
	}
	return s.LastActivity.Equal(*r.LastActivityDate)
}
