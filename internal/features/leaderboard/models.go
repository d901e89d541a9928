// Package leaderboard пересчитывает суммы очков участников за периоды
// и расставляет места в рейтинге сообщества.
package leaderboard

import (
	"fmt"
	"time"
)

// PeriodType: период рейтинга.
type PeriodType string

const (
	Weekly  PeriodType = "weekly"   // Последние 7 дней
	Monthly PeriodType = "monthly"  // Последние 30 дней
	AllTime PeriodType = "all_time" // Без нижней границы
)

// AllPeriods: все периоды в порядке пересчёта.
var AllPeriods = []PeriodType{Weekly, Monthly, AllTime}

// ParsePeriod разбирает строку периода. Пустая строка: weekly.
func ParsePeriod(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case "":
		return Weekly, nil
	case Weekly, Monthly, AllTime:
		return PeriodType(s), nil
	}
	return "", fmt.Errorf("неизвестный период %q", s)
}

// Valid проверяет, что период известен.
func (p PeriodType) Valid() bool {
	return p == Weekly || p == Monthly || p == AllTime
}

// WindowStart возвращает нижнюю границу окна для момента now.
// Для all_time: nil.
func (p PeriodType) WindowStart(now time.Time) *time.Time {
	var since time.Time
	switch p {
	case Weekly:
		since = now.UTC().Add(-7 * 24 * time.Hour)
	case Monthly:
		since = now.UTC().Add(-30 * 24 * time.Hour)
	default:
		return nil
	}
	return &since
}

// StartLabel: фиксированная метка начала периода, часть ключа записи.
// Окна скользящие, поэтому у каждого периода одна запись на пользователя.
func (p PeriodType) StartLabel() string {
	switch p {
	case Weekly:
		return "rolling_7d"
	case Monthly:
		return "rolling_30d"
	default:
		return "all_time"
	}
}

// Entry: строка рейтинга: сумма очков пользователя за период и его место.
type Entry struct {
	UserID      string     `json:"userId"`
	CommunityID string     `json:"communityId"`
	PeriodType  PeriodType `json:"periodType"`
	PeriodStart string     `json:"periodStart"`
	Points      float64    `json:"points"`
	Rank        int        `json:"rank"` // 0: место ещё не рассчитано
	UpdatedAt   time.Time  `json:"updatedAt"`
}
