// Package engagement синхронизирует активность сообщества с платформой:
// загружает посты форумов и сообщения чатов, начисляет очки, сохраняет
// изменившиеся записи и пересчитывает рейтинг и стрики.
//
// Синхронизацию можно запускать сколько угодно раз подряд: записи
// меняются только при изменении счётчиков, суммы и места считаются
// заново из сохранённых постов.
package engagement

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/community-leaderboard/internal/features/activity"
)

// RunStatus: итог синхронизации.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success" // Все каналы и пересчёт прошли
	StatusPartial RunStatus = "partial" // Часть каналов или пересчёт упали
	StatusFailed  RunStatus = "failed"  // Упали все каналы
)

// ChannelResult: итог обработки одного канала.
type ChannelResult struct {
	ChannelID string        `json:"channelId"`
	Kind      activity.Kind `json:"kind"`
	Fetched   int           `json:"fetched"`
	Synced    int           `json:"synced"`  // Новые и изменённые посты
	Skipped   int           `json:"skipped"` // Без изменений
	Error     string        `json:"error,omitempty"`
}

// Failed: канал не удалось загрузить или обработать.
func (c ChannelResult) Failed() bool {
	return c.Error != ""
}

// SyncReport: итог синхронизации сообщества.
type SyncReport struct {
	RunID          uuid.UUID       `json:"runId"`
	CommunityID    string          `json:"communityId"`
	Status         RunStatus       `json:"status"`
	Channels       []ChannelResult `json:"channels"`
	Synced         int             `json:"synced"`
	Skipped        int             `json:"skipped"`
	UsersWritten   int             `json:"usersWritten"`
	UsersRefreshed int             `json:"usersRefreshed"`
	EntriesWritten int             `json:"entriesWritten"`
	RanksWritten   int             `json:"ranksWritten"`
	StreaksWritten int             `json:"streaksWritten"`
	Errors         []string        `json:"errors,omitempty"` // Ошибки этапа пересчёта
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
}

// FailedChannels: число упавших каналов.
func (r *SyncReport) FailedChannels() int {
	n := 0
	for _, c := range r.Channels {
		if c.Failed() {
			n++
		}
	}
	return n
}

// Writes: сколько записей в хранилище сделал проход.
func (r *SyncReport) Writes() int {
	return r.Synced + r.UsersWritten + r.EntriesWritten + r.RanksWritten + r.StreaksWritten
}

// Duration: длительность прохода.
func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run: запись о проходе синхронизации в таблице sync_runs.
type Run struct {
	ID             uuid.UUID  `json:"id"`
	CommunityID    string     `json:"communityId"`
	Status         RunStatus  `json:"status"`
	Synced         int        `json:"synced"`
	Skipped        int        `json:"skipped"`
	FailedChannels int        `json:"failedChannels"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}
