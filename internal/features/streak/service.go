// Package streak: service.go пересчитывает стрики из истории активности
// и пишет в БД только изменившиеся записи.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Store: хранилище стриков.
type Store interface {
	GetStreak(ctx context.Context, userID, communityID string) (*Record, error)
	UpsertStreak(ctx context.Context, r *Record) error
}

// History отдаёт моменты активности пользователя в сообществе.
type History interface {
	ListActivityTimes(ctx context.Context, userID, communityID string) ([]time.Time, error)
}

// Service управляет стриками.
type Service struct {
	store   Store
	history History
	now     func() time.Time
}

// NewService создаёт новый сервис стриков.
func NewService(store Store, history History) *Service {
	return &Service{store: store, history: history, now: time.Now}
}

// WithClock подменяет источник текущего времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Recompute пересчитывает стрик пользователя с нуля по всей истории.
// Возвращает true, если запись была изменена.
func (s *Service) Recompute(ctx context.Context, userID, communityID string) (bool, error) {
	times, err := s.history.ListActivityTimes(ctx, userID, communityID)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения истории активности: %w", err)
	}

	stats := Calculate(times, s.now())

	existing, err := s.store.GetStreak(ctx, userID, communityID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}
	if stats.Equal(existing) {
		return false, nil
	}

	record := &Record{
		UserID:           userID,
		CommunityID:      communityID,
		CurrentStreak:    stats.Current,
		LongestStreak:    stats.Longest,
		LastActivityDate: stats.LastActivity,
	}
	if err := s.store.UpsertStreak(ctx, record); err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"user_id":      userID,
		"community_id": communityID,
		"current":      stats.Current,
		"longest":      stats.Longest,
	}).Debug("Стрик обновлён")
	return true, nil
}

// GetStreak возвращает стрик пользователя. Если записи нет: пустой стрик.
func (s *Service) GetStreak(ctx context.Context, userID, communityID string) (*Record, error) {
	r, err := s.store.GetStreak(ctx, userID, communityID)
	if errors.Is(err, common.ErrNotFound) {
		return &Record{UserID: userID, CommunityID: communityID}, nil
	}
	return r, err
}
