// Package leaderboard: service.go пересчитывает суммы и места.
//
// Порядок важен: сначала суммы всех затронутых пользователей (RefreshUserTotals),
// потом места (RecalculateRanks). Места, посчитанные раньше сумм, будут устаревшими.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Store: хранилище строк рейтинга.
type Store interface {
	GetEntry(ctx context.Context, userID, communityID string, period PeriodType) (*Entry, error)
	UpsertPoints(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, communityID string, period PeriodType) ([]*Entry, error)
	TopEntries(ctx context.Context, communityID string, period PeriodType, limit int) ([]*Entry, error)
	UpdateRanks(ctx context.Context, communityID string, period PeriodType, ranks map[string]int) error
}

// PointSource суммирует очки постов пользователя начиная с since (nil: за всё время).
type PointSource interface {
	SumPoints(ctx context.Context, userID, communityID string, since *time.Time) (float64, error)
}

// Service управляет рейтингом.
type Service struct {
	store  Store
	source PointSource
	now    func() time.Time
}

// NewService создаёт сервис рейтинга.
func NewService(store Store, source PointSource) *Service {
	return &Service{store: store, source: source, now: time.Now}
}

// WithClock подменяет источник текущего времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RefreshUserTotals пересчитывает сумму очков пользователя за каждый период
// из сохранённых постов. Неизменившиеся суммы не перезаписываются.
// Возвращает число записанных строк.
func (s *Service) RefreshUserTotals(ctx context.Context, userID, communityID string) (int, error) {
	now := s.now()
	written := 0

	for _, period := range AllPeriods {
		total, err := s.source.SumPoints(ctx, userID, communityID, period.WindowStart(now))
		if err != nil {
			return written, fmt.Errorf("ошибка подсчёта очков за %s: %w", period, err)
		}
		total = common.Round1(total)

		existing, err := s.store.GetEntry(ctx, userID, communityID, period)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return written, err
		}
		if existing != nil && common.Round1(existing.Points) == total {
			continue
		}

		entry := &Entry{
			UserID:      userID,
			CommunityID: communityID,
			PeriodType:  period,
			PeriodStart: period.StartLabel(),
			Points:      total,
		}
		if err := s.store.UpsertPoints(ctx, entry); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// RecalculateRanks расставляет места 1..N в каждом периоде сообщества:
// по убыванию очков, при равенстве: по user_id по возрастанию.
// Записываются только изменившиеся места. Возвращает число записанных мест.
func (s *Service) RecalculateRanks(ctx context.Context, communityID string) (int, error) {
	written := 0
	for _, period := range AllPeriods {
		entries, err := s.store.ListEntries(ctx, communityID, period)
		if err != nil {
			return written, fmt.Errorf("ошибка чтения рейтинга за %s: %w", period, err)
		}

		SortEntries(entries)

		changed := make(map[string]int)
		for i, e := range entries {
			rank := i + 1
			if e.Rank != rank {
				changed[e.UserID] = rank
			}
		}
		if len(changed) == 0 {
			continue
		}
		if err := s.store.UpdateRanks(ctx, communityID, period, changed); err != nil {
			return written, err
		}
		written += len(changed)

		log.WithFields(log.Fields{
			"community_id": communityID,
			"period":       period,
			"entries":      len(entries),
			"changed":      len(changed),
		}).Debug("Места рейтинга обновлены")
	}
	return written, nil
}

// Top возвращает первые limit строк рейтинга периода.
func (s *Service) Top(ctx context.Context, communityID string, period PeriodType, limit int) ([]*Entry, error) {
	if !period.Valid() {
		return nil, common.NewValidationError("period", "неизвестный период")
	}
	if limit <= 0 {
		limit = 10
	}
	entries, err := s.store.TopEntries(ctx, communityID, period, limit)
	if err != nil {
		return nil, err
	}
	SortEntries(entries)
	return entries, nil
}

// UserStanding возвращает строки пользователя по всем периодам.
// Отсутствующие периоды не попадают в результат.
func (s *Service) UserStanding(ctx context.Context, userID, communityID string) (map[PeriodType]*Entry, error) {
	out := make(map[PeriodType]*Entry, len(AllPeriods))
	for _, period := range AllPeriods {
		e, err := s.store.GetEntry(ctx, userID, communityID, period)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[period] = e
	}
	return out, nil
}

// SortEntries сортирует строки: очки по убыванию, затем user_id по возрастанию.
func SortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := common.Round1(entries[i].Points), common.Round1(entries[j].Points)
		if pi != pj {
			return pi > pj
		}
		return entries[i].UserID < entries[j].UserID
	})
}
