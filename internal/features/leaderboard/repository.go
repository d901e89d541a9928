// Package leaderboard: repository.go выполняет операции с таблицей leaderboard_entries.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Repository предоставляет методы для работы с рейтингом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий рейтинга.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetEntry возвращает строку рейтинга или common.ErrNotFound.
func (r *Repository) GetEntry(ctx context.Context, userID, communityID string, period PeriodType) (*Entry, error) {
	query := `
		SELECT user_id, community_id, period_type, period_start, points::float8, rank, updated_at
		FROM leaderboard_entries
		WHERE user_id = $1 AND community_id = $2 AND period_type = $3 AND period_start = $4
	`
	var e Entry
	err := r.db.QueryRow(ctx, query, userID, communityID, period, period.StartLabel()).Scan(
		&e.UserID, &e.CommunityID, &e.PeriodType, &e.PeriodStart, &e.Points, &e.Rank, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("запись рейтинга не найдена (user_id=%s, period=%s): %w", userID, period, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения рейтинга: %w", err)
	}
	return &e, nil
}

// UpsertPoints записывает сумму очков. Место не трогается: его выставляет UpdateRanks.
func (r *Repository) UpsertPoints(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO leaderboard_entries (user_id, community_id, period_type, period_start, points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, community_id, period_type, period_start) DO UPDATE
		SET points = EXCLUDED.points, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, e.UserID, e.CommunityID, e.PeriodType, e.PeriodStart, e.Points)
	if err != nil {
		return fmt.Errorf("ошибка записи очков рейтинга (user_id=%s): %w", e.UserID, err)
	}
	return nil
}

// ListEntries возвращает все строки периода: по убыванию очков, при равенстве: по user_id.
func (r *Repository) ListEntries(ctx context.Context, communityID string, period PeriodType) ([]*Entry, error) {
	return r.queryEntries(ctx, `
		SELECT user_id, community_id, period_type, period_start, points::float8, rank, updated_at
		FROM leaderboard_entries
		WHERE community_id = $1 AND period_type = $2 AND period_start = $3
		ORDER BY points DESC, user_id ASC
	`, communityID, period, period.StartLabel())
}

// TopEntries возвращает первые limit строк рейтинга.
func (r *Repository) TopEntries(ctx context.Context, communityID string, period PeriodType, limit int) ([]*Entry, error) {
	return r.queryEntries(ctx, `
		SELECT user_id, community_id, period_type, period_start, points::float8, rank, updated_at
		FROM leaderboard_entries
		WHERE community_id = $1 AND period_type = $2 AND period_start = $3
		ORDER BY points DESC, user_id ASC
		LIMIT $4
	`, communityID, period, period.StartLabel(), limit)
}

// UpdateRanks записывает места пачкой. Ключ карты: user_id.
func (r *Repository) UpdateRanks(ctx context.Context, communityID string, period PeriodType, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for userID, rank := range ranks {
		batch.Queue(`
			UPDATE leaderboard_entries
			SET rank = $5, updated_at = NOW()
			WHERE user_id = $1 AND community_id = $2 AND period_type = $3 AND period_start = $4
		`, userID, communityID, period, period.StartLabel(), rank)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ошибка записи мест рейтинга: %w", err)
	}
	return nil
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса рейтинга: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.UserID, &e.CommunityID, &e.PeriodType, &e.PeriodStart, &e.Points, &e.Rank, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
