// Package streak: repository.go выполняет операции с таблицей streaks.
package streak

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Repository предоставляет методы для работы с таблицей streaks.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий стриков.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetStreak возвращает стрик пользователя в сообществе или common.ErrNotFound.
func (r *Repository) GetStreak(ctx context.Context, userID, communityID string) (*Record, error) {
	query := `
		SELECT user_id, community_id, current_streak, longest_streak, last_activity_date, updated_at
		FROM streaks
		WHERE user_id = $1 AND community_id = $2
	`
	var s Record
	err := r.db.QueryRow(ctx, query, userID, communityID).Scan(
		&s.UserID, &s.CommunityID, &s.CurrentStreak, &s.LongestStreak,
		&s.LastActivityDate, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("стрик не найден (user_id=%s): %w", userID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения стрика (user_id=%s): %w", userID, err)
	}
	return &s, nil
}

// UpsertStreak создаёт или перезаписывает стрик по ключу (user_id, community_id).
func (r *Repository) UpsertStreak(ctx context.Context, s *Record) error {
	query := `
		INSERT INTO streaks (user_id, community_id, current_streak, longest_streak, last_activity_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, community_id) DO UPDATE
		SET current_streak = EXCLUDED.current_streak,
		    longest_streak = EXCLUDED.longest_streak,
		    last_activity_date = EXCLUDED.last_activity_date,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		s.UserID, s.CommunityID, s.CurrentStreak, s.LongestStreak, s.LastActivityDate,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления стрика: %w", err)
	}
	return nil
}
