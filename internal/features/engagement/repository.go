// Package engagement: repository.go ведёт журнал проходов в таблице sync_runs.
package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Repository предоставляет методы для работы с журналом синхронизаций.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий журнала синхронизаций.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// StartRun записывает начало прохода.
func (r *Repository) StartRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO sync_runs (id, community_id, status, started_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, run.ID, run.CommunityID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи начала синхронизации: %w", err)
	}
	return nil
}

// FinishRun записывает итог прохода.
func (r *Repository) FinishRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE sync_runs
		SET status = $2, synced = $3, skipped = $4, failed_channels = $5,
		    error = NULLIF($6, ''), finished_at = $7
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query,
		run.ID, run.Status, run.Synced, run.Skipped, run.FailedChannels, run.Error, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи итога синхронизации: %w", err)
	}
	return nil
}

// LastRun возвращает последний проход сообщества.
func (r *Repository) LastRun(ctx context.Context, communityID string) (*Run, error) {
	query := `
		SELECT id, community_id, status, synced, skipped, failed_channels,
		       COALESCE(error, ''), started_at, finished_at
		FROM sync_runs
		WHERE community_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
	var run Run
	err := r.db.QueryRow(ctx, query, communityID).Scan(
		&run.ID, &run.CommunityID, &run.Status, &run.Synced, &run.Skipped, &run.FailedChannels,
		&run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("синхронизаций сообщества %s не было: %w", communityID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последней синхронизации: %w", err)
	}
	return &run, nil
}
