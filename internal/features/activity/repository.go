// Package activity: repository.go выполняет операции с таблицей posts.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Repository предоставляет методы для работы с постами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий постов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const postColumns = `
	id, community_id, channel_id, author_id, kind, content,
	views, likes, replies, poll_votes, pinned, points, points_breakdown,
	created_at, updated_at, synced_at
`

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	err := row.Scan(
		&p.ID, &p.CommunityID, &p.ChannelID, &p.AuthorID, &p.Kind, &p.Content,
		&p.Views, &p.Likes, &p.Replies, &p.PollVotes, &p.Pinned, &p.Points, &p.Breakdown,
		&p.CreatedAt, &p.UpdatedAt, &p.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID возвращает пост по внешнему ID или common.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	p, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пост не найден (id=%s): %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения поста (id=%s): %w", id, err)
	}
	return p, nil
}

// GetByIDs возвращает уже сохранённые посты из списка ID одним запросом.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]*Post, error) {
	out := make(map[string]*Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса постов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования поста: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Create сохраняет новый пост. Если пост уже записан параллельной
// синхронизацией, обновляются только счётчики и очки.
func (r *Repository) Create(ctx context.Context, p *Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (id) DO UPDATE
		SET views = EXCLUDED.views,
		    likes = EXCLUDED.likes,
		    replies = EXCLUDED.replies,
		    poll_votes = EXCLUDED.poll_votes,
		    pinned = EXCLUDED.pinned,
		    points = EXCLUDED.points,
		    points_breakdown = EXCLUDED.points_breakdown,
		    updated_at = EXCLUDED.updated_at,
		    synced_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.CommunityID, p.ChannelID, p.AuthorID, p.Kind, p.Content,
		p.Views, p.Likes, p.Replies, p.PollVotes, p.Pinned, p.Points, p.Breakdown,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания поста (id=%s): %w", p.ID, err)
	}
	return nil
}

// UpdateEngagement обновляет счётчики, очки и текст существующего поста.
func (r *Repository) UpdateEngagement(ctx context.Context, p *Post) error {
	query := `
		UPDATE posts
		SET content = $2, views = $3, likes = $4, replies = $5, poll_votes = $6,
		    pinned = $7, points = $8, points_breakdown = $9, updated_at = $10, synced_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		p.ID, p.Content, p.Views, p.Likes, p.Replies, p.PollVotes,
		p.Pinned, p.Points, p.Breakdown, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления поста (id=%s): %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("пост не найден (id=%s): %w", p.ID, common.ErrNotFound)
	}
	return nil
}

// ListAuthorIDs возвращает всех авторов, у которых есть хотя бы один пост в сообществе.
func (r *Repository) ListAuthorIDs(ctx context.Context, communityID string) ([]string, error) {
	query := `SELECT DISTINCT author_id FROM posts WHERE community_id = $1 ORDER BY author_id`
	rows, err := r.db.Query(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения авторов: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListActivityTimes возвращает моменты создания всех постов пользователя в сообществе.
func (r *Repository) ListActivityTimes(ctx context.Context, userID, communityID string) ([]time.Time, error) {
	query := `SELECT created_at FROM posts WHERE author_id = $1 AND community_id = $2`
	rows, err := r.db.Query(ctx, query, userID, communityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории активности: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// SumPoints суммирует очки постов пользователя, созданных не раньше since.
// since == nil: за всё время.
func (r *Repository) SumPoints(ctx context.Context, userID, communityID string, since *time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)::float8
		FROM posts
		WHERE author_id = $1 AND community_id = $2
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
	`
	var total float64
	if err := r.db.QueryRow(ctx, query, userID, communityID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта очков (user_id=%s): %w", userID, err)
	}
	return total, nil
}
