// Package members: repository.go отвечает за операции с таблицами пользователей,
// сообществ, участия, каналов и названий уровней.
// Каждая функция выполняет один SQL-запрос (или одну транзакцию) и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertUser добавляет пользователя.
// На конфликте по id обновляет только имя, username и аватар.
func (r *Repository) UpsertUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, username, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, u.ID, u.Username, u.DisplayName, u.AvatarURL); err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя (id=%s): %w", u.ID, err)
	}
	return nil
}

// GetUser возвращает ошибку с common.ErrNotFound, если пользователь не найден.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь не найден (id=%s): %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (id=%s): %w", id, err)
	}
	return &u, nil
}

// GetUsers возвращает пользователей по списку ID.
func (r *Repository) GetUsers(ctx context.Context, ids []string) (map[string]*User, error) {
	out := make(map[string]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `
		SELECT id, username, display_name, avatar_url, created_at, updated_at
		FROM users
		WHERE id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// EnsureMembership создаёт запись об участии, если её ещё нет. Существующую не трогает.
func (r *Repository) EnsureMembership(ctx context.Context, userID, communityID string) error {
	query := `
		INSERT INTO community_members (user_id, community_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, community_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, userID, communityID); err != nil {
		return fmt.Errorf("ошибка создания участия (user_id=%s): %w", userID, err)
	}
	return nil
}

// UpsertCommunity создаёт или обновляет сообщество.
func (r *Repository) UpsertCommunity(ctx context.Context, c *Community) error {
	query := `
		INSERT INTO communities (id, name, ledger_account_id, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    ledger_account_id = EXCLUDED.ledger_account_id,
		    currency = EXCLUDED.currency,
		    updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, c.ID, c.Name, c.LedgerAccountID, c.Currency); err != nil {
		return fmt.Errorf("ошибка сохранения сообщества (id=%s): %w", c.ID, err)
	}
	return nil
}

// GetCommunity: если не найдено: ошибка с common.ErrNotFound.
func (r *Repository) GetCommunity(ctx context.Context, id string) (*Community, error) {
	query := `
		SELECT id, name, ledger_account_id, currency, created_at, updated_at
		FROM communities
		WHERE id = $1
	`
	var c Community
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.LedgerAccountID, &c.Currency, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("сообщество не найдено (id=%s): %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения сообщества (id=%s): %w", id, err)
	}
	return &c, nil
}

// ListChannels возвращает отслеживаемые каналы сообщества.
func (r *Repository) ListChannels(ctx context.Context, communityID string) ([]Channel, error) {
	query := `
		SELECT community_id, channel_id, kind
		FROM tracked_channels
		WHERE community_id = $1
		ORDER BY kind, channel_id
	`
	rows, err := r.db.Query(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каналов: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.CommunityID, &ch.ChannelID, &ch.Kind); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ReplaceChannels атомарно заменяет набор каналов сообщества.
func (r *Repository) ReplaceChannels(ctx context.Context, communityID string, channels []Channel) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tracked_channels WHERE community_id = $1`, communityID); err != nil {
		return fmt.Errorf("ошибка удаления каналов: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ch := range channels {
		batch.Queue(`
			INSERT INTO tracked_channels (community_id, channel_id, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (community_id, channel_id) DO UPDATE SET kind = EXCLUDED.kind
		`, communityID, ch.ChannelID, ch.Kind)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ошибка записи каналов: %w", err)
	}

	return tx.Commit(ctx)
}

// ListCommunitiesWithChannels возвращает ID сообществ, у которых есть хотя бы один канал.
func (r *Repository) ListCommunitiesWithChannels(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT community_id FROM tracked_channels ORDER BY community_id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сообществ: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLevelNames возвращает переопределённые названия уровней сообщества.
func (r *Repository) GetLevelNames(ctx context.Context, communityID string) (map[int]string, error) {
	query := `SELECT level, title FROM level_names WHERE community_id = $1`
	rows, err := r.db.Query(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения названий уровней: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var level int
		var title string
		if err := rows.Scan(&level, &title); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out[level] = title
	}
	return out, rows.Err()
}

// SetLevelName сохраняет название уровня для сообщества.
func (r *Repository) SetLevelName(ctx context.Context, communityID string, level int, title string) error {
	query := `
		INSERT INTO level_names (community_id, level, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (community_id, level) DO UPDATE SET title = EXCLUDED.title
	`
	if _, err := r.db.Exec(ctx, query, communityID, level, title); err != nil {
		return fmt.Errorf("ошибка сохранения названия уровня: %w", err)
	}
	return nil
}
