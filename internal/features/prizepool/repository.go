// Package prizepool: repository.go работает с таблицами prize_pools и payouts.
// Переходы статуса фонда выполняются условными UPDATE: строка меняется,
// только если фонд всё ещё в ожидаемом статусе.
package prizepool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Repository предоставляет методы для работы с фондами и выплатами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий призовых фондов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const poolColumns = `
	id, community_id, amount_cents, currency, period_type, start_date, end_date, status,
	created_by, checkout_id, payment_id, winners_count, total_paid_cents,
	created_at, updated_at, distributed_at
`

func scanPool(row pgx.Row) (*Pool, error) {
	var p Pool
	err := row.Scan(
		&p.ID, &p.CommunityID, &p.AmountCents, &p.Currency, &p.PeriodType, &p.StartDate, &p.EndDate, &p.Status,
		&p.CreatedBy, &p.CheckoutID, &p.PaymentID, &p.WinnersCount, &p.TotalPaidCents,
		&p.CreatedAt, &p.UpdatedAt, &p.DistributedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) queryPools(ctx context.Context, query string, args ...any) ([]*Pool, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса фондов: %w", err)
	}
	defer rows.Close()

	var out []*Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования фонда: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOpenPools возвращает фонды сообщества в статусах pending, active и distributing.
func (r *Repository) ListOpenPools(ctx context.Context, communityID string) ([]*Pool, error) {
	return r.queryPools(ctx, `
		SELECT `+poolColumns+` FROM prize_pools
		WHERE community_id = $1 AND status IN ('pending', 'active', 'distributing')
		ORDER BY start_date ASC, created_at ASC
	`, communityID)
}

// ListPools возвращает все фонды сообщества, новые первыми.
func (r *Repository) ListPools(ctx context.Context, communityID string) ([]*Pool, error) {
	return r.queryPools(ctx, `
		SELECT `+poolColumns+` FROM prize_pools
		WHERE community_id = $1
		ORDER BY created_at DESC
	`, communityID)
}

// CreatePool вставляет фонд. Внутри транзакции берётся advisory-блокировка
// сообщества и пересечение проверяется ещё раз, так что два параллельных
// запроса не создадут пересекающиеся фонды.
func (r *Repository) CreatePool(ctx context.Context, p *Pool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.CommunityID); err != nil {
		return fmt.Errorf("ошибка блокировки сообщества: %w", err)
	}

	var (
		existingID           uuid.UUID
		existStart, existEnd time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT id, start_date, end_date FROM prize_pools
		WHERE community_id = $1 AND status IN ('pending', 'active')
		  AND start_date < $3 AND end_date > $2
		ORDER BY start_date ASC
		LIMIT 1
	`, p.CommunityID, p.StartDate, p.EndDate).Scan(&existingID, &existStart, &existEnd)
	switch {
	case err == nil:
		return &common.PoolConflictError{ExistingID: existingID.String(), Start: existStart, End: existEnd}
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("ошибка проверки пересечения: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO prize_pools (
			id, community_id, amount_cents, currency, period_type, start_date, end_date,
			status, created_by, checkout_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, p.ID, p.CommunityID, p.AmountCents, p.Currency, p.PeriodType, p.StartDate, p.EndDate,
		p.Status, p.CreatedBy, p.CheckoutID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания фонда: %w", err)
	}

	return tx.Commit(ctx)
}

// GetPool возвращает фонд по ID.
func (r *Repository) GetPool(ctx context.Context, id uuid.UUID) (*Pool, error) {
	p, err := scanPool(r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM prize_pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("фонд %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения фонда: %w", err)
	}
	return p, nil
}

// GetPoolByCheckout возвращает фонд по ссылке на checkout.
func (r *Repository) GetPoolByCheckout(ctx context.Context, checkoutID string) (*Pool, error) {
	p, err := scanPool(r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM prize_pools WHERE checkout_id = $1`, checkoutID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("фонд с checkout %s: %w", checkoutID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения фонда: %w", err)
	}
	return p, nil
}

// Activate переводит фонд pending → active. Возвращает false, если фонд
// уже не в статусе pending.
func (r *Repository) Activate(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE prize_pools
		SET status = 'active', payment_id = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, paymentID)
	if err != nil {
		return false, fmt.Errorf("ошибка активации фонда: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimForDistribution переводит фонд active → distributing. Фонд, уже
// находящийся в distributing (прерванная выплата), захватывается повторно.
// false: фонд в конечном статусе или ещё не оплачен.
func (r *Repository) ClaimForDistribution(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE prize_pools
		SET status = 'distributing', updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'distributing')
	`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка захвата фонда: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishDistribution записывает итог выплаты: статус, число победителей и сумму.
func (r *Repository) FinishDistribution(ctx context.Context, p *Pool) error {
	err := r.db.QueryRow(ctx, `
		UPDATE prize_pools
		SET status = $2, winners_count = $3, total_paid_cents = $4,
		    distributed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'distributing'
		RETURNING distributed_at, updated_at
	`, p.ID, p.Status, p.WinnersCount, p.TotalPaidCents).Scan(&p.DistributedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &common.ConflictError{Message: fmt.Sprintf("фонд %s не в статусе выплаты", p.ID)}
	}
	if err != nil {
		return fmt.Errorf("ошибка завершения выплаты: %w", err)
	}
	return nil
}

// InsertPayout записывает выплату победителю.
func (r *Repository) InsertPayout(ctx context.Context, p *Payout) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payouts (id, pool_id, user_id, rank, points, amount_cents, currency, status, transfer_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		RETURNING created_at
	`, p.ID, p.PoolID, p.UserID, p.Rank, p.Points, p.AmountCents, p.Currency, p.Status, p.TransferID, p.Error,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи выплаты (user_id=%s): %w", p.UserID, err)
	}
	return nil
}

// ListPayouts возвращает выплаты фонда по месту.
func (r *Repository) ListPayouts(ctx context.Context, poolID uuid.UUID) ([]*Payout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, pool_id, user_id, rank, points::float8, amount_cents, currency, status,
		       transfer_id, COALESCE(error, ''), created_at
		FROM payouts
		WHERE pool_id = $1
		ORDER BY rank ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выплат: %w", err)
	}
	defer rows.Close()

	var out []*Payout
	for rows.Next() {
		var p Payout
		if err := rows.Scan(
			&p.ID, &p.PoolID, &p.UserID, &p.Rank, &p.Points, &p.AmountCents, &p.Currency, &p.Status,
			&p.TransferID, &p.Error, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования выплаты: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
