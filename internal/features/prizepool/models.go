// Package prizepool управляет призовыми фондами сообщества: создание с
// проверкой баланса и пересечений, активация после оплаты и выплата
// победителям рейтинга по фиксированной таблице процентов.
package prizepool

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
)

// Status: состояние фонда.
type Status string

const (
	StatusPending      Status = "pending"      // Ожидает подтверждения оплаты
	StatusActive       Status = "active"       // Профинансирован, ждёт выплаты
	StatusDistributing Status = "distributing" // Идёт выплата
	StatusPaidOut      Status = "paid_out"     // Выплачен хотя бы одному победителю
	StatusFailed       Status = "failed"       // Ни один перевод не прошёл
)

// Open: фонд участвует в проверке пересечений. Фонд, застрявший
// в distributing, тоже занимает свой период до завершения выплаты.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusActive || s == StatusDistributing
}

// Terminal: после этого статуса фонд не меняется.
func (s Status) Terminal() bool {
	return s == StatusPaidOut || s == StatusFailed
}

// Pool: призовой фонд. Суммы в центах.
type Pool struct {
	ID             uuid.UUID              `json:"id"`
	CommunityID    string                 `json:"communityId"`
	AmountCents    int64                  `json:"amountCents"`
	Currency       string                 `json:"currency"`
	PeriodType     leaderboard.PeriodType `json:"periodType"`
	StartDate      time.Time              `json:"startDate"`
	EndDate        time.Time              `json:"endDate"`
	Status         Status                 `json:"status"`
	CreatedBy      string                 `json:"createdBy"`
	CheckoutID     *string                `json:"checkoutId,omitempty"`
	PaymentID      *string                `json:"paymentId,omitempty"`
	WinnersCount   int                    `json:"winnersCount"`
	TotalPaidCents int64                  `json:"totalPaidCents"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
	DistributedAt  *time.Time             `json:"distributedAt,omitempty"`
}

// PayoutStatus: итог перевода одному победителю.
type PayoutStatus string

const (
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

// Payout: запись о выплате победителю. Не изменяется после создания.
type Payout struct {
	ID          uuid.UUID    `json:"id"`
	PoolID      uuid.UUID    `json:"poolId"`
	UserID      string       `json:"userId"`
	Rank        int          `json:"rank"`
	Points      float64      `json:"points"`
	AmountCents int64        `json:"amountCents"`
	Currency    string       `json:"currency"`
	Status      PayoutStatus `json:"status"`
	TransferID  *string      `json:"transferId,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// CreateInput: параметры нового фонда.
// CheckoutID задаётся, когда фонд оплачивается через внешний checkout:
// такой фонд создаётся в статусе pending и баланс не проверяется.
type CreateInput struct {
	CommunityID string
	AmountCents int64
	Currency    string
	PeriodType  leaderboard.PeriodType
	StartDate   time.Time
	EndDate     time.Time
	CreatedBy   string
	CheckoutID  string
}

// DistributionResult: итог выплаты фонда.
type DistributionResult struct {
	PoolID         uuid.UUID `json:"poolId"`
	Status         Status    `json:"status"`
	Currency       string    `json:"currency"`
	Successes      []*Payout `json:"successes"`
	Failures       []*Payout `json:"failures"`
	WinnersCount   int       `json:"winnersCount"`
	TotalPaidCents int64     `json:"totalPaidCents"`
}

func (r *DistributionResult) add(p *Payout) {
	if p.Status == PayoutCompleted {
		r.Successes = append(r.Successes, p)
		r.TotalPaidCents += p.AmountCents
		return
	}
	r.Failures = append(r.Failures, p)
}

// Partial: часть переводов не прошла.
func (r *DistributionResult) Partial() bool {
	return len(r.Successes) > 0 && len(r.Failures) > 0
}
