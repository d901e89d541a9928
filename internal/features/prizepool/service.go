// Package prizepool: service.go содержит бизнес-логику призовых фондов.
//
// Выплата не повторяется: фонд захватывается условным переходом
// active → distributing, и только захвативший вызов делает переводы.
package prizepool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/metrics"
	"serotonyl.ru/community-leaderboard/internal/platform"
)

// Store: хранилище фондов и выплат.
type Store interface {
	ListOpenPools(ctx context.Context, communityID string) ([]*Pool, error)
	ListPools(ctx context.Context, communityID string) ([]*Pool, error)
	CreatePool(ctx context.Context, p *Pool) error
	GetPool(ctx context.Context, id uuid.UUID) (*Pool, error)
	GetPoolByCheckout(ctx context.Context, checkoutID string) (*Pool, error)
	Activate(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)
	ClaimForDistribution(ctx context.Context, id uuid.UUID) (bool, error)
	FinishDistribution(ctx context.Context, p *Pool) error
	InsertPayout(ctx context.Context, p *Payout) error
	ListPayouts(ctx context.Context, poolID uuid.UUID) ([]*Payout, error)
}

// Ledger: баланс счёта сообщества и переводы победителям.
type Ledger interface {
	GetBalance(ctx context.Context, accountID string) (platform.Balance, error)
	Transfer(ctx context.Context, tr platform.TransferRequest) (string, error)
}

// Communities отдаёт сообщество со счётом выплат.
type Communities interface {
	GetCommunity(ctx context.Context, id string) (*members.Community, error)
}

// Ranking отдаёт снимок рейтинга.
type Ranking interface {
	Top(ctx context.Context, communityID string, period leaderboard.PeriodType, limit int) ([]*leaderboard.Entry, error)
}

// Notifier сообщает администраторам об итогах выплаты.
type Notifier interface {
	PoolDistributed(ctx context.Context, pool *Pool, result *DistributionResult)
}

// Service управляет призовыми фондами.
type Service struct {
	store           Store
	ledger          Ledger
	communities     Communities
	ranking         Ranking
	notifier        Notifier
	defaultCurrency string
	payoutsEnabled  bool
}

// NewService создаёт сервис призовых фондов.
func NewService(store Store, ledger Ledger, communities Communities, ranking Ranking) *Service {
	return &Service{
		store:           store,
		ledger:          ledger,
		communities:     communities,
		ranking:         ranking,
		defaultCurrency: "usd",
		payoutsEnabled:  true,
	}
}

// WithNotifier подключает уведомления об итогах выплат.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithDefaultCurrency задаёт валюту фондов, у сообщества которых валюта не указана.
func (s *Service) WithDefaultCurrency(currency string) *Service {
	if currency != "" {
		s.defaultCurrency = strings.ToLower(currency)
	}
	return s
}

// WithPayoutsEnabled включает или выключает выплаты (FEATURE_PAYOUTS_ENABLED).
func (s *Service) WithPayoutsEnabled(enabled bool) *Service {
	s.payoutsEnabled = enabled
	return s
}

// CreatePool создаёт призовой фонд.
//
// Порядок проверок:
//   - параметры (сумма, период, даты): ValidationError
//   - пересечение с открытыми фондами: PoolConflictError
//   - баланс счёта, если фонд не оплачивается через checkout: InsufficientBalanceError
//
// При любом отказе фонд не создаётся.
func (s *Service) CreatePool(ctx context.Context, in CreateInput) (*Pool, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	community, err := s.communities.GetCommunity(ctx, in.CommunityID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewValidationError("communityId", "сообщество не зарегистрировано")
	}
	if err != nil {
		return nil, err
	}

	currency := s.poolCurrency(in.Currency, community)

	open, err := s.store.ListOpenPools(ctx, in.CommunityID)
	if err != nil {
		return nil, err
	}
	if existing := FindOverlap(in.StartDate, in.EndDate, open); existing != nil {
		return nil, &common.PoolConflictError{
			ExistingID: existing.ID.String(),
			Start:      existing.StartDate,
			End:        existing.EndDate,
		}
	}

	pool := &Pool{
		ID:          uuid.New(),
		CommunityID: in.CommunityID,
		AmountCents: in.AmountCents,
		Currency:    currency,
		PeriodType:  in.PeriodType,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      StatusActive,
		CreatedBy:   in.CreatedBy,
	}

	if in.CheckoutID != "" {
		checkout := in.CheckoutID
		pool.CheckoutID = &checkout
		pool.Status = StatusPending
	} else {
		if err := s.checkBalance(ctx, community, in.AmountCents, currency); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreatePool(ctx, pool); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"pool_id":      pool.ID,
		"community_id": pool.CommunityID,
		"amount":       common.FormatCents(pool.AmountCents, pool.Currency),
		"period":       pool.PeriodType,
		"status":       pool.Status,
		"created_by":   pool.CreatedBy,
	}).Info("Призовой фонд создан")
	return pool, nil
}

func validateCreate(in *CreateInput) error {
	in.CommunityID = strings.TrimSpace(in.CommunityID)
	in.CheckoutID = strings.TrimSpace(in.CheckoutID)

	if in.CommunityID == "" {
		return common.NewValidationError("communityId", "не задан ID сообщества")
	}
	if in.AmountCents <= 0 {
		return common.NewValidationError("amount", "сумма фонда должна быть положительной")
	}
	if !in.PeriodType.Valid() {
		return common.NewValidationError("periodType", "период должен быть weekly, monthly или all_time")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return common.NewValidationError("startDate", "не заданы даты фонда")
	}
	in.StartDate, in.EndDate = in.StartDate.UTC(), in.EndDate.UTC()
	if !in.EndDate.After(in.StartDate) {
		return common.NewValidationError("endDate", "дата окончания должна быть позже даты начала")
	}
	return nil
}

func (s *Service) poolCurrency(requested string, community *members.Community) string {
	if c := strings.ToLower(strings.TrimSpace(requested)); c != "" {
		return c
	}
	if community.Currency != "" {
		return community.Currency
	}
	return s.defaultCurrency
}

// checkBalance сверяет доступный баланс счёта сообщества с нужной суммой.
func (s *Service) checkBalance(ctx context.Context, community *members.Community, required int64, currency string) error {
	balance, err := s.ledger.GetBalance(ctx, community.LedgerAccountID)
	if err != nil {
		return fmt.Errorf("ошибка получения баланса сообщества %s: %w", community.ID, err)
	}
	if balance.AvailableCents < required {
		return &common.InsufficientBalanceError{
			Current:  balance.AvailableCents,
			Required: required,
			Currency: currency,
		}
	}
	return nil
}

// ActivateByCheckout активирует фонд после подтверждения оплаты.
// Повторное уведомление для уже активного фонда ничего не меняет.
func (s *Service) ActivateByCheckout(ctx context.Context, checkoutID, paymentID string) (*Pool, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, common.NewValidationError("checkoutId", "не задан checkout")
	}

	pool, err := s.store.GetPoolByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	switch pool.Status {
	case StatusActive:
		return pool, nil
	case StatusPending:
	default:
		return nil, &common.ConflictError{Message: fmt.Sprintf("фонд %s уже в статусе %s", pool.ID, pool.Status)}
	}

	ok, err := s.store.Activate(ctx, pool.ID, paymentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// параллельное уведомление успело раньше
		return s.store.GetPool(ctx, pool.ID)
	}

	pool.Status = StatusActive
	if paymentID != "" {
		pool.PaymentID = &paymentID
	}
	log.WithFields(log.Fields{
		"pool_id":     pool.ID,
		"checkout_id": checkoutID,
		"payment_id":  paymentID,
	}).Info("Призовой фонд активирован")
	return pool, nil
}

// Distribute выплачивает фонд первым местам рейтинга.
// communityID может быть пустым; если задан, фонд должен ему принадлежать.
//
// Ошибка перевода одному победителю не останавливает остальных: она
// записывается отдельной выплатой со статусом failed. Итоговый статус
// paid_out, если прошёл хотя бы один перевод, иначе failed.
//
// Фонд, оставшийся в distributing после сбоя, выплачивается повторным
// вызовом: места с уже записанной выплатой пропускаются, остальные
// переводятся с теми же ключами идемпотентности. Если итог записать
// не удалось, возвращается и результат, и ошибка.
func (s *Service) Distribute(ctx context.Context, poolID uuid.UUID, communityID string) (*DistributionResult, error) {
	if !s.payoutsEnabled {
		return nil, &common.ConflictError{Message: "выплаты отключены"}
	}

	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if communityID != "" && pool.CommunityID != communityID {
		return nil, fmt.Errorf("фонд %s в сообществе %s: %w", poolID, communityID, common.ErrNotFound)
	}
	if pool.Status != StatusActive && pool.Status != StatusDistributing {
		return nil, &common.ConflictError{Message: fmt.Sprintf("фонд %s нельзя выплатить в статусе %s", pool.ID, pool.Status)}
	}

	community, err := s.communities.GetCommunity(ctx, pool.CommunityID)
	if err != nil {
		return nil, err
	}

	recorded := map[int]*Payout{}
	if pool.Status == StatusDistributing {
		payouts, err := s.store.ListPayouts(ctx, pool.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range payouts {
			recorded[p.Rank] = p
		}
		log.WithFields(log.Fields{
			"pool_id":  pool.ID,
			"recorded": len(recorded),
		}).Warn("Возобновление прерванной выплаты фонда")
	}

	winners, err := s.winners(ctx, pool)
	if err != nil && len(recorded) == 0 {
		return nil, err
	}
	amounts := Split(pool.AmountCents, len(winners))

	// на повторе часть денег уже ушла: проверяется только остаток
	var remaining int64
	for i, amount := range amounts {
		if recorded[i+1] == nil {
			remaining += amount
		}
	}
	if remaining > 0 {
		if err := s.checkBalance(ctx, community, remaining, pool.Currency); err != nil {
			return nil, err
		}
	}

	claimed, err := s.store.ClaimForDistribution(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, &common.ConflictError{Message: fmt.Sprintf("фонд %s уже выплачен", pool.ID)}
	}
	pool.Status = StatusDistributing

	// После захвата фонд нужно довести до конечного статуса даже при отмене запроса.
	ctx = context.WithoutCancel(ctx)

	result, err := s.payWinners(ctx, pool, community, winners, amounts, recorded)
	if err != nil {
		// без записи о выплате фонд не закрывается, повтор допишет недостающие строки
		return result, err
	}

	pool.Status = result.Status
	pool.WinnersCount = result.WinnersCount
	pool.TotalPaidCents = result.TotalPaidCents
	if err := s.store.FinishDistribution(ctx, pool); err != nil {
		log.WithError(err).WithField("pool_id", pool.ID).Error("Не удалось записать итог выплаты")
		return result, err
	}

	metrics.PaidCents.WithLabelValues(pool.Currency).Add(float64(result.TotalPaidCents))
	log.WithFields(log.Fields{
		"pool_id":   pool.ID,
		"status":    result.Status,
		"successes": len(result.Successes),
		"failures":  len(result.Failures),
		"paid":      common.FormatCents(result.TotalPaidCents, pool.Currency),
	}).Info("Выплата призового фонда завершена")

	if s.notifier != nil {
		s.notifier.PoolDistributed(ctx, pool, result)
	}
	return result, nil
}

// winners возвращает до MaxWinners строк рейтинга с ненулевыми очками.
func (s *Service) winners(ctx context.Context, pool *Pool) ([]*leaderboard.Entry, error) {
	top, err := s.ranking.Top(ctx, pool.CommunityID, pool.PeriodType, MaxWinners)
	if err != nil {
		return nil, err
	}
	out := make([]*leaderboard.Entry, 0, len(top))
	for _, e := range top {
		if common.Round1(e.Points) <= 0 {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, common.NewValidationError("winners", "в рейтинге нет участников с очками")
	}
	return out, nil
}

// errZeroPayout: доля места округлилась до нуля центов, перевод не отправляется.
var errZeroPayout = errors.New("сумма выплаты меньше одного цента")

// payWinners переводит призы местам без записанной выплаты. Записанные
// выплаты входят в результат как есть. Ошибка: хотя бы одну выплату
// не удалось записать.
func (s *Service) payWinners(ctx context.Context, pool *Pool, community *members.Community,
	winners []*leaderboard.Entry, amounts []int64, recorded map[int]*Payout) (*DistributionResult, error) {
	result := &DistributionResult{PoolID: pool.ID, Currency: pool.Currency}
	var unrecorded []error

	places := len(winners)
	for rank := range recorded {
		places = max(places, rank)
	}

	for rank := 1; rank <= places; rank++ {
		if payout := recorded[rank]; payout != nil {
			result.add(payout)
			continue
		}
		if rank > len(winners) {
			continue
		}
		w := winners[rank-1]
		payout := &Payout{
			ID:          uuid.New(),
			PoolID:      pool.ID,
			UserID:      w.UserID,
			Rank:        rank,
			Points:      w.Points,
			AmountCents: amounts[rank-1],
			Currency:    pool.Currency,
		}

		var transferID string
		err := errZeroPayout
		if payout.AmountCents > 0 {
			transferID, err = s.ledger.Transfer(ctx, platform.TransferRequest{
				AmountCents:    payout.AmountCents,
				Currency:       pool.Currency,
				OriginID:       community.LedgerAccountID,
				DestinationID:  w.UserID,
				IdempotencyKey: PayoutKey(pool.ID, rank, w.UserID),
				Notes:          fmt.Sprintf("Приз за %d место (%s)", rank, pool.PeriodType),
			})
		}
		if err != nil {
			payout.Status = PayoutFailed
			payout.Error = err.Error()
			log.WithError(err).WithFields(log.Fields{
				"pool_id": pool.ID,
				"user_id": w.UserID,
				"rank":    rank,
			}).Warn("Перевод победителю не прошёл")
		} else {
			payout.Status = PayoutCompleted
			payout.TransferID = &transferID
		}
		result.add(payout)
		metrics.Payouts.WithLabelValues(string(payout.Status)).Inc()

		if err := s.store.InsertPayout(ctx, payout); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"pool_id": pool.ID,
				"user_id": w.UserID,
				"status":  payout.Status,
			}).Error("Не удалось записать выплату")
			unrecorded = append(unrecorded, err)
		}
	}

	result.WinnersCount = len(result.Successes)
	result.Status = StatusFailed
	if len(result.Successes) > 0 {
		result.Status = StatusPaidOut
	}
	if len(unrecorded) > 0 {
		return result, fmt.Errorf("не записано выплат: %d, фонд остаётся в статусе %s: %w",
			len(unrecorded), StatusDistributing, errors.Join(unrecorded...))
	}
	return result, nil
}

// PayoutKey: ключ идемпотентности перевода за место.
func PayoutKey(poolID uuid.UUID, rank int, userID string) string {
	return fmt.Sprintf("%s:%d:%s", poolID, rank, userID)
}

// ActivePool возвращает активный фонд сообщества для отображения.
// Если активных несколько, берётся фонд с самой ранней датой начала.
func (s *Service) ActivePool(ctx context.Context, communityID string) (*Pool, error) {
	open, err := s.store.ListOpenPools(ctx, communityID)
	if err != nil {
		return nil, err
	}
	var found *Pool
	for _, p := range open {
		if p.Status != StatusActive {
			continue
		}
		if found == nil || p.StartDate.Before(found.StartDate) {
			found = p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("активный фонд сообщества %s: %w", communityID, common.ErrNotFound)
	}
	return found, nil
}

// GetPool возвращает фонд по ID.
func (s *Service) GetPool(ctx context.Context, id uuid.UUID) (*Pool, error) {
	return s.store.GetPool(ctx, id)
}

// ListPools возвращает фонды сообщества.
func (s *Service) ListPools(ctx context.Context, communityID string) ([]*Pool, error) {
	return s.store.ListPools(ctx, communityID)
}

// ListPayouts возвращает выплаты фонда.
func (s *Service) ListPayouts(ctx context.Context, poolID uuid.UUID) ([]*Payout, error) {
	return s.store.ListPayouts(ctx, poolID)
}

// DaysLeft: сколько полных дней осталось до конца фонда.
func (p *Pool) DaysLeft(now time.Time) int {
	return max(common.DaysBetween(now, p.EndDate), 0)
}
