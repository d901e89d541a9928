package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/lock"
)

const dateLayout = "2006-01-02"

// Суммы в запросах и ответах в единицах валюты (500.00), внутри в центах.
type createPoolRequest struct {
	CommunityID string  `json:"communityId" validate:"required,max=128"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	PeriodType  string  `json:"periodType" validate:"required,oneof=weekly monthly all_time"`
	StartDate   string  `json:"startDate" validate:"required"`
	EndDate     string  `json:"endDate" validate:"required"`
	CreatedBy   string  `json:"createdBy" validate:"omitempty,max=64"`
	CheckoutID  string  `json:"checkoutId" validate:"omitempty,max=128"`
}

type poolResponse struct {
	Pool    *prizepool.Pool     `json:"pool"`
	Payouts []*prizepool.Payout `json:"payouts"`
}

// paymentWebhook: уведомление платёжной системы об успешной оплате checkout.
type paymentWebhook struct {
	Type string `json:"type"`
	Data struct {
		CheckoutID string `json:"checkoutId"`
		PaymentID  string `json:"paymentId"`
	} `json:"data"`
}

const (
	eventCheckoutCompleted = "checkout.completed"
	eventPaymentSucceeded  = "payment.succeeded"
)

// POST /api/pools
// 201: создан, 400: параметры, 402: не хватает средств, 409: пересечение.
func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "admin"
	}

	pool, err := s.svc.Pools.CreatePool(r.Context(), prizepool.CreateInput{
		CommunityID: req.CommunityID,
		AmountCents: common.DecimalToCents(req.Amount),
		Currency:    req.Currency,
		PeriodType:  leaderboard.PeriodType(req.PeriodType),
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   createdBy,
		CheckoutID:  req.CheckoutID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, pool)
}

// GET /api/communities/{communityID}/pools
func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.svc.Pools.ListPools(r.Context(), chi.URLParam(r, "communityID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pools": pools})
}

// GET /api/communities/{communityID}/pools/active
func (s *Server) handleActivePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.svc.Pools.ActivePool(r.Context(), chi.URLParam(r, "communityID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.poolView(pool))
}

// GET /api/pools/{poolID}
func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pool, err := s.svc.Pools.GetPool(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payouts, err := s.svc.Pools.ListPayouts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, poolResponse{Pool: pool, Payouts: payouts})
}

// POST /api/pools/{poolID}/distribute
// Выплата идёт под блокировкой сообщества, чтобы не пересечься с синхронизацией.
// Частичный успех: 200, неудачные переводы в failures.
func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pool, err := s.svc.Pools.GetPool(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	unlock, err := s.lockCommunity(ctx, pool.CommunityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unlock()

	result, err := s.svc.Pools.Distribute(ctx, id, pool.CommunityID)
	if err != nil && result != nil {
		// переводы прошли, но итог не записан: повторный вызов завершит фонд
		writeErrorData(w, r, err, result)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) lockCommunity(ctx context.Context, communityID string) (func(), error) {
	if s.svc.Locker == nil {
		return func() {}, nil
	}
	unlock, err := s.svc.Locker.TryLock(ctx, lock.CommunityKey(communityID))
	if errors.Is(err, lock.ErrLocked) {
		return nil, &common.ConflictError{Message: "для сообщества уже идёт синхронизация или выплата"}
	}
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// POST /webhooks/payments
// Всегда 200: ошибки обработки только логируются, иначе платёжная система
// будет повторять доставку.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ack := func() { writeData(w, http.StatusOK, map[string]bool{"received": true}) }

	// у платёжной системы свои поля, лишние не считаются ошибкой
	var event paymentWebhook
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&event); err != nil {
		log.WithError(err).Warn("Некорректное тело вебхука оплаты")
		ack()
		return
	}

	fields := log.Fields{
		"type":        event.Type,
		"checkout_id": event.Data.CheckoutID,
		"payment_id":  event.Data.PaymentID,
	}
	if event.Type != eventCheckoutCompleted && event.Type != eventPaymentSucceeded {
		log.WithFields(fields).Debug("Событие оплаты пропущено")
		ack()
		return
	}

	// активация не должна прерываться, если платёжная система закрыла соединение
	ctx := context.WithoutCancel(r.Context())
	pool, err := s.svc.Pools.ActivateByCheckout(ctx, event.Data.CheckoutID, event.Data.PaymentID)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Не удалось активировать фонд по оплате")
		ack()
		return
	}
	log.WithFields(fields).WithField("pool_id", pool.ID).Info("Оплата фонда подтверждена")
	ack()
}

func poolIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "poolID"))
	if err != nil {
		return uuid.Nil, common.NewValidationError("poolId", "некорректный ID фонда")
	}
	return id, nil
}

// parseDate принимает "2026-03-01" или RFC 3339. Результат: в UTC.
func parseDate(field, raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, common.NewValidationError(field, "дата в формате YYYY-MM-DD")
	}
	return t.UTC(), nil
}
