package prizepool_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/testutil/fakeplatform"
	"serotonyl.ru/community-leaderboard/internal/testutil/memstore"
)

const (
	communityID = "comm_1"
	accountID   = "ledger_1"
)

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *memstore.Store
	platform *fakeplatform.Platform
	service  *prizepool.Service
	notifier *recordingNotifier
}

type recordingNotifier struct {
	results []*prizepool.DistributionResult
}

func (n *recordingNotifier) PoolDistributed(_ context.Context, _ *prizepool.Pool, r *prizepool.DistributionResult) {
	n.results = append(n.results, r)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	fp := fakeplatform.New()
	require.NoError(t, store.UpsertCommunity(context.Background(), &members.Community{
		ID: communityID, LedgerAccountID: accountID, Currency: "usd",
	}))

	notifier := &recordingNotifier{}
	svc := prizepool.NewService(store, fp, members.NewService(store), leaderboard.NewService(store, store)).
		WithNotifier(notifier)
	return &fixture{store: store, platform: fp, service: svc, notifier: notifier}
}

func (f *fixture) rankUsers(n int, period leaderboard.PeriodType) {
	for i := 1; i <= n; i++ {
		f.store.SetEntry(&leaderboard.Entry{
			UserID:      fmt.Sprintf("user_%02d", i),
			CommunityID: communityID,
			PeriodType:  period,
			Points:      float64(1000 - i*10),
			Rank:        i,
		})
	}
}

func (f *fixture) activePool(t *testing.T, amount int64) *prizepool.Pool {
	t.Helper()
	f.platform.SetBalance(accountID, 10_000_000)
	pool, err := f.service.CreatePool(context.Background(), prizepool.CreateInput{
		CommunityID: communityID,
		AmountCents: amount,
		PeriodType:  leaderboard.Weekly,
		StartDate:   day(1),
		EndDate:     day(7),
		CreatedBy:   "admin",
	})
	require.NoError(t, err)
	require.Equal(t, prizepool.StatusActive, pool.Status)
	return pool
}

func TestCreatePool_Validation(t *testing.T) {
	f := newFixture(t)
	f.platform.SetBalance(accountID, 100000)
	ctx := context.Background()

	valid := prizepool.CreateInput{
		CommunityID: communityID, AmountCents: 1000, PeriodType: leaderboard.Weekly,
		StartDate: day(1), EndDate: day(7),
	}

	tests := []struct {
		name   string
		mutate func(in *prizepool.CreateInput)
		field  string
	}{
		{"нулевая сумма", func(in *prizepool.CreateInput) { in.AmountCents = 0 }, "amount"},
		{"отрицательная сумма", func(in *prizepool.CreateInput) { in.AmountCents = -5 }, "amount"},
		{"неизвестный период", func(in *prizepool.CreateInput) { in.PeriodType = "daily" }, "periodType"},
		{"конец раньше начала", func(in *prizepool.CreateInput) { in.EndDate = day(1).Add(-time.Hour) }, "endDate"},
		{"конец равен началу", func(in *prizepool.CreateInput) { in.EndDate = in.StartDate }, "endDate"},
		{"без сообщества", func(in *prizepool.CreateInput) { in.CommunityID = " " }, "communityId"},
		{"незарегистрированное сообщество", func(in *prizepool.CreateInput) { in.CommunityID = "unknown" }, "communityId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.service.CreatePool(ctx, in)

			var ve *common.ValidationError
			require.True(t, errors.As(err, &ve), "ожидалась ValidationError, получено %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Zero(t, f.store.Writes().Pools)
}

func TestCreatePool_Overlap(t *testing.T) {
	f := newFixture(t)
	f.platform.SetBalance(accountID, 1_000_000)
	ctx := context.Background()

	create := func(start, end time.Time) (*prizepool.Pool, error) {
		return f.service.CreatePool(ctx, prizepool.CreateInput{
			CommunityID: communityID, AmountCents: 50000, PeriodType: leaderboard.Weekly,
			StartDate: start, EndDate: end,
		})
	}

	first, err := create(day(1), day(7))
	require.NoError(t, err)

	_, err = create(day(5), day(10))
	var conflict *common.PoolConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID.String(), conflict.ExistingID)
	assert.ErrorIs(t, err, common.ErrConflict)

	second, err := create(day(8), day(14))
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusActive, second.Status)
}

func TestCreatePool_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.platform.SetBalance(accountID, 20000)

	_, err := f.service.CreatePool(context.Background(), prizepool.CreateInput{
		CommunityID: communityID, AmountCents: 50000, PeriodType: leaderboard.Monthly,
		StartDate: day(1), EndDate: day(30),
	})

	var ib *common.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, int64(20000), ib.Current)
	assert.Equal(t, int64(50000), ib.Required)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	pools, err := f.service.ListPools(context.Background(), communityID)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestCreatePool_CheckoutIsPendingAndSkipsBalance(t *testing.T) {
	f := newFixture(t)
	f.platform.SetBalance(accountID, 0)
	ctx := context.Background()

	pool, err := f.service.CreatePool(ctx, prizepool.CreateInput{
		CommunityID: communityID, AmountCents: 50000, PeriodType: leaderboard.Weekly,
		StartDate: day(1), EndDate: day(7), CheckoutID: "chk_1",
	})
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusPending, pool.Status)

	// pending тоже участвует в проверке пересечений
	_, err = f.service.CreatePool(ctx, prizepool.CreateInput{
		CommunityID: communityID, AmountCents: 100, PeriodType: leaderboard.Weekly,
		StartDate: day(3), EndDate: day(4), CheckoutID: "chk_2",
	})
	assert.ErrorIs(t, err, common.ErrConflict)

	activated, err := f.service.ActivateByCheckout(ctx, "chk_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusActive, activated.Status)
	require.NotNil(t, activated.PaymentID)
	assert.Equal(t, "pay_1", *activated.PaymentID)

	again, err := f.service.ActivateByCheckout(ctx, "chk_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusActive, again.Status)

	_, err = f.service.ActivateByCheckout(ctx, "chk_missing", "pay_2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDistribute_FourWinners(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(4, leaderboard.Weekly)

	res, err := f.service.Distribute(context.Background(), pool.ID, communityID)
	require.NoError(t, err)

	assert.Equal(t, prizepool.StatusPaidOut, res.Status)
	require.Len(t, res.Successes, 4)
	assert.Empty(t, res.Failures)

	var amounts []int64
	for _, p := range res.Successes {
		amounts = append(amounts, p.AmountCents)
	}
	assert.Equal(t, []int64{20000, 9000, 6000, 4000}, amounts)
	assert.Equal(t, int64(39000), res.TotalPaidCents)
	assert.Equal(t, 4, res.WinnersCount)

	transfers := f.platform.Transfers()
	require.Len(t, transfers, 4)
	assert.Equal(t, fmt.Sprintf("%s:1:user_01", pool.ID), transfers[0].IdempotencyKey)
	assert.Equal(t, accountID, transfers[0].OriginID)

	stored, err := f.service.GetPool(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusPaidOut, stored.Status)
	assert.Equal(t, int64(39000), stored.TotalPaidCents)
	assert.NotNil(t, stored.DistributedAt)

	require.Len(t, f.notifier.results, 1)
}

func TestDistribute_PartialFailure(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 100000)
	f.rankUsers(10, leaderboard.Weekly)
	f.platform.FailTransfersTo("user_03")
	ctx := context.Background()

	res, err := f.service.Distribute(ctx, pool.ID, communityID)
	require.NoError(t, err)

	assert.Equal(t, prizepool.StatusPaidOut, res.Status)
	assert.Len(t, res.Successes, 9)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 3, res.Failures[0].Rank)
	assert.Equal(t, "user_03", res.Failures[0].UserID)
	assert.NotEmpty(t, res.Failures[0].Error)
	assert.True(t, res.Partial())
	assert.Equal(t, int64(100000-12000), res.TotalPaidCents)

	payouts, err := f.service.ListPayouts(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 10)
	for _, p := range payouts {
		if p.Rank == 3 {
			assert.Equal(t, prizepool.PayoutFailed, p.Status)
			assert.Nil(t, p.TransferID)
			continue
		}
		assert.Equal(t, prizepool.PayoutCompleted, p.Status)
		assert.NotNil(t, p.TransferID)
	}
}

func TestDistribute_ZeroCentShareIsFailedWithoutTransfer(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 20)
	f.rankUsers(10, leaderboard.Weekly)

	res, err := f.service.Distribute(context.Background(), pool.ID, communityID)
	require.NoError(t, err)

	// 8, 3, 2, 1, 1, 1, затем нули
	assert.Equal(t, prizepool.StatusPaidOut, res.Status)
	assert.Len(t, res.Successes, 6)
	require.Len(t, res.Failures, 4)
	assert.Equal(t, 7, res.Failures[0].Rank)
	assert.Equal(t, int64(16), res.TotalPaidCents)
	assert.Len(t, f.platform.Transfers(), 6)
}

func TestDistribute_ResumesAfterFinishFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(4, leaderboard.Weekly)

	f.store.FailOn = "FinishDistribution"
	res, err := f.service.Distribute(ctx, pool.ID, communityID)
	require.ErrorIs(t, err, common.ErrPersistence)
	require.NotNil(t, res, "переводы уже сделаны, результат не теряется")
	assert.Len(t, res.Successes, 4)
	assert.Len(t, f.platform.Transfers(), 4)

	stuck, err := f.service.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusDistributing, stuck.Status)

	// пока выплата не завершена, период фонда занят
	_, err = f.service.CreatePool(ctx, prizepool.CreateInput{
		CommunityID: communityID, AmountCents: 1000, PeriodType: leaderboard.Weekly,
		StartDate: day(3), EndDate: day(10),
	})
	var conflict *common.PoolConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, pool.ID.String(), conflict.ExistingID)

	f.store.FailOn = ""
	res, err = f.service.Distribute(ctx, pool.ID, communityID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusPaidOut, res.Status)
	assert.Equal(t, int64(39000), res.TotalPaidCents)
	assert.Len(t, f.platform.Transfers(), 4, "повтор не переводит деньги второй раз")

	payouts, err := f.service.ListPayouts(ctx, pool.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 4)

	stored, err := f.service.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusPaidOut, stored.Status)
	require.Len(t, f.notifier.results, 1)
}

func TestDistribute_UnrecordedPayoutKeepsPoolOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(3, leaderboard.Weekly)

	f.store.FailOn = "InsertPayout"
	res, err := f.service.Distribute(ctx, pool.ID, communityID)
	require.ErrorIs(t, err, common.ErrPersistence)
	require.NotNil(t, res)
	assert.Len(t, res.Successes, 3)

	stuck, err := f.service.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusDistributing, stuck.Status)

	f.store.FailOn = ""
	res, err = f.service.Distribute(ctx, pool.ID, communityID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusPaidOut, res.Status)

	// ключи те же, поэтому платформа не провела переводы повторно
	transfers := f.platform.Transfers()
	require.Len(t, transfers, 3)
	assert.Equal(t, prizepool.PayoutKey(pool.ID, 1, "user_01"), transfers[0].IdempotencyKey)

	payouts, err := f.service.ListPayouts(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	assert.Equal(t, "tr_1", *payouts[0].TransferID)
}

func TestDistribute_SecondCallIsRejected(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(3, leaderboard.Weekly)
	ctx := context.Background()

	_, err := f.service.Distribute(ctx, pool.ID, communityID)
	require.NoError(t, err)

	_, err = f.service.Distribute(ctx, pool.ID, communityID)
	var ce *common.ConflictError
	assert.True(t, errors.As(err, &ce))
	assert.Len(t, f.platform.Transfers(), 3, "повторных переводов быть не должно")
}

func TestDistribute_AllTransfersFail(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(2, leaderboard.Weekly)
	f.platform.FailTransfersTo("user_01")
	f.platform.FailTransfersTo("user_02")

	res, err := f.service.Distribute(context.Background(), pool.ID, "")
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusFailed, res.Status)
	assert.Zero(t, res.WinnersCount)
	assert.Zero(t, res.TotalPaidCents)

	stored, err := f.service.GetPool(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Equal(t, prizepool.StatusFailed, stored.Status)
}

func TestDistribute_ExcludesZeroPointEntries(t *testing.T) {
	f := newFixture(t)
	pool := f.activePool(t, 50000)
	f.rankUsers(2, leaderboard.Weekly)
	f.store.SetEntry(&leaderboard.Entry{UserID: "zero", CommunityID: communityID, PeriodType: leaderboard.Weekly, Points: 0})

	res, err := f.service.Distribute(context.Background(), pool.ID, communityID)
	require.NoError(t, err)
	assert.Len(t, res.Successes, 2)
	for _, p := range res.Successes {
		assert.NotEqual(t, "zero", p.UserID)
	}
}

func TestDistribute_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("пустой рейтинг", func(t *testing.T) {
		f := newFixture(t)
		pool := f.activePool(t, 50000)
		f.rankUsers(3, leaderboard.Monthly) // другой период

		_, err := f.service.Distribute(ctx, pool.ID, communityID)
		assert.ErrorIs(t, err, common.ErrValidation)

		stored, _ := f.service.GetPool(ctx, pool.ID)
		assert.Equal(t, prizepool.StatusActive, stored.Status)
	})

	t.Run("недостаточно средств при выплате", func(t *testing.T) {
		f := newFixture(t)
		pool := f.activePool(t, 50000)
		f.rankUsers(3, leaderboard.Weekly)
		f.platform.SetBalance(accountID, 100)

		_, err := f.service.Distribute(ctx, pool.ID, communityID)
		var ib *common.InsufficientBalanceError
		require.True(t, errors.As(err, &ib))
		assert.Equal(t, int64(100), ib.Current)

		stored, _ := f.service.GetPool(ctx, pool.ID)
		assert.Equal(t, prizepool.StatusActive, stored.Status)
		assert.Empty(t, f.platform.Transfers())
	})

	t.Run("фонд другого сообщества", func(t *testing.T) {
		f := newFixture(t)
		pool := f.activePool(t, 50000)
		_, err := f.service.Distribute(ctx, pool.ID, "other")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("неизвестный фонд", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Distribute(ctx, uuid.New(), communityID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("pending фонд", func(t *testing.T) {
		f := newFixture(t)
		pool, err := f.service.CreatePool(ctx, prizepool.CreateInput{
			CommunityID: communityID, AmountCents: 50000, PeriodType: leaderboard.Weekly,
			StartDate: day(1), EndDate: day(7), CheckoutID: "chk",
		})
		require.NoError(t, err)
		_, err = f.service.Distribute(ctx, pool.ID, communityID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("выплаты выключены", func(t *testing.T) {
		f := newFixture(t)
		pool := f.activePool(t, 50000)
		f.rankUsers(1, leaderboard.Weekly)
		f.service.WithPayoutsEnabled(false)
		_, err := f.service.Distribute(ctx, pool.ID, communityID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestActivePool_EarliestStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ActivePool(ctx, communityID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	later := &prizepool.Pool{ID: uuid.New(), CommunityID: communityID, StartDate: day(10), EndDate: day(17), Status: prizepool.StatusActive}
	earlier := &prizepool.Pool{ID: uuid.New(), CommunityID: communityID, StartDate: day(1), EndDate: day(20), Status: prizepool.StatusActive}
	f.store.PutPool(later)
	f.store.PutPool(earlier)

	got, err := f.service.ActivePool(ctx, communityID)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, got.ID)
}
