package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/internal/core/ports/mocks"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// A refers B, B refers C, C refers D. D deposits 1000.
func chain(t *testing.T, l *ledger) (a, b, c, d *domain.Account) {
	a = l.newUser(t, nil, "0")
	b = l.newUser(t, a, "0")
	c = l.newUser(t, b, "0")
	d = l.newUser(t, c, "0")
	return
}

func TestCommission_ThreeLevelCascade(t *testing.T) {
	l := newLedger(t)
	l.bus.Subscribe(domain.EventDepositCompleted, l.commission.HandleEvent)
	a, b, c, d := chain(t, l)

	dep, err := l.deposits.CompleteDeposit(context.Background(), domain.DepositRequest{
		UserID: d.ID, Amount: dec("1000"), TxHash: "0xabc", Source: domain.DepositSourceChain,
	})
	require.NoError(t, err)

	av, _ := l.balance(t, d.ID)
	assert.Equal(t, "1000", av)
	av, _ = l.balance(t, c.ID)
	assert.Equal(t, "50", av)
	av, _ = l.balance(t, b.ID)
	assert.Equal(t, "20", av)
	av, _ = l.balance(t, a.ID)
	assert.Equal(t, "10", av)

	for _, tc := range []struct {
		user  *domain.Account
		level int
	}{{c, 1}, {b, 2}, {a, 3}} {
		list := l.entries(t, tc.user.ID, domain.TransactionTypeReferralCommission)
		require.Len(t, list, 1)
		details, ok := list[0].Details.(*domain.CommissionDetails)
		require.True(t, ok)
		assert.Equal(t, tc.level, details.Level)
		assert.Equal(t, d.ID, details.FromUserID)
		assert.Equal(t, dep.ID, details.DepositTransactionID)

		edges, err := l.repos.Referrals.ListByReferrer(context.Background(), tc.user.ID)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, d.ID, edges[0].ReferredID)
		assert.Equal(t, tc.level, edges[0].Level)
	}

	assert.Len(t, l.bus.named(domain.EventDepositCompleted), 1)
	assert.Len(t, l.bus.named(domain.EventCommissionPaid), 3)
}

func TestCommission_RerunPaysNothing(t *testing.T) {
	l := newLedger(t)
	_, b, c, d := chain(t, l)
	evt := domain.DepositCompleted{UserID: d.ID, Amount: dec("1000"), TransactionID: uuid.New(), OccurredAt: time.Now()}

	first, err := l.commission.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	assert.Len(t, first.Paid, 3)

	second, err := l.commission.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	assert.Empty(t, second.Paid)
	assert.Equal(t, []int{1, 2, 3}, second.Skipped)

	av, _ := l.balance(t, c.ID)
	assert.Equal(t, "50", av)
	av, _ = l.balance(t, b.ID)
	assert.Equal(t, "20", av)

	edges, err := l.repos.Referrals.ListByReferrer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", edges[0].CommissionEarned.String())
}

func TestCommission_RerunWithoutCachePaysNothing(t *testing.T) {
	l := newLedger(t)
	_, _, c, d := chain(t, l)
	noCache := NewCommissionService(l.store, l.repos.Accounts, l.repos.Wallets, l.repos.Transactions,
		l.repos.Referrals, l.repos.Idempotency, nil, nil, nil, testRates, newTestLogger())
	evt := domain.DepositCompleted{UserID: d.ID, Amount: dec("200"), TransactionID: uuid.New()}

	_, err := noCache.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	res, err := noCache.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Skipped)

	av, _ := l.balance(t, c.ID)
	assert.Equal(t, "10", av)
}

func TestCommission_LostClaimWarmsCache(t *testing.T) {
	l := newLedger(t)
	_, _, _, d := chain(t, l)
	noCache := NewCommissionService(l.store, l.repos.Accounts, l.repos.Wallets, l.repos.Transactions,
		l.repos.Referrals, l.repos.Idempotency, nil, nil, nil, testRates, newTestLogger())
	evt := domain.DepositCompleted{UserID: d.ID, Amount: dec("100"), TransactionID: uuid.New()}

	_, err := noCache.PayCascade(context.Background(), evt)
	require.NoError(t, err)

	key := domain.BuildCommissionKey(evt.TransactionID, 1)
	cached, err := l.kv.Get(context.Background(), key)
	require.NoError(t, err)
	require.Nil(t, cached)

	res, err := l.commission.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Skipped)

	cached, err = l.kv.Get(context.Background(), key)
	require.NoError(t, err)
	assert.NotEmpty(t, cached)
}

func TestCommission_ConcurrentCascadesPayOnce(t *testing.T) {
	l := newLedger(t)
	a, b, c, d := chain(t, l)
	evt := domain.DepositCompleted{UserID: d.ID, Amount: dec("1000"), TransactionID: uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.commission.PayCascade(context.Background(), evt)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for user, want := range map[uuid.UUID]string{c.ID: "50", b.ID: "20", a.ID: "10"} {
		av, _ := l.balance(t, user)
		assert.Equal(t, want, av)
	}
}

func TestCommission_ShortChainsAndRounding(t *testing.T) {
	l := newLedger(t)
	parent := l.newUser(t, nil, "0")
	child := l.newUser(t, parent, "0")

	res, err := l.commission.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: child.ID, Amount: dec("33.333333"), TransactionID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, res.Paid, 1)

	// 33.333333 * 0.05 = 1.66666665 -> 1.666667
	assert.Equal(t, "1.666667", res.Paid[0].Amount.String())

	orphan := l.newUser(t, nil, "0")
	res, err = l.commission.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: orphan.ID, Amount: dec("100"), TransactionID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Paid)
	assert.Empty(t, res.Skipped)
}

func TestCommission_ZeroAmountLevelsAreSkipped(t *testing.T) {
	l := newLedger(t)
	_, b, c, d := chain(t, l)

	// L1: 0.00002 * 0.05 = 0.000001; L2: 0.0000004 rounds to zero; L3 likewise.
	res, err := l.commission.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: d.ID, Amount: dec("0.00002"), TransactionID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, res.Paid, 1)
	assert.Equal(t, c.ID, res.Paid[0].UserID)

	av, _ := l.balance(t, b.ID)
	assert.Equal(t, "0", av)
}

func TestCommission_StopsOnCycle(t *testing.T) {
	l := newLedger(t)
	x := l.newUser(t, nil, "0")
	y := l.newUser(t, x, "0")

	// Corrupt the graph: x now points back at y.
	stored, err := l.repos.Accounts.GetByID(context.Background(), x.ID)
	require.NoError(t, err)
	stored.ReferredBy = &y.ID
	forceAccount(t, l, stored)

	res, err := l.commission.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: y.ID, Amount: dec("100"), TransactionID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, res.Paid, 1, "x is paid once, then the walk reaches y again and stops")
	assert.Equal(t, x.ID, res.Paid[0].UserID)
}

func TestCommission_RejectsNonPositiveAmount(t *testing.T) {
	l := newLedger(t)
	d := l.newUser(t, nil, "0")

	_, err := l.commission.PayCascade(context.Background(), domain.DepositCompleted{UserID: d.ID, Amount: dec("0")})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestCommission_MissingAncestorIsIntegrityError(t *testing.T) {
	l := newLedger(t)
	ghost := uuid.New()
	d := l.newUser(t, nil, "0")
	stored, err := l.repos.Accounts.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	stored.ReferredBy = &ghost
	forceAccount(t, l, stored)

	_, err = l.commission.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: d.ID, Amount: dec("100"), TransactionID: uuid.New(),
	})
	assert.True(t, apperror.Is(err, apperror.CodeIntegrity))
}

func TestCommission_HandleEventIgnoresOtherEvents(t *testing.T) {
	l := newLedger(t)
	assert.NoError(t, l.commission.HandleEvent(context.Background(), domain.WithdrawalResolved{}))
}

func TestCommission_CacheHitSkipsDatabase(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountRepository(ctrl)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	txManager := mocks.NewMockDBTransactor(ctrl)
	metrics := mocks.NewMockLedgerMetrics(ctrl)

	referrer := &domain.Account{ID: uuid.New()}
	depositor := &domain.Account{ID: uuid.New(), ReferredBy: &referrer.ID}
	evt := domain.DepositCompleted{UserID: depositor.ID, Amount: dec("100"), TransactionID: uuid.New()}

	accounts.EXPECT().GetByID(gomock.Any(), depositor.ID).Return(depositor, nil)
	accounts.EXPECT().GetByID(gomock.Any(), referrer.ID).Return(referrer, nil)
	cache.EXPECT().Get(gomock.Any(), domain.BuildCommissionKey(evt.TransactionID, 1)).Return([]byte(`{}`), nil)
	metrics.EXPECT().CommissionPayment(1, "skipped")
	txManager.EXPECT().Begin(gomock.Any()).Times(0)

	svc := NewCommissionService(txManager, accounts, nil, nil, nil, nil, cache, nil, metrics, testRates, newTestLogger())
	res, err := svc.PayCascade(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
}

func TestCommission_BeginFailureStopsCascade(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountRepository(ctrl)
	txManager := mocks.NewMockDBTransactor(ctrl)
	metrics := mocks.NewMockLedgerMetrics(ctrl)

	referrer := &domain.Account{ID: uuid.New()}
	depositor := &domain.Account{ID: uuid.New(), ReferredBy: &referrer.ID}

	accounts.EXPECT().GetByID(gomock.Any(), depositor.ID).Return(depositor, nil)
	accounts.EXPECT().GetByID(gomock.Any(), referrer.ID).Return(referrer, nil)
	txManager.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool exhausted"))
	metrics.EXPECT().CommissionPayment(1, "error")

	svc := NewCommissionService(txManager, accounts, nil, nil, nil, nil, nil, nil, metrics, testRates, newTestLogger())
	res, err := svc.PayCascade(context.Background(), domain.DepositCompleted{
		UserID: depositor.ID, Amount: dec("100"), TransactionID: uuid.New(),
	})
	assert.True(t, apperror.Is(err, apperror.CodeDatabase))
	assert.Equal(t, &ports.CascadeResult{}, res)
}

func forceAccount(t *testing.T, l *ledger, a *domain.Account) {
	t.Helper()
	l.store.PutAccount(a)
}

func TestCommission_SweepPaysLevelsAFailedCascadeLeft(t *testing.T) {
	l := newLedger(t)
	a, b, c, d := chain(t, l)
	ctx := context.Background()

	// The live cascade pays level 1, then the database goes away.
	txm := &failingTransactor{inner: l.store}
	live := NewCommissionService(txm, l.repos.Accounts, l.repos.Wallets, l.repos.Transactions,
		l.repos.Referrals, l.repos.Idempotency, l.kv, l.bus, nil, testRates, newTestLogger())
	l.bus.Subscribe(domain.EventDepositCompleted, live.HandleEvent)
	l.bus.Subscribe(domain.EventCommissionPaid, func(context.Context, domain.Event) error {
		txm.fail.Store(true)
		return nil
	})

	_, err := l.deposits.CompleteDeposit(ctx, domain.DepositRequest{
		UserID: d.ID, Amount: dec("1000"), TxHash: "0xsweep", Source: domain.DepositSourceChain,
	})
	require.NoError(t, err)
	av, _ := l.balance(t, c.ID)
	assert.Equal(t, "50", av)
	av, _ = l.balance(t, b.ID)
	assert.Equal(t, "0", av)

	stats, err := l.commission.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ports.SweepStats{Deposits: 1, Paid: 2}, stats)

	av, _ = l.balance(t, c.ID)
	assert.Equal(t, "50", av)
	av, _ = l.balance(t, b.ID)
	assert.Equal(t, "20", av)
	av, _ = l.balance(t, a.ID)
	assert.Equal(t, "10", av)
	assert.Len(t, l.entries(t, c.ID, domain.TransactionTypeReferralCommission), 1)

	again, err := l.commission.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ports.SweepStats{Deposits: 1}, again)

	none, err := l.commission.Sweep(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ports.SweepStats{}, none)
}

func TestCommission_SweepCountsFailuresAndPages(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	ghost := uuid.New()
	orphan := l.newUser(t, nil, "0")
	stored, err := l.repos.Accounts.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	stored.ReferredBy = &ghost
	forceAccount(t, l, stored)
	loner := l.newUser(t, nil, "0")

	now := time.Now().UTC()
	admin := uuid.New()
	deposit := func(userID uuid.UUID) {
		require.NoError(t, l.repos.Transactions.Create(ctx, nil, &domain.Transaction{
			ID: uuid.New(), UserID: userID, Type: domain.TransactionTypeDeposit, Amount: dec("10"),
			Status: domain.TransactionStatusCompleted, CreatedAt: now, ResolvedAt: &now,
			Details: &domain.DepositDetails{Source: domain.DepositSourceAdmin, AdminID: &admin},
		}))
	}
	for i := 0; i < sweepPageSize; i++ {
		deposit(loner.ID)
	}
	deposit(orphan.ID)

	stats, err := l.commission.Sweep(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ports.SweepStats{Deposits: sweepPageSize + 1, Failed: 1}, stats)
}

func TestCommission_SweepListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	txRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db down"))

	svc := NewCommissionService(nil, nil, nil, txRepo, nil, nil, nil, nil, nil, testRates, newTestLogger())
	_, err := svc.Sweep(context.Background(), time.Now().Add(-time.Hour))
	assert.True(t, apperror.Is(err, apperror.CodeDatabase))
}
