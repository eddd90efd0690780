package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"referral-ledger/internal/adapter/storage/memory"
	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testTronAddress = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
	testUSDT        = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// recordingBus dispatches synchronously and keeps every event.
type recordingBus struct {
	mu       sync.Mutex
	events   []domain.Event
	handlers map[string][]ports.EventHandler
}

func newRecordingBus() *recordingBus {
	return &recordingBus{handlers: make(map[string][]ports.EventHandler)}
}

func (b *recordingBus) Subscribe(name string, h ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *recordingBus) Publish(ctx context.Context, evt domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, evt)
	hs := append([]ports.EventHandler(nil), b.handlers[evt.EventName()]...)
	b.mu.Unlock()
	for _, h := range hs {
		_ = h(ctx, evt)
	}
}

func (b *recordingBus) named(name string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// recordingNotifier captures notifications per user and operator alerts.
type recordingNotifier struct {
	mu       sync.Mutex
	titles   map[uuid.UUID][]string
	messages map[uuid.UUID][]string
	alerts   []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		titles:   make(map[uuid.UUID][]string),
		messages: make(map[uuid.UUID][]string),
	}
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, title, message string, _ domain.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles[userID] = append(n.titles[userID], title)
	n.messages[userID] = append(n.messages[userID], message)
}

func (n *recordingNotifier) AlertAdmins(_ context.Context, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, title+": "+message)
}

func (n *recordingNotifier) List(context.Context, uuid.UUID, int) ([]domain.Notification, error) {
	return nil, nil
}

func (n *recordingNotifier) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (n *recordingNotifier) got(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles[userID]...)
}

// lastMessage returns the body of the most recent notification to userID.
func (n *recordingNotifier) lastMessage(userID uuid.UUID) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.messages[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (n *recordingNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func (n *recordingNotifier) alertList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

// ledger wires the ledger services on the in-memory store.
type ledger struct {
	store    *memory.Store
	repos    *memory.Repositories
	kv       *memory.KV
	bus      *recordingBus
	notifier *recordingNotifier

	commission *CommissionServiceImpl
	deposits   *DepositServiceImpl
	milestones *MilestoneServiceImpl
	wallets    *WalletServiceImpl
}

var testRates = []decimal.Decimal{dec("0.05"), dec("0.02"), dec("0.01")}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	kv := memory.NewKV()
	bus := newRecordingBus()
	notifier := newRecordingNotifier()
	log := newTestLogger()

	l := &ledger{store: store, repos: repos, kv: kv, bus: bus, notifier: notifier}
	l.commission = NewCommissionService(store, repos.Accounts, repos.Wallets, repos.Transactions,
		repos.Referrals, repos.Idempotency, kv, bus, nil, testRates, log)
	l.deposits = NewDepositService(store, repos.Accounts, repos.Wallets, repos.Transactions,
		repos.ProcessedTx, kv, nil, notifier, bus, nil, testUSDT, 24*time.Hour, log)
	l.milestones = NewMilestoneService(store, repos.Milestones, repos.Accounts, repos.Wallets,
		repos.Transactions, notifier, log)
	l.wallets = NewWalletService(store, repos.Wallets, repos.Transactions, notifier, log)
	return l
}

func (l *ledger) withdrawals(payout ports.PayoutClient) *WithdrawalServiceImpl {
	return NewWithdrawalService(l.store, l.repos.Wallets, l.repos.Transactions, l.kv, payout,
		l.notifier, l.bus, nil, WithdrawalPolicy{MinAmount: dec("10"), Fee: dec("1"), PayoutTimeout: time.Second}, newTestLogger())
}

// newUser stores a verified account with a wallet holding available.
func (l *ledger) newUser(t *testing.T, referrer *domain.Account, available string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	code := strings.ToUpper(id.String()[:8])
	a := &domain.Account{
		ID:            id,
		Email:         id.String() + "@example.com",
		FullName:      "Test User",
		Role:          domain.RoleUser,
		EmailVerified: true,
		ReferralCode:  &code,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if referrer != nil {
		a.ReferredBy = &referrer.ID
	}
	require.NoError(t, l.repos.Accounts.Create(ctx, nil, a))
	require.NoError(t, l.repos.Wallets.Create(ctx, nil, &domain.Wallet{
		ID:             uuid.New(),
		UserID:         id,
		Available:      dec(available),
		Pending:        decimal.Zero,
		DepositAddress: "T" + id.String()[:8],
	}))
	return a
}

func (l *ledger) balance(t *testing.T, userID uuid.UUID) (available, pending string) {
	t.Helper()
	w, err := l.repos.Wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w.Available.String(), w.Pending.String()
}

func (l *ledger) entries(t *testing.T, userID uuid.UUID, txType domain.TransactionType) []domain.Transaction {
	t.Helper()
	list, _, err := l.repos.Transactions.List(context.Background(), ports.TransactionListParams{
		UserID: &userID, Type: &txType, PageSize: 100,
	})
	require.NoError(t, err)
	return list
}
