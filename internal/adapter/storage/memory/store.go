// Package memory is an in-process implementation of the repository ports.
// Transactions are serialized on a single lock and undone on rollback, which
// gives every transaction block serializable isolation. It backs the
// "memory" database driver and the ledger property tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNestedTx = errors.New("memory: nested transactions are not supported")

type edgeKey struct {
	referrer uuid.UUID
	referred uuid.UUID
}

// Store holds every table in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	accounts      map[uuid.UUID]*domain.Account
	wallets       map[uuid.UUID]*domain.Wallet // keyed by user
	transactions  map[uuid.UUID]*domain.Transaction
	edges         map[edgeKey]*domain.ReferralEdge
	milestones    map[uuid.UUID]*domain.Milestone
	idempotency   map[string]*domain.IdempotencyLog
	processed     map[string]*domain.ProcessedChainTx
	notifications []*domain.Notification
	audit         []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*domain.Account),
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		edges:        make(map[edgeKey]*domain.ReferralEdge),
		milestones:   make(map[uuid.UUID]*domain.Milestone),
		idempotency:  make(map[string]*domain.IdempotencyLog),
		processed:    make(map[string]*domain.ProcessedChainTx),
	}
}

// Begin implements ports.DBTransactor. The returned transaction holds the
// store's transaction lock until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	return &memTx{store: s}, nil
}

// record registers an undo step on tx. It is a no-op outside a memory transaction.
func record(tx pgx.Tx, undo func()) {
	if mt, ok := tx.(*memTx); ok && mt != nil {
		mt.undo = append(mt.undo, undo)
	}
}

// memTx is a pgx.Tx whose only real behavior is Commit and Rollback.
type memTx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *memTx) finish() {
	t.done = true
	t.undo = nil
	t.store.txMu.Unlock()
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errNestedTx }

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

// Rollback undoes every recorded write in reverse order. Rolling back a
// finished transaction returns pgx.ErrTxClosed, as pgx does.
func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                              { return nil }

// Repositories returns the store's repository adapters.
func (s *Store) Repositories() *Repositories {
	return &Repositories{
		Accounts:      &AccountRepo{s: s},
		Wallets:       &WalletRepo{s: s},
		Transactions:  &TransactionRepo{s: s},
		Referrals:     &ReferralRepo{s: s},
		Milestones:    &MilestoneRepo{s: s},
		Idempotency:   &IdempotencyRepo{s: s},
		ProcessedTx:   &ProcessedTxRepo{s: s},
		Notifications: &NotificationRepo{s: s},
		Audit:         &AuditRepo{s: s},
	}
}

// Repositories groups the memory adapters.
type Repositories struct {
	Accounts      *AccountRepo
	Wallets       *WalletRepo
	Transactions  *TransactionRepo
	Referrals     *ReferralRepo
	Milestones    *MilestoneRepo
	Idempotency   *IdempotencyRepo
	ProcessedTx   *ProcessedTxRepo
	Notifications *NotificationRepo
	Audit         *AuditRepo
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }
