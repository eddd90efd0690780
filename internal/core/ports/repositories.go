package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.Account, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error)
	// MarkVerified sets email_verified and assigns the referral code once.
	MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, referralCode string) error
	ListAdmins(ctx context.Context) ([]domain.Account, error)
	CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error)
	// CountActiveReferrals counts direct referrals with at least one COMPLETED deposit.
	CountActiveReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	// Adjust applies relative deltas atomically. It returns domain.ErrInsufficientBalance
	// when either balance would become negative.
	Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, deltaAvailable, deltaPending decimal.Decimal) (*domain.Wallet, error)
	// SetBalance overwrites both balances. Callers must hold the row lock.
	SetBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, available, pending decimal.Decimal) error
	ListDepositAddresses(ctx context.Context) ([]DepositAddress, error)
}

// DepositAddress pairs a custodial address with its owner for the deposit scanner.
type DepositAddress struct {
	UserID  uuid.UUID
	Address string
}

// TransactionRepository is the ledger store.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	// Resolve moves a PENDING entry to a terminal status. It returns false when
	// the entry is no longer pending.
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, notes, txHash *string) (bool, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   *uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ReferralRepository persists referral edges.
type ReferralRepository interface {
	// UpsertCommission creates the edge with amount as its initial total, or adds
	// amount to the existing edge. The stored level is never changed.
	UpsertCommission(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID, level int, amount decimal.Decimal) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]domain.ReferralEdge, error)
	LevelStats(ctx context.Context, referrerID uuid.UUID) ([]domain.LevelStats, error)
}

// MilestoneRepository persists milestone progression.
type MilestoneRepository interface {
	// Create inserts milestone unless (user_id, level) exists. Returns true if inserted.
	Create(ctx context.Context, tx pgx.Tx, milestone *domain.Milestone) (bool, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Milestone, error)
	// MarkClaimed returns false when the milestone was already claimed.
	MarkClaimed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error)
}

// IdempotencyRepository is the durable at-most-once guard.
type IdempotencyRepository interface {
	// Claim inserts the log. Returns false if the key is already taken.
	Claim(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) (bool, error)
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// ProcessedTxRepository is the durable set of credited on-chain transaction hashes.
type ProcessedTxRepository interface {
	// Claim records the hash. Returns false if it was already processed.
	Claim(ctx context.Context, tx pgx.Tx, p *domain.ProcessedChainTx) (bool, error)
	Exists(ctx context.Context, txHash string) (bool, error)
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
