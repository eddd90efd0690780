package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing of outbound requests.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ClaimStore is a short-lived first-writer-wins set.
type ClaimStore interface {
	// Claim atomically sets key in namespace if absent.
	// Returns true if this caller claimed it, false if it was already taken.
	Claim(ctx context.Context, namespace string, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, namespace string, key string) error
	// Held reports whether key is currently claimed.
	Held(ctx context.Context, namespace string, key string) (bool, error)
}

// RateLimitStore counts requests in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// LedgerMetrics records business counters.
type LedgerMetrics interface {
	CommissionPayment(level int, result string)
	WithdrawalResolved(status domain.TransactionStatus)
	DepositCompleted(source domain.DepositSource)
}

// --- External collaborators ---

// ChainClient reads token transfers from the blockchain.
type ChainClient interface {
	ListIncomingTransfers(ctx context.Context, address string, sinceMs int64) ([]domain.ChainTransfer, error)
}

// PayoutResult is the definitive answer of the payout service.
// A returned error instead means the outcome is unknown.
type PayoutResult struct {
	Success bool
	TxHash  string
	Error   string
}

// PayoutClient sends tokens from the hot wallet.
type PayoutClient interface {
	SendTokens(ctx context.Context, toAddress string, amount decimal.Decimal, network domain.Network) (*PayoutResult, error)
}

// AddressProvider allocates custodial deposit addresses.
type AddressProvider interface {
	NewDepositAddress(ctx context.Context, userID uuid.UUID) (address string, privateKey string, err error)
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// EventHandler reacts to one published event.
type EventHandler func(ctx context.Context, evt domain.Event) error

// EventBus dispatches ledger events in process.
type EventBus interface {
	Subscribe(eventName string, handler EventHandler)
	Publish(ctx context.Context, evt domain.Event)
}

// EventPublisher forwards events to an external stream.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
	Close() error
}

// --- Service Ports (Business Logic) ---

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	VerifyEmail(ctx context.Context, token string) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Email        string
	Password     string
	FullName     string
	ReferralCode string // Optional code of the referrer
}

// ReportingService exposes read views of the ledger.
type ReportingService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// WalletService performs admin balance changes.
type WalletService interface {
	AdjustBalance(ctx context.Context, req AdjustBalanceRequest) (*domain.Transaction, error)
}

// AdjustBalanceRequest sets either Adjustment (signed delta) or NewBalance (absolute).
type AdjustBalanceRequest struct {
	AdminID    uuid.UUID
	UserID     uuid.UUID
	Adjustment *decimal.Decimal
	NewBalance *decimal.Decimal
	Reason     string
}

// CommissionService pays the referral cascade of a completed deposit.
type CommissionService interface {
	PayCascade(ctx context.Context, evt domain.DepositCompleted) (*CascadeResult, error)
}

// SweepStats summarizes one commission sweep over recent deposits.
type SweepStats struct {
	Deposits int
	Paid     int // Levels credited by this sweep
	Failed   int // Deposits whose cascade stopped on an error
}

// CascadeResult reports what one cascade run did per level.
type CascadeResult struct {
	Paid    []domain.Transaction
	Skipped []int // Levels already paid by an earlier run
}

// WithdrawalService drives the withdrawal state machine.
type WithdrawalService interface {
	Request(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error)
	Process(ctx context.Context, req ProcessWithdrawalRequest) (*domain.Transaction, error)
}

// WithdrawalRequest holds validated input for a user withdrawal.
type WithdrawalRequest struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	WalletAddress string
	Network       string
}

// WithdrawalAction is the admin decision on a pending withdrawal.
type WithdrawalAction string

const (
	WithdrawalActionApprove WithdrawalAction = "approve"
	WithdrawalActionReject  WithdrawalAction = "reject"
)

// ProcessWithdrawalRequest holds the admin decision.
// TxHash, when set on approve, is proof of an out-of-band payout.
type ProcessWithdrawalRequest struct {
	AdminID       uuid.UUID
	TransactionID uuid.UUID
	Action        WithdrawalAction
	Notes         string
	TxHash        string
}

// MilestoneService manages referral milestones.
type MilestoneService interface {
	Initialize(ctx context.Context, userID uuid.UUID) error
	Claim(ctx context.Context, milestoneID, userID uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error)
}

// DepositService is the only path that completes deposits.
type DepositService interface {
	CompleteDeposit(ctx context.Context, req domain.DepositRequest) (*domain.Transaction, error)
	CheckForDeposits(ctx context.Context, userID uuid.UUID, address string) (int, error)
}

// ReferralService exposes referral statistics.
type ReferralService interface {
	GetStats(ctx context.Context, userID uuid.UUID) (*domain.ReferralStats, error)
}

// NotificationService delivers fire-and-forget user and operator messages.
type NotificationService interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, severity domain.Severity)
	AlertAdmins(ctx context.Context, title, message string)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
