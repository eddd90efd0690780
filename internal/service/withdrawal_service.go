package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	payoutClaimNamespace   = "withdrawal"
	payoutUnknownNamespace = "withdrawal-unknown"
)

// WithdrawalPolicy holds the withdrawal money rules.
type WithdrawalPolicy struct {
	MinAmount     decimal.Decimal
	Fee           decimal.Decimal
	PayoutTimeout time.Duration
	// ClaimTTL bounds how long a crashed payout attempt holds the lock.
	ClaimTTL time.Duration
	// UnknownOutcomeTTL bounds how long an unanswered payout blocks
	// automatic retries.
	UnknownOutcomeTTL time.Duration
}

// WithdrawalServiceImpl drives a withdrawal from request to a terminal status.
//
// Requesting moves amount+fee from available to pending. Approval releases
// the hold; rejection and failed payouts return it to available.
type WithdrawalServiceImpl struct {
	txManager  ports.DBTransactor
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	claims     ports.ClaimStore
	payout     ports.PayoutClient // nil: approvals require an out-of-band tx hash
	notifier   ports.NotificationService
	bus        ports.EventBus
	metrics    ports.LedgerMetrics
	policy     WithdrawalPolicy
	log        zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	txManager ports.DBTransactor,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	claims ports.ClaimStore,
	payout ports.PayoutClient,
	notifier ports.NotificationService,
	bus ports.EventBus,
	metrics ports.LedgerMetrics,
	policy WithdrawalPolicy,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	if policy.PayoutTimeout <= 0 {
		policy.PayoutTimeout = 30 * time.Second
	}
	if policy.ClaimTTL <= 0 {
		policy.ClaimTTL = 15 * time.Minute
	}
	if policy.UnknownOutcomeTTL <= 0 {
		policy.UnknownOutcomeTTL = 7 * 24 * time.Hour
	}
	return &WithdrawalServiceImpl{
		txManager:  txManager,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		claims:     claims,
		payout:     payout,
		notifier:   notifier,
		bus:        busOrNop(bus),
		metrics:    metricsOrNop(metrics),
		policy:     policy,
		log:        log,
	}
}

// Request places a hold of amount+fee and records a PENDING withdrawal.
func (s *WithdrawalServiceImpl) Request(ctx context.Context, req ports.WithdrawalRequest) (*domain.Transaction, error) {
	amount := domain.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if amount.LessThan(s.policy.MinAmount) {
		return nil, apperror.Validation(fmt.Sprintf("minimum withdrawal is %s", s.policy.MinAmount))
	}

	network, err := domain.ParseNetwork(req.Network)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if err := domain.ValidateAddress(network, req.WalletAddress); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	held := amount.Add(s.policy.Fee)

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin withdrawal tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.Integrity(fmt.Sprintf("user %s has no wallet", req.UserID))
	}
	if !wallet.CanCover(held) {
		return nil, apperror.ErrInsufficientFunds()
	}

	if _, err := s.walletRepo.Adjust(ctx, dbTx, req.UserID, held.Neg(), held); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, apperror.ErrInsufficientFunds()
		}
		return nil, internalErr("hold withdrawal", err)
	}

	entry := &domain.Transaction{
		ID:     uuid.New(),
		UserID: req.UserID,
		Type:   domain.TransactionTypeWithdrawal,
		Amount: amount.Neg(),
		Status: domain.TransactionStatusPending,
		Details: &domain.WithdrawalDetails{
			WalletAddress: req.WalletAddress,
			Network:       network,
			Fee:           s.policy.Fee,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, internalErr("create withdrawal", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit withdrawal: %w", err))
	}

	s.metrics.WithdrawalResolved(domain.TransactionStatusPending)
	s.notifier.Notify(ctx, req.UserID, "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s USDT (%s) is pending review.", amount, network), domain.SeverityInfo)

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", amount.String()).
		Str("held", held.String()).
		Msg("withdrawal requested")

	return entry, nil
}

// Process applies the admin decision. Approve without a tx hash pays out
// through the custody service; the outcome decides COMPLETED or FAILED.
//
// Every decision runs under the payout lock of the withdrawal, so a manual
// resolution can never overlap an automatic payout that is still sending.
func (s *WithdrawalServiceImpl) Process(ctx context.Context, req ports.ProcessWithdrawalRequest) (*domain.Transaction, error) {
	entry, err := s.txRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, internalErr("load withdrawal", err)
	}
	if entry == nil {
		return nil, apperror.ErrNotFound("Transaction")
	}
	if entry.Type != domain.TransactionTypeWithdrawal {
		return nil, apperror.Validation("transaction is not a withdrawal")
	}
	if entry.Status != domain.TransactionStatusPending {
		return nil, apperror.Conflict("withdrawal is not pending")
	}

	switch req.Action {
	case ports.WithdrawalActionReject:
		return s.resolveManually(ctx, entry.ID, domain.TransactionStatusRejected, req.Notes, "")
	case ports.WithdrawalActionApprove:
		if req.TxHash != "" {
			return s.resolveManually(ctx, entry.ID, domain.TransactionStatusCompleted, req.Notes, req.TxHash)
		}
		return s.payOut(ctx, entry, req)
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *WithdrawalServiceImpl) resolveManually(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, notes, txHash string) (*domain.Transaction, error) {
	key := id.String()
	if err := s.lockPayout(ctx, key); err != nil {
		return nil, err
	}
	defer s.unlockPayout(ctx, key)

	resolved, err := s.resolve(ctx, id, status, notes, txHash)
	if err != nil {
		return nil, err
	}
	if err := s.claims.Release(context.WithoutCancel(ctx), payoutUnknownNamespace, key); err != nil {
		s.log.Warn().Err(err).Str("tx_id", key).Msg("failed to clear unknown payout marker")
	}
	return resolved, nil
}

func (s *WithdrawalServiceImpl) payOut(ctx context.Context, entry *domain.Transaction, req ports.ProcessWithdrawalRequest) (*domain.Transaction, error) {
	if s.payout == nil {
		return nil, apperror.Validation("automatic payout is not configured, provide txHash")
	}
	details, ok := entry.WithdrawalDetails()
	if !ok {
		return nil, apperror.Integrity(fmt.Sprintf("withdrawal %s has no details", entry.ID))
	}

	key := entry.ID.String()
	if err := s.lockPayout(ctx, key); err != nil {
		return nil, err
	}
	if err := s.checkPayable(ctx, entry.ID); err != nil {
		s.unlockPayout(ctx, key)
		return nil, err
	}

	payoutCtx, cancel := context.WithTimeout(ctx, s.policy.PayoutTimeout)
	result, err := s.payout.SendTokens(payoutCtx, details.WalletAddress, entry.Amount.Abs(), details.Network)
	cancel()

	if err != nil {
		s.log.Error().Err(err).
			Str("tx_id", key).
			Str("admin_id", req.AdminID.String()).
			Msg("payout outcome unknown")
		s.notifier.AlertAdmins(ctx, "Payout outcome unknown",
			fmt.Sprintf("Withdrawal %s: payout call failed (%v). Verify on chain, then approve with txHash or reject.", entry.ID, err))
		s.markOutcomeUnknown(ctx, key)
		return nil, apperror.ExternalService("payout outcome unknown", err)
	}

	if result.Success {
		return s.settlePaid(ctx, entry, req.Notes, result.TxHash)
	}

	failed, err := s.resolve(ctx, entry.ID, domain.TransactionStatusFailed, result.Error, "")
	s.unlockPayout(ctx, key)
	if err != nil {
		return nil, err
	}
	s.notifier.AlertAdmins(ctx, "Payout failed",
		fmt.Sprintf("Withdrawal %s was refunded: %s", entry.ID, result.Error))
	return failed, nil
}

// checkPayable runs under the payout lock. The withdrawal must still be
// pending and no earlier attempt may have an unresolved outcome.
func (s *WithdrawalServiceImpl) checkPayable(ctx context.Context, id uuid.UUID) error {
	unknown, err := s.claims.Held(ctx, payoutUnknownNamespace, id.String())
	if err != nil {
		return apperror.ErrLockTimeout(fmt.Errorf("check payout outcome: %w", err))
	}
	if unknown {
		return apperror.Conflict("an earlier payout has an unknown outcome, settle it with txHash or reject it")
	}

	current, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return internalErr("reload withdrawal", err)
	}
	if current == nil || current.Status != domain.TransactionStatusPending {
		return apperror.Conflict("withdrawal is not pending")
	}
	return nil
}

// settlePaid records a payout the custody service confirmed. If the ledger
// cannot be updated the tokens are already gone: the attempt is marked
// unknown so nobody pays again, and operators get the chain hash.
func (s *WithdrawalServiceImpl) settlePaid(ctx context.Context, entry *domain.Transaction, notes, txHash string) (*domain.Transaction, error) {
	key := entry.ID.String()
	resolved, err := s.resolve(ctx, entry.ID, domain.TransactionStatusCompleted, notes, txHash)
	if err != nil && !apperror.Is(err, apperror.CodeConflict) {
		resolved, err = s.resolve(context.WithoutCancel(ctx), entry.ID, domain.TransactionStatusCompleted, notes, txHash)
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("tx_id", key).
			Str("chain_tx_hash", txHash).
			Msg("payout sent but not recorded")
		s.notifier.AlertAdmins(context.WithoutCancel(ctx), "Payout not recorded",
			fmt.Sprintf("Withdrawal %s was paid on chain in %s but the ledger update failed (%v). Do not pay again; approve it with txHash %s.",
				entry.ID, txHash, err, txHash))
		s.markOutcomeUnknown(ctx, key)
		return nil, err
	}
	s.unlockPayout(ctx, key)
	return resolved, nil
}

func (s *WithdrawalServiceImpl) lockPayout(ctx context.Context, key string) error {
	claimed, err := s.claims.Claim(ctx, payoutClaimNamespace, key, s.policy.ClaimTTL)
	if err != nil {
		return apperror.ErrLockTimeout(fmt.Errorf("claim payout lock: %w", err))
	}
	if !claimed {
		return apperror.Conflict("payout in progress")
	}
	return nil
}

func (s *WithdrawalServiceImpl) unlockPayout(ctx context.Context, key string) {
	if err := s.claims.Release(context.WithoutCancel(ctx), payoutClaimNamespace, key); err != nil {
		s.log.Warn().Err(err).Str("tx_id", key).Msg("failed to release payout lock")
	}
}

// markOutcomeUnknown swaps the payout lock for the unknown-outcome marker,
// which blocks automatic payouts but lets an admin settle by hand. If the
// marker cannot be set the lock is kept until it expires.
func (s *WithdrawalServiceImpl) markOutcomeUnknown(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.claims.Claim(ctx, payoutUnknownNamespace, key, s.policy.UnknownOutcomeTTL); err != nil {
		s.log.Error().Err(err).Str("tx_id", key).Msg("failed to mark payout outcome unknown, keeping payout lock")
		return
	}
	s.unlockPayout(ctx, key)
}

// resolve moves a pending withdrawal to status and settles the hold in the
// same transaction. The entry is re-read under lock; a concurrent resolver
// gets a conflict.
func (s *WithdrawalServiceImpl) resolve(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, notes, txHash string) (*domain.Transaction, error) {
	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin resolve tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock withdrawal: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrNotFound("Transaction")
	}
	if !entry.IsPendingWithdrawal() {
		return nil, apperror.Conflict("withdrawal is not pending")
	}
	held, err := entry.HeldAmount()
	if err != nil {
		return nil, apperror.Integrity(fmt.Sprintf("withdrawal %s: %v", id, err))
	}

	if wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, entry.UserID); err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	} else if wallet == nil {
		return nil, apperror.Integrity(fmt.Sprintf("user %s has no wallet", entry.UserID))
	}

	notesPtr, hashPtr := strPtrOrNil(notes), strPtrOrNil(txHash)
	ok, err := s.txRepo.Resolve(ctx, dbTx, id, status, notesPtr, hashPtr)
	if err != nil {
		return nil, internalErr("resolve withdrawal", err)
	}
	if !ok {
		return nil, apperror.Conflict("withdrawal is not pending")
	}

	refund := decimal.Zero
	if status != domain.TransactionStatusCompleted {
		refund = held
	}
	if _, err := s.walletRepo.Adjust(ctx, dbTx, entry.UserID, refund, held.Neg()); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, apperror.Integrity(fmt.Sprintf("pending balance of %s below held %s", entry.UserID, held))
		}
		return nil, internalErr("settle hold", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit resolve: %w", err))
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.Notes = notesPtr
	entry.TxHash = hashPtr
	entry.ResolvedAt = &now

	s.metrics.WithdrawalResolved(status)
	s.bus.Publish(ctx, domain.WithdrawalResolved{
		UserID:        entry.UserID,
		TransactionID: entry.ID,
		Status:        status,
		Amount:        entry.Amount,
		TxHash:        hashPtr,
		OccurredAt:    now,
	})
	s.notifyResolved(ctx, entry, held)

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("status", string(status)).
		Str("refunded", refund.String()).
		Msg("withdrawal resolved")

	return entry, nil
}

func (s *WithdrawalServiceImpl) notifyResolved(ctx context.Context, entry *domain.Transaction, held decimal.Decimal) {
	amount := entry.Amount.Abs()
	switch entry.Status {
	case domain.TransactionStatusCompleted:
		s.notifier.Notify(ctx, entry.UserID, "Withdrawal completed",
			fmt.Sprintf("Your withdrawal of %s USDT has been sent.", amount), domain.SeveritySuccess)
	case domain.TransactionStatusRejected:
		s.notifier.Notify(ctx, entry.UserID, "Withdrawal rejected",
			withReason(fmt.Sprintf("Your withdrawal of %s USDT was rejected and %s USDT returned to your balance.", amount, held), entry.Notes),
			domain.SeverityWarning)
	case domain.TransactionStatusFailed:
		s.notifier.Notify(ctx, entry.UserID, "Withdrawal failed",
			withReason(fmt.Sprintf("Your withdrawal of %s USDT could not be sent and %s USDT returned to your balance.", amount, held), entry.Notes),
			domain.SeverityError)
	}
}

func withReason(message string, notes *string) string {
	if notes == nil || *notes == "" {
		return message
	}
	return message + " Reason: " + *notes
}
