package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletServiceImpl performs admin corrections of available balance.
type WalletServiceImpl struct {
	txManager  ports.DBTransactor
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	notifier   ports.NotificationService
	log        zerolog.Logger
}

func NewWalletService(
	txManager ports.DBTransactor,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	notifier ports.NotificationService,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		txManager:  txManager,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		notifier:   notifier,
		log:        log,
	}
}

// AdjustBalance changes available balance by a signed delta or sets it to an
// absolute value, and records the difference as an ADMIN_ADJUSTMENT entry.
// Pending is never touched.
func (s *WalletServiceImpl) AdjustBalance(ctx context.Context, req ports.AdjustBalanceRequest) (*domain.Transaction, error) {
	if (req.Adjustment == nil) == (req.NewBalance == nil) {
		return nil, apperror.Validation("exactly one of adjustment or new_balance is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperror.Validation("reason is required")
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin adjust tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	previous := wallet.Available
	var next decimal.Decimal
	if req.Adjustment != nil {
		next = previous.Add(domain.RoundMoney(*req.Adjustment))
	} else {
		next = domain.RoundMoney(*req.NewBalance)
	}
	if next.IsNegative() {
		return nil, apperror.Validation("resulting balance would be negative")
	}
	delta := next.Sub(previous)
	if delta.IsZero() {
		return nil, apperror.Validation("adjustment does not change the balance")
	}

	if err := s.walletRepo.SetBalance(ctx, dbTx, req.UserID, next, wallet.Pending); err != nil {
		return nil, internalErr("set balance", err)
	}

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:     uuid.New(),
		UserID: req.UserID,
		Type:   domain.TransactionTypeAdminAdjustment,
		Amount: delta,
		Status: domain.TransactionStatusCompleted,
		Details: &domain.AdjustmentDetails{
			Reason:   reason,
			AdminID:  req.AdminID,
			Previous: previous,
			New:      next,
		},
		Notes:      &reason,
		CreatedAt:  now,
		ResolvedAt: &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, internalErr("create adjustment", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit adjust: %w", err))
	}

	s.notifier.Notify(ctx, req.UserID, "Balance adjusted",
		fmt.Sprintf("Your balance was adjusted from %s to %s USDT: %s", previous, next, reason), domain.SeverityInfo)
	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("admin_id", req.AdminID.String()).
		Str("delta", delta.String()).
		Msg("balance adjusted")

	return entry, nil
}
