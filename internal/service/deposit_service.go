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
	depositClaimNamespace = "deposit"
	depositClaimTTL       = 10 * time.Minute
)

// DepositServiceImpl credits deposits. Every credit goes through
// CompleteDeposit so each one emits exactly one DepositCompleted event.
type DepositServiceImpl struct {
	txManager     ports.DBTransactor
	accountRepo   ports.AccountRepository
	walletRepo    ports.WalletRepository
	txRepo        ports.TransactionRepository
	processedRepo ports.ProcessedTxRepository
	claims        ports.ClaimStore // optional fast path in front of processedRepo
	chain         ports.ChainClient
	notifier      ports.NotificationService
	bus           ports.EventBus
	metrics       ports.LedgerMetrics
	usdtContract  string
	lookback      time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(
	txManager ports.DBTransactor,
	accountRepo ports.AccountRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	processedRepo ports.ProcessedTxRepository,
	claims ports.ClaimStore,
	chain ports.ChainClient,
	notifier ports.NotificationService,
	bus ports.EventBus,
	metrics ports.LedgerMetrics,
	usdtContract string,
	lookback time.Duration,
	log zerolog.Logger,
) *DepositServiceImpl {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &DepositServiceImpl{
		txManager:     txManager,
		accountRepo:   accountRepo,
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		processedRepo: processedRepo,
		claims:        claims,
		chain:         chain,
		notifier:      notifier,
		bus:           busOrNop(bus),
		metrics:       metricsOrNop(metrics),
		usdtContract:  usdtContract,
		lookback:      lookback,
		log:           log,
		now:           time.Now,
	}
}

// CompleteDeposit credits a deposit once. A chain deposit is keyed by its
// transaction hash; a hash that was already credited returns PAY_003.
func (s *DepositServiceImpl) CompleteDeposit(ctx context.Context, req domain.DepositRequest) (*domain.Transaction, error) {
	amount := domain.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	details := &domain.DepositDetails{
		Source:      req.Source,
		Network:     req.Network,
		FromAddress: req.FromAddress,
		AdminID:     req.AdminID,
	}
	switch req.Source {
	case domain.DepositSourceChain:
		if req.TxHash == "" {
			return nil, apperror.Validation("chain deposit requires tx hash")
		}
		if details.Network == "" {
			details.Network = domain.NetworkTRC20
		}
	case domain.DepositSourceAdmin:
		if req.AdminID == nil {
			return nil, apperror.Validation("admin deposit requires admin id")
		}
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown deposit source %q", req.Source))
	}

	account, err := s.accountRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, internalErr("load account", err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	claimedHash := false
	if req.TxHash != "" && s.claims != nil {
		claimed, err := s.claims.Claim(ctx, depositClaimNamespace, req.TxHash, depositClaimTTL)
		switch {
		case err != nil:
			// The processed set below is authoritative.
			s.log.Warn().Err(err).Str("tx_hash", req.TxHash).Msg("deposit claim check failed")
		case !claimed:
			return nil, apperror.ErrDuplicateTransaction()
		default:
			claimedHash = true
		}
	}

	entry, err := s.credit(ctx, req, amount, details)
	if err != nil {
		if claimedHash {
			if relErr := s.claims.Release(context.WithoutCancel(ctx), depositClaimNamespace, req.TxHash); relErr != nil {
				s.log.Warn().Err(relErr).Str("tx_hash", req.TxHash).Msg("failed to release deposit claim")
			}
		}
		return nil, err
	}

	s.metrics.DepositCompleted(req.Source)
	s.bus.Publish(ctx, domain.DepositCompleted{
		UserID:        req.UserID,
		Amount:        amount,
		TransactionID: entry.ID,
		OccurredAt:    entry.CreatedAt,
	})
	s.notifier.Notify(ctx, req.UserID, "Deposit received",
		fmt.Sprintf("%s USDT has been credited to your balance.", amount), domain.SeveritySuccess)

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", amount.String()).
		Str("source", string(req.Source)).
		Str("tx_hash", req.TxHash).
		Msg("deposit completed")

	return entry, nil
}

func (s *DepositServiceImpl) credit(ctx context.Context, req domain.DepositRequest, amount decimal.Decimal, details *domain.DepositDetails) (*domain.Transaction, error) {
	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin deposit tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.Integrity(fmt.Sprintf("user %s has no wallet", req.UserID))
	}

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Type:       domain.TransactionTypeDeposit,
		Amount:     amount,
		Status:     domain.TransactionStatusCompleted,
		Details:    details,
		TxHash:     strPtrOrNil(req.TxHash),
		Notes:      strPtrOrNil(req.Notes),
		CreatedAt:  now,
		ResolvedAt: &now,
	}

	if req.TxHash != "" {
		fresh, err := s.processedRepo.Claim(ctx, dbTx, &domain.ProcessedChainTx{
			TxHash:        req.TxHash,
			UserID:        req.UserID,
			TransactionID: entry.ID,
			CreatedAt:     now,
		})
		if err != nil {
			return nil, internalErr("record processed hash", err)
		}
		if !fresh {
			return nil, apperror.ErrDuplicateTransaction()
		}
	}

	if _, err := s.walletRepo.Adjust(ctx, dbTx, req.UserID, amount, decimal.Zero); err != nil {
		return nil, internalErr("credit deposit", err)
	}
	if err := s.txRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, internalErr("create deposit", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit deposit: %w", err))
	}
	return entry, nil
}

// CheckForDeposits credits every unseen USDT transfer into address within the
// lookback window. It returns how many were credited; per-transfer failures
// are joined into the error and do not stop the rest.
func (s *DepositServiceImpl) CheckForDeposits(ctx context.Context, userID uuid.UUID, address string) (int, error) {
	if s.chain == nil {
		return 0, apperror.Validation("chain client is not configured")
	}

	since := s.now().Add(-s.lookback).UnixMilli()
	transfers, err := s.chain.ListIncomingTransfers(ctx, address, since)
	if err != nil {
		return 0, apperror.ExternalService("list chain transfers", err)
	}

	var (
		credited int
		errs     []error
	)
	for _, t := range transfers {
		if t.TokenContract != s.usdtContract || t.To != address || !t.Amount.IsPositive() || t.TxHash == "" {
			continue
		}

		seen, err := s.processedRepo.Exists(ctx, t.TxHash)
		if err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", t.TxHash, err))
			continue
		}
		if seen {
			continue
		}

		_, err = s.CompleteDeposit(ctx, domain.DepositRequest{
			UserID:      userID,
			Amount:      t.Amount,
			TxHash:      t.TxHash,
			Source:      domain.DepositSourceChain,
			Network:     domain.NetworkTRC20,
			FromAddress: t.From,
		})
		switch {
		case err == nil:
			credited++
		case apperror.Is(err, apperror.CodeDuplicate):
		default:
			errs = append(errs, fmt.Errorf("credit %s: %w", t.TxHash, err))
		}
	}

	if len(errs) > 0 {
		s.log.Warn().
			Str("user_id", userID.String()).
			Int("credited", credited).
			Int("failed", len(errs)).
			Msg("deposit check finished with errors")
	}
	return credited, errors.Join(errs...)
}
