package service

import (
	"context"
	"encoding/json"
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

const commissionCacheTTL = 24 * time.Hour

// Metric results for CommissionPayment.
const (
	commissionPaid    = "paid"
	commissionSkipped = "skipped"
	commissionZero    = "zero"
	commissionError   = "error"
)

// CommissionServiceImpl pays the referral cascade for completed deposits.
type CommissionServiceImpl struct {
	txManager       ports.DBTransactor
	accountRepo     ports.AccountRepository
	walletRepo      ports.WalletRepository
	txRepo          ports.TransactionRepository
	referralRepo    ports.ReferralRepository
	idempotencyRepo ports.IdempotencyRepository
	cache           ports.IdempotencyCache
	bus             ports.EventBus
	metrics         ports.LedgerMetrics
	rates           []decimal.Decimal // index 0 = level 1
	log             zerolog.Logger
}

// NewCommissionService creates a new CommissionServiceImpl.
// cache, bus and metrics may be nil.
func NewCommissionService(
	txManager ports.DBTransactor,
	accountRepo ports.AccountRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	referralRepo ports.ReferralRepository,
	idempotencyRepo ports.IdempotencyRepository,
	cache ports.IdempotencyCache,
	bus ports.EventBus,
	metrics ports.LedgerMetrics,
	rates []decimal.Decimal,
	log zerolog.Logger,
) *CommissionServiceImpl {
	if len(rates) > domain.MaxReferralLevel {
		rates = rates[:domain.MaxReferralLevel]
	}
	return &CommissionServiceImpl{
		txManager:       txManager,
		accountRepo:     accountRepo,
		walletRepo:      walletRepo,
		txRepo:          txRepo,
		referralRepo:    referralRepo,
		idempotencyRepo: idempotencyRepo,
		cache:           cache,
		bus:             busOrNop(bus),
		metrics:         metricsOrNop(metrics),
		rates:           rates,
		log:             log,
	}
}

// HandleEvent subscribes the cascade to DepositCompleted on the event bus.
func (s *CommissionServiceImpl) HandleEvent(ctx context.Context, evt domain.Event) error {
	var dep domain.DepositCompleted
	switch e := evt.(type) {
	case domain.DepositCompleted:
		dep = e
	case *domain.DepositCompleted:
		dep = *e
	default:
		return nil
	}
	_, err := s.PayCascade(ctx, dep)
	return err
}

// PayCascade walks up to three referral ancestors of the depositor and credits
// each the configured share of the deposit. Every level is its own transaction
// guarded by the key commission:<deposit_tx_id>:<level>, so re-running the
// cascade for the same deposit pays nothing twice. A failure stops the walk;
// levels already paid stay paid and the result lists them.
func (s *CommissionServiceImpl) PayCascade(ctx context.Context, evt domain.DepositCompleted) (*ports.CascadeResult, error) {
	result := &ports.CascadeResult{}
	if !evt.Amount.IsPositive() {
		return result, apperror.ErrInvalidAmount()
	}

	current, err := s.accountRepo.GetByID(ctx, evt.UserID)
	if err != nil {
		return result, internalErr("load depositor", err)
	}
	if current == nil {
		return result, apperror.Integrity(fmt.Sprintf("depositor %s has no account", evt.UserID))
	}

	visited := map[uuid.UUID]bool{current.ID: true}

	for i, rate := range s.rates {
		level := i + 1
		if current.ReferredBy == nil {
			break
		}
		ancestorID := *current.ReferredBy
		if visited[ancestorID] {
			s.log.Warn().
				Str("deposit_tx_id", evt.TransactionID.String()).
				Str("user_id", ancestorID.String()).
				Int("level", level).
				Msg("referral cycle detected, stopping cascade")
			break
		}
		visited[ancestorID] = true

		ancestor, err := s.accountRepo.GetByID(ctx, ancestorID)
		if err != nil {
			s.metrics.CommissionPayment(level, commissionError)
			return result, internalErr("load referrer", err)
		}
		if ancestor == nil {
			s.metrics.CommissionPayment(level, commissionError)
			return result, apperror.Integrity(fmt.Sprintf("referrer %s has no account", ancestorID))
		}

		amount := domain.RoundMoney(evt.Amount.Mul(rate))
		if !amount.IsPositive() {
			s.metrics.CommissionPayment(level, commissionZero)
			current = ancestor
			continue
		}

		paid, err := s.payLevel(ctx, evt, ancestor.ID, level, rate, amount)
		switch {
		case err != nil:
			s.metrics.CommissionPayment(level, commissionError)
			s.log.Error().Err(err).
				Str("deposit_tx_id", evt.TransactionID.String()).
				Int("level", level).
				Msg("commission payment failed")
			return result, err
		case paid == nil:
			s.metrics.CommissionPayment(level, commissionSkipped)
			result.Skipped = append(result.Skipped, level)
		default:
			s.metrics.CommissionPayment(level, commissionPaid)
			result.Paid = append(result.Paid, *paid)
			s.bus.Publish(ctx, domain.CommissionPaid{
				ReferrerID:           ancestor.ID,
				FromUserID:           evt.UserID,
				DepositTransactionID: evt.TransactionID,
				TransactionID:        paid.ID,
				Level:                level,
				Amount:               amount,
				OccurredAt:           paid.CreatedAt,
			})
		}

		current = ancestor
	}

	return result, nil
}

// payLevel credits one ancestor. It returns (nil, nil) when the level was
// already paid by an earlier run.
func (s *CommissionServiceImpl) payLevel(
	ctx context.Context,
	evt domain.DepositCompleted,
	referrerID uuid.UUID,
	level int,
	rate, amount decimal.Decimal,
) (*domain.Transaction, error) {
	key := domain.BuildCommissionKey(evt.TransactionID, level)

	// Fast path
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache read failed")
		} else if cached != nil {
			return nil, nil
		}
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin commission tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:     uuid.New(),
		UserID: referrerID,
		Type:   domain.TransactionTypeReferralCommission,
		Amount: amount,
		Status: domain.TransactionStatusCompleted,
		Details: &domain.CommissionDetails{
			Level:                level,
			FromUserID:           evt.UserID,
			DepositTransactionID: evt.TransactionID,
			Rate:                 rate,
		},
		CreatedAt:  now,
		ResolvedAt: &now,
	}

	response, err := json.Marshal(entry)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal commission: %w", err))
	}

	claimed, err := s.idempotencyRepo.Claim(ctx, dbTx, &domain.IdempotencyLog{
		Key:           key,
		TransactionID: entry.ID,
		ResponseJSON:  response,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, internalErr("claim commission key", err)
	}
	if !claimed {
		s.warmCache(ctx, key)
		return nil, nil
	}

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, referrerID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock referrer wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.Integrity(fmt.Sprintf("referrer %s has no wallet", referrerID))
	}

	if _, err := s.walletRepo.Adjust(ctx, dbTx, referrerID, amount, decimal.Zero); err != nil {
		return nil, internalErr("credit commission", err)
	}
	if err := s.txRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, internalErr("create commission entry", err)
	}
	if err := s.referralRepo.UpsertCommission(ctx, dbTx, referrerID, evt.UserID, level, amount); err != nil {
		return nil, internalErr("update referral edge", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.ErrLockTimeout(err)
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit commission: %w", err))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, response, commissionCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to cache commission key")
		}
	}

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("deposit_tx_id", evt.TransactionID.String()).
		Str("referrer_id", referrerID.String()).
		Int("level", level).
		Str("amount", amount.String()).
		Msg("referral commission paid")

	return entry, nil
}

// warmCache copies an already claimed key from the durable log into the
// cache so that later replays of the same deposit skip the transaction.
func (s *CommissionServiceImpl) warmCache(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	existing, err := s.idempotencyRepo.Get(ctx, key)
	if err != nil || existing == nil {
		s.log.Warn().Err(err).Str("key", key).Msg("claimed commission key not readable")
		return
	}
	if err := s.cache.Set(ctx, key, existing.ResponseJSON, commissionCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache commission key")
	}
}

const sweepPageSize = 100

// Sweep re-runs the cascade for every deposit completed since the given
// time. Levels an earlier run paid are skipped by their idempotency keys;
// levels a failed run left unpaid are credited now. Per-deposit failures are
// logged and counted; only a listing failure is returned.
func (s *CommissionServiceImpl) Sweep(ctx context.Context, since time.Time) (ports.SweepStats, error) {
	var stats ports.SweepStats
	until := time.Now().UTC()
	depositType, completed := domain.TransactionTypeDeposit, domain.TransactionStatusCompleted

	for page := 1; ; page++ {
		deposits, _, err := s.txRepo.List(ctx, ports.TransactionListParams{
			Type:     &depositType,
			Status:   &completed,
			From:     &since,
			To:       &until,
			Page:     page,
			PageSize: sweepPageSize,
		})
		if err != nil {
			return stats, internalErr("list deposits for sweep", err)
		}

		for _, dep := range deposits {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Deposits++
			result, err := s.PayCascade(ctx, domain.DepositCompleted{
				UserID:        dep.UserID,
				Amount:        dep.Amount,
				TransactionID: dep.ID,
				OccurredAt:    dep.CreatedAt,
			})
			if result != nil {
				stats.Paid += len(result.Paid)
			}
			if err != nil {
				stats.Failed++
			}
		}
		if len(deposits) < sweepPageSize {
			break
		}
	}

	if stats.Paid > 0 || stats.Failed > 0 {
		s.log.Info().
			Int("deposits", stats.Deposits).
			Int("paid", stats.Paid).
			Int("failed", stats.Failed).
			Msg("commission sweep complete")
	}
	return stats, nil
}
