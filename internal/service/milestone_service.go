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

// MilestoneServiceImpl implements ports.MilestoneService.
type MilestoneServiceImpl struct {
	txManager     ports.DBTransactor
	milestoneRepo ports.MilestoneRepository
	accountRepo   ports.AccountRepository
	walletRepo    ports.WalletRepository
	txRepo        ports.TransactionRepository
	notifier      ports.NotificationService
	log           zerolog.Logger
}

func NewMilestoneService(
	txManager ports.DBTransactor,
	milestoneRepo ports.MilestoneRepository,
	accountRepo ports.AccountRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	notifier ports.NotificationService,
	log zerolog.Logger,
) *MilestoneServiceImpl {
	return &MilestoneServiceImpl{
		txManager:     txManager,
		milestoneRepo: milestoneRepo,
		accountRepo:   accountRepo,
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		notifier:      notifier,
		log:           log,
	}
}

// Initialize creates the first tier for userID. Calling it again is a no-op.
func (s *MilestoneServiceImpl) Initialize(ctx context.Context, userID uuid.UUID) error {
	tier, ok := domain.TierFor(1)
	if !ok {
		return nil
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin milestone tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.milestoneRepo.Create(ctx, dbTx, domain.NewMilestone(userID, tier)); err != nil {
		return internalErr("create first milestone", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit milestone: %w", err))
	}
	return nil
}

// Claim pays the milestone reward once the user has enough active referrals
// and opens the next tier.
func (s *MilestoneServiceImpl) Claim(ctx context.Context, milestoneID, userID uuid.UUID) (*domain.Transaction, error) {
	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin claim tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.milestoneRepo.GetByIDForUpdate(ctx, dbTx, milestoneID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock milestone: %w", err))
	}
	if m == nil || m.UserID != userID {
		return nil, apperror.ErrNotFound("Milestone")
	}

	active, err := s.accountRepo.CountActiveReferrals(ctx, userID)
	if err != nil {
		return nil, internalErr("count active referrals", err)
	}
	switch err := m.CheckClaim(active); {
	case errors.Is(err, domain.ErrMilestoneClaimed):
		return nil, apperror.Conflict("milestone already claimed")
	case errors.Is(err, domain.ErrMilestoneTargetNotMet):
		return nil, apperror.Validation(fmt.Sprintf("milestone needs %d active referrals, have %d", m.Target, active))
	case err != nil:
		return nil, internalErr("check milestone", err)
	}

	now := time.Now().UTC()
	ok, err := s.milestoneRepo.MarkClaimed(ctx, dbTx, m.ID, now)
	if err != nil {
		return nil, internalErr("mark milestone claimed", err)
	}
	if !ok {
		return nil, apperror.Conflict("milestone already claimed")
	}

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.Integrity(fmt.Sprintf("user %s has no wallet", userID))
	}
	if _, err := s.walletRepo.Adjust(ctx, dbTx, userID, m.Reward, decimal.Zero); err != nil {
		return nil, internalErr("credit milestone reward", err)
	}

	entry := &domain.Transaction{
		ID:     uuid.New(),
		UserID: userID,
		Type:   domain.TransactionTypeMilestoneReward,
		Amount: m.Reward,
		Status: domain.TransactionStatusCompleted,
		Details: &domain.MilestoneDetails{
			MilestoneID: m.ID,
			Level:       m.Level,
			Target:      m.Target,
		},
		CreatedAt:  now,
		ResolvedAt: &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, internalErr("create milestone reward", err)
	}

	if next, ok := domain.TierFor(m.Level + 1); ok {
		if _, err := s.milestoneRepo.Create(ctx, dbTx, domain.NewMilestone(userID, next)); err != nil {
			return nil, internalErr("create next milestone", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit claim: %w", err))
	}

	s.notifier.Notify(ctx, userID, "Milestone reached",
		fmt.Sprintf("Level %d milestone claimed: %s USDT credited.", m.Level, m.Reward), domain.SeveritySuccess)
	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("milestone_id", m.ID.String()).
		Int("level", m.Level).
		Msg("milestone claimed")

	return entry, nil
}

func (s *MilestoneServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error) {
	list, err := s.milestoneRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalErr("list milestones", err)
	}
	return list, nil
}
