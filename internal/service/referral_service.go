package service

import (
	"context"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type referralService struct {
	accountRepo  ports.AccountRepository
	referralRepo ports.ReferralRepository
}

func NewReferralService(accountRepo ports.AccountRepository, referralRepo ports.ReferralRepository) ports.ReferralService {
	return &referralService{accountRepo: accountRepo, referralRepo: referralRepo}
}

// GetStats reports counts and earnings per level. Levels without edges are
// present with zero values.
func (s *referralService) GetStats(ctx context.Context, userID uuid.UUID) (*domain.ReferralStats, error) {
	account, err := s.accountRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, internalErr("load account", err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	direct, err := s.accountRepo.CountReferrals(ctx, userID)
	if err != nil {
		return nil, internalErr("count referrals", err)
	}
	active, err := s.accountRepo.CountActiveReferrals(ctx, userID)
	if err != nil {
		return nil, internalErr("count active referrals", err)
	}
	perLevel, err := s.referralRepo.LevelStats(ctx, userID)
	if err != nil {
		return nil, internalErr("referral level stats", err)
	}

	stats := &domain.ReferralStats{
		DirectReferrals: direct,
		ActiveReferrals: active,
		TotalEarned:     decimal.Zero,
		Levels:          make([]domain.LevelStats, domain.MaxReferralLevel),
	}
	if account.HasReferralCode() {
		stats.ReferralCode = *account.ReferralCode
	}
	for i := range stats.Levels {
		stats.Levels[i] = domain.LevelStats{Level: i + 1, Earned: decimal.Zero}
	}
	for _, ls := range perLevel {
		if ls.Level < 1 || ls.Level > domain.MaxReferralLevel {
			continue
		}
		stats.Levels[ls.Level-1] = ls
		stats.TotalEarned = stats.TotalEarned.Add(ls.Earned)
	}
	return stats, nil
}
