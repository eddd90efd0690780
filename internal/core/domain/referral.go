package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxReferralLevel is the deepest ancestor that earns commission on a deposit.
const MaxReferralLevel = 3

// ReferralEdge is the (referrer, referred) relationship with the commission it has paid so far.
// Level is the chain distance fixed when the edge is first created.
type ReferralEdge struct {
	ID               uuid.UUID       `json:"id"`
	ReferrerID       uuid.UUID       `json:"referrer_id"`
	ReferredID       uuid.UUID       `json:"referred_id"`
	Level            int             `json:"level"`
	CommissionEarned decimal.Decimal `json:"commission_earned"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LevelStats aggregates the edges of one level for a referrer.
type LevelStats struct {
	Level  int             `json:"level"`
	Count  int64           `json:"count"`
	Earned decimal.Decimal `json:"earned"`
}

// ReferralStats is the referral dashboard of one user.
type ReferralStats struct {
	ReferralCode    string          `json:"referral_code,omitempty"`
	DirectReferrals int64           `json:"direct_referrals"`
	ActiveReferrals int64           `json:"active_referrals"`
	TotalEarned     decimal.Decimal `json:"total_earned"`
	Levels          []LevelStats    `json:"levels"`
}
