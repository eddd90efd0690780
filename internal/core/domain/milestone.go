package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMilestoneClaimed      = errors.New("milestone already claimed")
	ErrMilestoneTargetNotMet = errors.New("active referral count below milestone target")
)

// MilestoneTier is one rung of the referral reward ladder.
type MilestoneTier struct {
	Level  int
	Target int
	Reward decimal.Decimal
}

// DefaultMilestoneLadder lists the tiers in level order.
// Claiming level N unlocks level N+1.
var DefaultMilestoneLadder = []MilestoneTier{
	{Level: 1, Target: 5, Reward: decimal.NewFromInt(10)},
	{Level: 2, Target: 10, Reward: decimal.NewFromInt(25)},
	{Level: 3, Target: 25, Reward: decimal.NewFromInt(75)},
	{Level: 4, Target: 50, Reward: decimal.NewFromInt(200)},
	{Level: 5, Target: 100, Reward: decimal.NewFromInt(500)},
}

// TierFor returns the ladder tier for level.
func TierFor(level int) (MilestoneTier, bool) {
	for _, t := range DefaultMilestoneLadder {
		if t.Level == level {
			return t, true
		}
	}
	return MilestoneTier{}, false
}

// Milestone is a per-user, one-time reward unlocked by active referrals.
type Milestone struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Level     int             `json:"level"`
	Target    int             `json:"target"`
	Reward    decimal.Decimal `json:"reward"`
	Claimed   bool            `json:"claimed"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMilestone builds an unclaimed milestone for tier.
func NewMilestone(userID uuid.UUID, tier MilestoneTier) *Milestone {
	return &Milestone{
		ID:        uuid.New(),
		UserID:    userID,
		Level:     tier.Level,
		Target:    tier.Target,
		Reward:    tier.Reward,
		CreatedAt: time.Now().UTC(),
	}
}

// CheckClaim reports why the milestone cannot be claimed with activeReferrals, or nil.
func (m *Milestone) CheckClaim(activeReferrals int64) error {
	if m.Claimed {
		return ErrMilestoneClaimed
	}
	if activeReferrals < int64(m.Target) {
		return ErrMilestoneTargetNotMet
	}
	return nil
}
