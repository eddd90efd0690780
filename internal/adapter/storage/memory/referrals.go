package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ReferralRepo implements ports.ReferralRepository.
type ReferralRepo struct{ s *Store }

func (r *ReferralRepo) UpsertCommission(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID, level int, amount decimal.Decimal) error {
	if level < 1 || level > domain.MaxReferralLevel {
		return fmt.Errorf("upsert referral edge: level %d out of range", level)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := edgeKey{referrer: referrerID, referred: referredID}
	now := time.Now().UTC()
	if e, ok := r.s.edges[key]; ok {
		prev := *e
		e.CommissionEarned = e.CommissionEarned.Add(amount)
		e.UpdatedAt = now
		record(tx, func() { *e = prev })
		return nil
	}

	r.s.edges[key] = &domain.ReferralEdge{
		ID:               uuid.New(),
		ReferrerID:       referrerID,
		ReferredID:       referredID,
		Level:            level,
		CommissionEarned: amount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	record(tx, func() { delete(r.s.edges, key) })
	return nil
}

func (r *ReferralRepo) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]domain.ReferralEdge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var edges []domain.ReferralEdge
	for k, e := range r.s.edges {
		if k.referrer == referrerID {
			edges = append(edges, *e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Level != edges[j].Level {
			return edges[i].Level < edges[j].Level
		}
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
	return edges, nil
}

func (r *ReferralRepo) LevelStats(ctx context.Context, referrerID uuid.UUID) ([]domain.LevelStats, error) {
	edges, err := r.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	byLevel := make(map[int]*domain.LevelStats)
	for _, e := range edges {
		s, ok := byLevel[e.Level]
		if !ok {
			s = &domain.LevelStats{Level: e.Level, Earned: decimal.Zero}
			byLevel[e.Level] = s
		}
		s.Count++
		s.Earned = s.Earned.Add(e.CommissionEarned)
	}

	stats := make([]domain.LevelStats, 0, len(byLevel))
	for _, s := range byLevel {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Level < stats[j].Level })
	return stats, nil
}
