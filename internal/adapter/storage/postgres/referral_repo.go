package postgres

import (
	"context"
	"fmt"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ReferralRepo implements ports.ReferralRepository.
type ReferralRepo struct {
	pool Pool
}

// NewReferralRepo creates a new ReferralRepo.
func NewReferralRepo(pool Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

// UpsertCommission creates the (referrer, referred) edge or accumulates onto it.
// The conflict branch never touches level.
func (r *ReferralRepo) UpsertCommission(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID, level int, amount decimal.Decimal) error {
	query := `INSERT INTO referral_edges (id, referrer_id, referred_id, level, commission_earned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (referrer_id, referred_id)
		DO UPDATE SET commission_earned = referral_edges.commission_earned + EXCLUDED.commission_earned,
		              updated_at = NOW()`

	_, err := tx.Exec(ctx, query, uuid.New(), referrerID, referredID, level, amount)
	if err != nil {
		return fmt.Errorf("upsert referral edge: %w", err)
	}
	return nil
}

// ListByReferrer returns every edge where referrerID earns commission.
func (r *ReferralRepo) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]domain.ReferralEdge, error) {
	query := `SELECT id, referrer_id, referred_id, level, commission_earned, created_at, updated_at
		FROM referral_edges WHERE referrer_id = $1 ORDER BY level, created_at`

	rows, err := r.pool.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referral edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.ReferralEdge
	for rows.Next() {
		var e domain.ReferralEdge
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &e.Level, &e.CommissionEarned, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan referral edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referral edges: %w", err)
	}
	return edges, nil
}

// LevelStats aggregates edge count and earned commission per level.
func (r *ReferralRepo) LevelStats(ctx context.Context, referrerID uuid.UUID) ([]domain.LevelStats, error) {
	query := `SELECT level, COUNT(*), COALESCE(SUM(commission_earned), 0)
		FROM referral_edges WHERE referrer_id = $1 GROUP BY level ORDER BY level`

	rows, err := r.pool.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("referral level stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.LevelStats
	for rows.Next() {
		var s domain.LevelStats
		if err := rows.Scan(&s.Level, &s.Count, &s.Earned); err != nil {
			return nil, fmt.Errorf("scan level stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level stats: %w", err)
	}
	return stats, nil
}
