package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const milestoneColumns = `id, user_id, level, target, reward, claimed, claimed_at, created_at`

// MilestoneRepo implements ports.MilestoneRepository.
type MilestoneRepo struct {
	pool Pool
}

// NewMilestoneRepo creates a new MilestoneRepo.
func NewMilestoneRepo(pool Pool) *MilestoneRepo {
	return &MilestoneRepo{pool: pool}
}

// Create inserts m unless the user already has a milestone at that level.
func (r *MilestoneRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Milestone) (bool, error) {
	query := `INSERT INTO milestones (` + milestoneColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, level) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		m.ID, m.UserID, m.Level, m.Target, m.Reward, m.Claimed, m.ClaimedAt, m.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert milestone: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByIDForUpdate fetches a milestone with pessimistic locking.
func (r *MilestoneRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1 FOR UPDATE`

	m := &domain.Milestone{}
	err := tx.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.UserID, &m.Level, &m.Target, &m.Reward, &m.Claimed, &m.ClaimedAt, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get milestone for update: %w", err)
	}
	return m, nil
}

// MarkClaimed flips claimed exactly once.
func (r *MilestoneRepo) MarkClaimed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE milestones SET claimed = TRUE, claimed_at = $2 WHERE id = $1 AND claimed = FALSE`

	tag, err := tx.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark milestone claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the user's milestones in level order.
func (r *MilestoneRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE user_id = $1 ORDER BY level`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.UserID, &m.Level, &m.Target, &m.Reward, &m.Claimed, &m.ClaimedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}
