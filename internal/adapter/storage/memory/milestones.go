package memory

import (
	"context"
	"sort"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MilestoneRepo implements ports.MilestoneRepository.
type MilestoneRepo struct{ s *Store }

func (r *MilestoneRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Milestone) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.milestones {
		if existing.UserID == m.UserID && existing.Level == m.Level {
			return false, nil
		}
	}
	cp := *m
	r.s.milestones[m.ID] = &cp
	record(tx, func() { delete(r.s.milestones, m.ID) })
	return true, nil
}

func (r *MilestoneRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Milestone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.milestones[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MilestoneRepo) MarkClaimed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.milestones[id]
	if !ok || m.Claimed {
		return false, nil
	}
	prev := *m
	m.Claimed = true
	m.ClaimedAt = &at
	record(tx, func() { *m = prev })
	return true, nil
}

func (r *MilestoneRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Milestone
	for _, m := range r.s.milestones {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}
