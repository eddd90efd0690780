package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.transactions[t.ID]; ok {
		return fmt.Errorf("insert transaction: duplicate id %s", t.ID)
	}
	if t.TxHash != nil && t.Type == domain.TransactionTypeDeposit {
		for _, existing := range r.s.transactions {
			if existing.Type == domain.TransactionTypeDeposit && existing.TxHash != nil && *existing.TxHash == *t.TxHash {
				return fmt.Errorf("insert transaction: duplicate deposit hash %s", *t.TxHash)
			}
		}
	}
	cp := *t
	r.s.transactions[t.ID] = &cp
	record(tx, func() { delete(r.s.transactions, t.ID) })
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *TransactionRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, notes, txHash *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("resolve to non-terminal status %q", status)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.transactions[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return false, nil
	}
	prev := *t
	now := time.Now().UTC()
	t.Status = status
	if notes != nil {
		t.Notes = notes
	}
	if txHash != nil {
		t.TxHash = txHash
	}
	t.ResolvedAt = &now
	record(tx, func() { *t = prev })
	return true, nil
}

func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	var matched []domain.Transaction
	for _, t := range r.s.transactions {
		if matches(t, params) {
			matched = append(matched, *t)
		}
	}
	r.s.mu.RUnlock()

	// Newest first; ties break on id so that pages do not overlap.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	total := int64(len(matched))
	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matches(t *domain.Transaction, p ports.TransactionListParams) bool {
	switch {
	case p.UserID != nil && t.UserID != *p.UserID:
		return false
	case p.Status != nil && t.Status != *p.Status:
		return false
	case p.Type != nil && t.Type != *p.Type:
		return false
	case p.From != nil && t.CreatedAt.Before(*p.From):
		return false
	case p.To != nil && t.CreatedAt.After(*p.To):
		return false
	}
	return true
}
