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
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct{ s *Store }

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.wallets[w.UserID]; ok {
		return fmt.Errorf("insert wallet: user %s already has a wallet", w.UserID)
	}
	cp := *w
	r.s.wallets[w.UserID] = &cp
	record(tx, func() { delete(r.s.wallets, w.UserID) })
	return nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// GetByUserIDForUpdate is a plain read; the transaction lock already excludes other writers.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, deltaAvailable, deltaPending decimal.Decimal) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, domain.ErrInsufficientBalance
	}
	available := w.Available.Add(deltaAvailable)
	pending := w.Pending.Add(deltaPending)
	if available.IsNegative() || pending.IsNegative() {
		return nil, domain.ErrInsufficientBalance
	}

	prev := *w
	w.Available = available
	w.Pending = pending
	w.UpdatedAt = time.Now().UTC()
	record(tx, func() { *w = prev })

	cp := *w
	return &cp, nil
}

func (r *WalletRepo) SetBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, available, pending decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found for user: %s", userID)
	}
	prev := *w
	w.Available = available
	w.Pending = pending
	w.UpdatedAt = time.Now().UTC()
	record(tx, func() { *w = prev })
	return nil
}

func (r *WalletRepo) ListDepositAddresses(ctx context.Context) ([]ports.DepositAddress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wallets := make([]*domain.Wallet, 0, len(r.s.wallets))
	for _, w := range r.s.wallets {
		if w.DepositAddress != "" {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].CreatedAt.Before(wallets[j].CreatedAt) })

	out := make([]ports.DepositAddress, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, ports.DepositAddress{UserID: w.UserID, Address: w.DepositAddress})
	}
	return out, nil
}
