package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("insert account: email %q already exists", a.Email)
		}
		if a.HasReferralCode() && existing.HasReferralCode() && *existing.ReferralCode == *a.ReferralCode {
			return fmt.Errorf("insert account: referral code already exists")
		}
	}
	cp := *a
	r.s.accounts[a.ID] = &cp
	record(tx, func() { delete(r.s.accounts, a.ID) })
	return nil
}

func (r *AccountRepo) find(match func(*domain.Account) bool) *domain.Account {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if match(a) {
			cp := *a
			return &cp
		}
	}
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id }), nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email }), nil
}

func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.HasReferralCode() && *a.ReferralCode == code }), nil
}

func (r *AccountRepo) GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.VerificationToken != nil && *a.VerificationToken == token }), nil
}

func (r *AccountRepo) MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, referralCode string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %s", id)
	}
	prev := *a
	a.EmailVerified = true
	a.VerificationToken = nil
	if !a.HasReferralCode() {
		code := referralCode
		a.ReferralCode = &code
	}
	a.UpdatedAt = time.Now().UTC()
	record(tx, func() { *a = prev })
	return nil
}

func (r *AccountRepo) ListAdmins(ctx context.Context) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var admins []domain.Account
	for _, a := range r.s.accounts {
		if a.IsAdmin() {
			admins = append(admins, *a)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].CreatedAt.Before(admins[j].CreatedAt) })
	return admins, nil
}

func (r *AccountRepo) CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, a := range r.s.accounts {
		if a.ReferredBy != nil && *a.ReferredBy == referrerID {
			n++
		}
	}
	return n, nil
}

func (r *AccountRepo) CountActiveReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	deposited := make(map[uuid.UUID]bool)
	for _, t := range r.s.transactions {
		if t.Type == domain.TransactionTypeDeposit && t.Status == domain.TransactionStatusCompleted {
			deposited[t.UserID] = true
		}
	}

	var n int64
	for _, a := range r.s.accounts {
		if a.ReferredBy != nil && *a.ReferredBy == referrerID && deposited[a.ID] {
			n++
		}
	}
	return n, nil
}

// PutAccount stores a as-is, replacing any account with the same ID.
// It skips uniqueness checks and is meant for fixtures and data repair.
func (s *Store) PutAccount(a *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}
