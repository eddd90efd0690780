package postgres

import (
	"context"
	"errors"
	"fmt"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, email, password_hash, full_name, role, email_verified,
	verification_token, referral_code, referred_by, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account within a database transaction.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.FullName, a.Role, a.EmailVerified,
		a.VerificationToken, a.ReferralCode, a.ReferredBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account by its UUID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id), "get account by id")
}

// GetByEmail fetches an account by its email address.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, email), "get account by email")
}

// GetByReferralCode fetches the account owning a referral code.
func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, code), "get account by referral code")
}

// GetByVerificationToken fetches an unverified account by its email token.
func (r *AccountRepo) GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE verification_token = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, token), "get account by verification token")
}

// MarkVerified flags the email as verified, clears the token and assigns the
// referral code. A code that is already set is kept.
func (r *AccountRepo) MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, referralCode string) error {
	query := `UPDATE accounts
		SET email_verified = TRUE, verification_token = NULL,
		    referral_code = COALESCE(referral_code, $2), updated_at = NOW()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, referralCode)
	if err != nil {
		return fmt.Errorf("mark account verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

// ListAdmins returns every admin account.
func (r *AccountRepo) ListAdmins(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []domain.Account
	for rows.Next() {
		a, err := r.scanAccount(rows, "scan admin row")
		if err != nil {
			return nil, err
		}
		admins = append(admins, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin rows: %w", err)
	}
	return admins, nil
}

// CountReferrals counts accounts directly referred by referrerID.
func (r *AccountRepo) CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE referred_by = $1`

	var n int64
	if err := r.pool.QueryRow(ctx, query, referrerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

// CountActiveReferrals counts direct referrals that have completed at least one deposit.
func (r *AccountRepo) CountActiveReferrals(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM accounts a
		WHERE a.referred_by = $1
		  AND EXISTS (
		      SELECT 1 FROM transactions t
		      WHERE t.user_id = a.id AND t.type = $2 AND t.status = $3
		  )`

	var n int64
	err := r.pool.QueryRow(ctx, query, referrerID, domain.TransactionTypeDeposit, domain.TransactionStatusCompleted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active referrals: %w", err)
	}
	return n, nil
}

func (r *AccountRepo) scanAccount(row pgx.Row, op string) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &a.Role, &a.EmailVerified,
		&a.VerificationToken, &a.ReferralCode, &a.ReferredBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}
