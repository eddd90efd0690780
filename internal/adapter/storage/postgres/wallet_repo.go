package postgres

import (
	"context"
	"errors"
	"fmt"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, available, pending, deposit_address, encrypted_key, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet within a database transaction.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.Available, w.Pending,
		w.DepositAddress, w.EncryptedKey, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by owner (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, userID), "get wallet by user")
}

// GetByUserIDForUpdate fetches a wallet by owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, userID), "get wallet for update")
}

// Adjust adds the deltas to both balances in one statement. The WHERE guard
// refuses any change that would leave a balance negative, in which case no
// row is returned and domain.ErrInsufficientBalance is reported.
func (r *WalletRepo) Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, deltaAvailable, deltaPending decimal.Decimal) (*domain.Wallet, error) {
	query := `UPDATE wallets
		SET available = available + $2, pending = pending + $3, updated_at = NOW()
		WHERE user_id = $1 AND available + $2 >= 0 AND pending + $3 >= 0
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, userID, deltaAvailable, deltaPending), "adjust wallet")
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrInsufficientBalance
	}
	return w, nil
}

// SetBalance overwrites both balances within a transaction.
func (r *WalletRepo) SetBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, available, pending decimal.Decimal) error {
	query := `UPDATE wallets SET available = $2, pending = $3, updated_at = NOW() WHERE user_id = $1`

	tag, err := tx.Exec(ctx, query, userID, available, pending)
	if err != nil {
		return fmt.Errorf("set wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found for user: %s", userID)
	}
	return nil
}

// ListDepositAddresses returns the address of every wallet for the deposit scanner.
func (r *WalletRepo) ListDepositAddresses(ctx context.Context) ([]ports.DepositAddress, error) {
	query := `SELECT user_id, deposit_address FROM wallets WHERE deposit_address <> '' ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deposit addresses: %w", err)
	}
	defer rows.Close()

	var out []ports.DepositAddress
	for rows.Next() {
		var d ports.DepositAddress
		if err := rows.Scan(&d.UserID, &d.Address); err != nil {
			return nil, fmt.Errorf("scan deposit address: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deposit addresses: %w", err)
	}
	return out, nil
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.Available, &w.Pending,
		&w.DepositAddress, &w.EncryptedKey, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w, nil
}
