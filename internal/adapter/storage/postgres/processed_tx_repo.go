package postgres

import (
	"context"
	"fmt"

	"referral-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ProcessedTxRepo implements ports.ProcessedTxRepository.
type ProcessedTxRepo struct {
	pool Pool
}

// NewProcessedTxRepo creates a new ProcessedTxRepo.
func NewProcessedTxRepo(pool Pool) *ProcessedTxRepo {
	return &ProcessedTxRepo{pool: pool}
}

// Claim records an on-chain hash in the same transaction as the deposit credit.
func (r *ProcessedTxRepo) Claim(ctx context.Context, tx pgx.Tx, p *domain.ProcessedChainTx) (bool, error) {
	query := `INSERT INTO processed_transactions (tx_hash, user_id, transaction_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_hash) DO NOTHING`

	tag, err := tx.Exec(ctx, query, p.TxHash, p.UserID, p.TransactionID, p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert processed transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether txHash has already been credited.
func (r *ProcessedTxRepo) Exists(ctx context.Context, txHash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE tx_hash = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, txHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed transaction: %w", err)
	}
	return exists, nil
}
