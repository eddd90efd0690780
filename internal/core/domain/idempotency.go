package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog marks a ledger effect that must happen at most once.
type IdempotencyLog struct {
	Key           string    `json:"key"`
	TransactionID uuid.UUID `json:"transaction_id"` // Ledger entry produced under this key
	ResponseJSON  []byte    `json:"response_json,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildCommissionKey constructs the key guarding one level of one deposit's cascade.
func BuildCommissionKey(depositTxID uuid.UUID, level int) string {
	return fmt.Sprintf("commission:%s:%d", depositTxID, level)
}

// ProcessedChainTx records an on-chain transfer that has already been credited.
type ProcessedChainTx struct {
	TxHash        string    `json:"tx_hash"`
	UserID        uuid.UUID `json:"user_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}
