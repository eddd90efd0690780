package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChainTransfer is an incoming token transfer observed on chain.
type ChainTransfer struct {
	TxHash        string
	From          string
	To            string
	Amount        decimal.Decimal
	TokenContract string
	BlockTimeMs   int64
}

// DepositRequest is the input of the single deposit completion path.
type DepositRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	TxHash      string // Empty for admin deposits without on-chain proof
	Source      DepositSource
	Network     Network
	FromAddress string
	AdminID     *uuid.UUID
	Notes       string
}
