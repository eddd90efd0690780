package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event names published on the ledger event bus.
const (
	EventDepositCompleted   = "deposit.completed"
	EventWithdrawalResolved = "withdrawal.resolved"
	EventCommissionPaid     = "commission.paid"
)

// Event is a fact the ledger emits after a commit.
type Event interface {
	EventName() string
	// PartitionKey groups events of one user.
	PartitionKey() string
}

// DepositCompleted is emitted once per deposit that became COMPLETED.
type DepositCompleted struct {
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e DepositCompleted) EventName() string    { return EventDepositCompleted }
func (e DepositCompleted) PartitionKey() string { return e.UserID.String() }

// WithdrawalResolved is emitted when a withdrawal reaches a terminal status.
type WithdrawalResolved struct {
	UserID        uuid.UUID         `json:"user_id"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	TxHash        *string           `json:"tx_hash,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func (e WithdrawalResolved) EventName() string    { return EventWithdrawalResolved }
func (e WithdrawalResolved) PartitionKey() string { return e.UserID.String() }

// CommissionPaid is emitted per credited level of a cascade.
type CommissionPaid struct {
	ReferrerID           uuid.UUID       `json:"referrer_id"`
	FromUserID           uuid.UUID       `json:"from_user_id"`
	DepositTransactionID uuid.UUID       `json:"deposit_transaction_id"`
	TransactionID        uuid.UUID       `json:"transaction_id"`
	Level                int             `json:"level"`
	Amount               decimal.Decimal `json:"amount"`
	OccurredAt           time.Time       `json:"occurred_at"`
}

func (e CommissionPaid) EventName() string    { return EventCommissionPaid }
func (e CommissionPaid) PartitionKey() string { return e.ReferrerID.String() }
