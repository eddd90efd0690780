package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit            TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal         TransactionType = "WITHDRAWAL"
	TransactionTypeProfit             TransactionType = "PROFIT"
	TransactionTypeReferralCommission TransactionType = "REFERRAL_COMMISSION"
	TransactionTypeMilestoneReward    TransactionType = "MILESTONE_REWARD"
	TransactionTypeAdminAdjustment    TransactionType = "ADMIN_ADJUSTMENT"
)

// Valid returns true for known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeProfit,
		TransactionTypeReferralCommission, TransactionTypeMilestoneReward, TransactionTypeAdminAdjustment:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
)

// Valid returns true for known statuses.
func (s TransactionStatus) Valid() bool {
	return s == TransactionStatusPending || s.IsTerminal()
}

// IsTerminal returns true if no further transition is allowed out of s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted ||
		s == TransactionStatusFailed ||
		s == TransactionStatusRejected
}

var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidStatus          = errors.New("invalid transaction status")
	ErrAmountSign             = errors.New("amount sign does not match transaction type")
	ErrDetailsMismatch        = errors.New("details do not match transaction type")
)

// Transaction is a ledger entry. Once Status is terminal the row is immutable.
// Amount is signed: positive credits the owner, negative debits.
type Transaction struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	Type       TransactionType   `json:"type"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     TransactionStatus `json:"status"`
	Details    Details           `json:"details,omitempty"`
	TxHash     *string           `json:"tx_hash,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsPendingWithdrawal returns true if the transaction is a withdrawal awaiting resolution.
func (t *Transaction) IsPendingWithdrawal() bool {
	return t.Type == TransactionTypeWithdrawal && t.Status == TransactionStatusPending
}

// Validate checks the type, status, amount sign and details payload.
// It is called before every insert.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, t.Type)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}

	switch t.Type {
	case TransactionTypeWithdrawal:
		if !t.Amount.IsNegative() {
			return fmt.Errorf("%w: withdrawal must be negative", ErrAmountSign)
		}
	case TransactionTypeAdminAdjustment:
		if t.Amount.IsZero() {
			return fmt.Errorf("%w: adjustment must be non-zero", ErrAmountSign)
		}
	default:
		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: %s must be positive", ErrAmountSign, t.Type)
		}
	}

	if t.Details == nil {
		if t.Type == TransactionTypeProfit {
			return nil
		}
		return fmt.Errorf("%w: %s requires details", ErrDetailsMismatch, t.Type)
	}
	if t.Details.Kind() != t.Type {
		return fmt.Errorf("%w: %s details on %s", ErrDetailsMismatch, t.Details.Kind(), t.Type)
	}
	return t.Details.Validate()
}

// WithdrawalDetails returns the withdrawal payload, or false for any other kind.
func (t *Transaction) WithdrawalDetails() (*WithdrawalDetails, bool) {
	d, ok := t.Details.(*WithdrawalDetails)
	return d, ok
}

// HeldAmount is what a withdrawal reserved on request: |amount| + fee.
func (t *Transaction) HeldAmount() (decimal.Decimal, error) {
	d, ok := t.WithdrawalDetails()
	if !ok {
		return decimal.Zero, ErrDetailsMismatch
	}
	return t.Amount.Abs().Add(d.Fee), nil
}
