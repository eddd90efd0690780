package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount is rounded to.
// It matches the precision of on-chain USDT amounts.
const MoneyScale = 6

// RoundMoney rounds d to MoneyScale places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ErrInsufficientBalance is returned by a guarded balance update that would
// take available or pending below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Wallet is the one-per-account balance record.
// Available never drops below zero; Pending holds funds reserved by pending withdrawals.
type Wallet struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Available      decimal.Decimal `json:"available"`
	Pending        decimal.Decimal `json:"pending"`
	DepositAddress string          `json:"deposit_address"`
	EncryptedKey   string          `json:"-"` // AES-256 encrypted custodial key, never expose
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Balance is the read view of a wallet.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
}

// Balance returns the wallet's current balances.
func (w *Wallet) Balance() Balance {
	return Balance{Available: w.Available, Pending: w.Pending}
}

// CanCover reports whether the available balance covers amount.
func (w *Wallet) CanCover(amount decimal.Decimal) bool {
	return w.Available.GreaterThanOrEqual(amount)
}
