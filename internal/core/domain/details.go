package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Details is the per-type payload of a ledger entry.
// Each implementation belongs to exactly one TransactionType.
type Details interface {
	Kind() TransactionType
	Validate() error
}

// DepositSource identifies which path completed a deposit.
type DepositSource string

const (
	DepositSourceChain DepositSource = "chain"
	DepositSourceAdmin DepositSource = "admin"
)

type DepositDetails struct {
	Source      DepositSource `json:"source"`
	Network     Network       `json:"network,omitempty"`
	FromAddress string        `json:"from_address,omitempty"`
	AdminID     *uuid.UUID    `json:"admin_id,omitempty"`
}

func (d *DepositDetails) Kind() TransactionType { return TransactionTypeDeposit }

func (d *DepositDetails) Validate() error {
	switch d.Source {
	case DepositSourceChain:
		if d.Network == "" {
			return errors.New("chain deposit requires network")
		}
	case DepositSourceAdmin:
		if d.AdminID == nil {
			return errors.New("admin deposit requires admin id")
		}
	default:
		return fmt.Errorf("unknown deposit source %q", d.Source)
	}
	return nil
}

type WithdrawalDetails struct {
	WalletAddress string          `json:"wallet_address"`
	Network       Network         `json:"network"`
	Fee           decimal.Decimal `json:"fee"`
}

func (d *WithdrawalDetails) Kind() TransactionType { return TransactionTypeWithdrawal }

func (d *WithdrawalDetails) Validate() error {
	if d.Fee.IsNegative() {
		return errors.New("withdrawal fee must not be negative")
	}
	return ValidateAddress(d.Network, d.WalletAddress)
}

type CommissionDetails struct {
	Level                int             `json:"level"`
	FromUserID           uuid.UUID       `json:"from_user_id"`
	DepositTransactionID uuid.UUID       `json:"deposit_transaction_id"`
	Rate                 decimal.Decimal `json:"rate"`
}

func (d *CommissionDetails) Kind() TransactionType { return TransactionTypeReferralCommission }

func (d *CommissionDetails) Validate() error {
	if d.Level < 1 || d.Level > MaxReferralLevel {
		return fmt.Errorf("commission level %d out of range", d.Level)
	}
	if d.FromUserID == uuid.Nil || d.DepositTransactionID == uuid.Nil {
		return errors.New("commission requires source user and deposit")
	}
	if !d.Rate.IsPositive() {
		return errors.New("commission rate must be positive")
	}
	return nil
}

type MilestoneDetails struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	Level       int       `json:"level"`
	Target      int       `json:"target"`
}

func (d *MilestoneDetails) Kind() TransactionType { return TransactionTypeMilestoneReward }

func (d *MilestoneDetails) Validate() error {
	if d.MilestoneID == uuid.Nil || d.Level < 1 {
		return errors.New("milestone reward requires milestone id and level")
	}
	return nil
}

// AdjustmentDetails records an admin balance change.
// Previous and New are the available balance around the change.
type AdjustmentDetails struct {
	Reason   string          `json:"reason"`
	AdminID  uuid.UUID       `json:"admin_id"`
	Previous decimal.Decimal `json:"previous"`
	New      decimal.Decimal `json:"new"`
}

func (d *AdjustmentDetails) Kind() TransactionType { return TransactionTypeAdminAdjustment }

func (d *AdjustmentDetails) Validate() error {
	if d.Reason == "" {
		return errors.New("adjustment requires a reason")
	}
	if d.AdminID == uuid.Nil {
		return errors.New("adjustment requires admin id")
	}
	if d.New.IsNegative() {
		return errors.New("adjusted balance must not be negative")
	}
	return nil
}

// ProfitDetails marks ROI accruals credited by an investment plan.
type ProfitDetails struct {
	PlanID string `json:"plan_id"`
}

func (d *ProfitDetails) Kind() TransactionType { return TransactionTypeProfit }

func (d *ProfitDetails) Validate() error {
	if d.PlanID == "" {
		return errors.New("profit requires plan id")
	}
	return nil
}

// MarshalDetails encodes d for the storage boundary. A nil payload encodes to nil.
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// DecodeDetails decodes raw into the payload type owned by t.
func DecodeDetails(t TransactionType, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var d Details
	switch t {
	case TransactionTypeDeposit:
		d = &DepositDetails{}
	case TransactionTypeWithdrawal:
		d = &WithdrawalDetails{}
	case TransactionTypeReferralCommission:
		d = &CommissionDetails{}
	case TransactionTypeMilestoneReward:
		d = &MilestoneDetails{}
	case TransactionTypeAdminAdjustment:
		d = &AdjustmentDetails{}
	case TransactionTypeProfit:
		d = &ProfitDetails{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionType, t)
	}

	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return d, nil
}
