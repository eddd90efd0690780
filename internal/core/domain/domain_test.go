package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validTron = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
	validEVM  = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func TestAccount_IsAdmin(t *testing.T) {
	assert.True(t, (&Account{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&Account{Role: RoleUser}).IsAdmin())
}

func TestAccount_HasReferralCode(t *testing.T) {
	code := "AB12CD34"
	empty := ""
	assert.True(t, (&Account{ReferralCode: &code}).HasReferralCode())
	assert.False(t, (&Account{ReferralCode: &empty}).HasReferralCode())
	assert.False(t, (&Account{}).HasReferralCode())
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status TransactionStatus
		want   bool
	}{
		{"pending", TransactionStatusPending, false},
		{"completed", TransactionStatusCompleted, true},
		{"failed", TransactionStatusFailed, true},
		{"rejected", TransactionStatusRejected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Status: tt.status}
			assert.Equal(t, tt.want, tx.IsTerminal())
			assert.True(t, tt.status.Valid())
		})
	}
	assert.False(t, TransactionStatus("REVERSED").Valid())
}

func TestTransaction_Validate(t *testing.T) {
	admin := uuid.New()
	tests := []struct {
		name    string
		tx      Transaction
		wantErr error
	}{
		{
			name: "pending withdrawal",
			tx: Transaction{
				Type: TransactionTypeWithdrawal, Status: TransactionStatusPending, Amount: decimal.NewFromInt(-50),
				Details: &WithdrawalDetails{WalletAddress: validTron, Network: NetworkTRC20, Fee: decimal.NewFromInt(1)},
			},
		},
		{
			name: "positive withdrawal",
			tx: Transaction{
				Type: TransactionTypeWithdrawal, Status: TransactionStatusPending, Amount: decimal.NewFromInt(50),
				Details: &WithdrawalDetails{WalletAddress: validTron, Network: NetworkTRC20, Fee: decimal.NewFromInt(1)},
			},
			wantErr: ErrAmountSign,
		},
		{
			name: "commission with deposit details",
			tx: Transaction{
				Type: TransactionTypeReferralCommission, Status: TransactionStatusCompleted, Amount: decimal.NewFromInt(5),
				Details: &DepositDetails{Source: DepositSourceChain, Network: NetworkTRC20},
			},
			wantErr: ErrDetailsMismatch,
		},
		{
			name:    "deposit without details",
			tx:      Transaction{Type: TransactionTypeDeposit, Status: TransactionStatusCompleted, Amount: decimal.NewFromInt(5)},
			wantErr: ErrDetailsMismatch,
		},
		{
			name: "negative adjustment",
			tx: Transaction{
				Type: TransactionTypeAdminAdjustment, Status: TransactionStatusCompleted, Amount: decimal.NewFromInt(-5),
				Details: &AdjustmentDetails{Reason: "chargeback", AdminID: admin, Previous: decimal.NewFromInt(10), New: decimal.NewFromInt(5)},
			},
		},
		{
			name:    "zero adjustment",
			tx:      Transaction{Type: TransactionTypeAdminAdjustment, Status: TransactionStatusCompleted, Amount: decimal.Zero},
			wantErr: ErrAmountSign,
		},
		{
			name:    "unknown type",
			tx:      Transaction{Type: "PAYMENT", Status: TransactionStatusCompleted, Amount: decimal.NewFromInt(1)},
			wantErr: ErrInvalidTransactionType,
		},
		{
			name:    "profit without details",
			tx:      Transaction{Type: TransactionTypeProfit, Status: TransactionStatusCompleted, Amount: decimal.NewFromInt(1)},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCommissionDetails_Validate(t *testing.T) {
	ok := CommissionDetails{Level: 2, FromUserID: uuid.New(), DepositTransactionID: uuid.New(), Rate: decimal.RequireFromString("0.02")}
	assert.NoError(t, ok.Validate())

	level4 := ok
	level4.Level = 4
	assert.Error(t, level4.Validate())

	noRate := ok
	noRate.Rate = decimal.Zero
	assert.Error(t, noRate.Validate())
}

func TestTransaction_HeldAmount(t *testing.T) {
	tx := &Transaction{
		Type:    TransactionTypeWithdrawal,
		Amount:  decimal.NewFromInt(-200),
		Details: &WithdrawalDetails{WalletAddress: validTron, Network: NetworkTRC20, Fee: decimal.NewFromInt(1)},
	}
	held, err := tx.HeldAmount()
	require.NoError(t, err)
	assert.True(t, held.Equal(decimal.NewFromInt(201)))

	_, err = (&Transaction{Type: TransactionTypeDeposit}).HeldAmount()
	assert.ErrorIs(t, err, ErrDetailsMismatch)
}

func TestDetails_RoundTrip(t *testing.T) {
	in := &CommissionDetails{Level: 1, FromUserID: uuid.New(), DepositTransactionID: uuid.New(), Rate: decimal.RequireFromString("0.05")}
	raw, err := MarshalDetails(in)
	require.NoError(t, err)

	out, err := DecodeDetails(TransactionTypeReferralCommission, raw)
	require.NoError(t, err)
	got, ok := out.(*CommissionDetails)
	require.True(t, ok)
	assert.Equal(t, in.FromUserID, got.FromUserID)
	assert.True(t, in.Rate.Equal(got.Rate))

	nilDetails, err := DecodeDetails(TransactionTypeProfit, []byte("null"))
	require.NoError(t, err)
	assert.Nil(t, nilDetails)

	_, err = DecodeDetails("PAYMENT", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTransactionType)
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		network Network
		address string
		wantErr error
	}{
		{"tron ok", NetworkTRC20, validTron, nil},
		{"tron with zero char", NetworkTRC20, "T0Rabprwbzy45sbavfcjinpjc18kjprtv8", ErrInvalidAddress},
		{"tron short", NetworkTRC20, "TJRab", ErrInvalidAddress},
		{"evm on tron", NetworkTRC20, validEVM, ErrInvalidAddress},
		{"bep20 ok", NetworkBEP20, validEVM, nil},
		{"erc20 ok", NetworkERC20, validEVM, nil},
		{"erc20 missing prefix", NetworkERC20, validEVM[2:], ErrInvalidAddress},
		{"unknown network", "SOL", validEVM, ErrUnsupportedNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.network, tt.address)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork(" trc20 ")
	require.NoError(t, err)
	assert.Equal(t, NetworkTRC20, n)

	_, err = ParseNetwork("btc")
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestMilestone_CheckClaim(t *testing.T) {
	tier, ok := TierFor(1)
	require.True(t, ok)
	m := NewMilestone(uuid.New(), tier)

	assert.ErrorIs(t, m.CheckClaim(int64(tier.Target-1)), ErrMilestoneTargetNotMet)
	assert.NoError(t, m.CheckClaim(int64(tier.Target)))

	m.Claimed = true
	assert.ErrorIs(t, m.CheckClaim(1000), ErrMilestoneClaimed)
}

func TestMilestoneLadder_Ordered(t *testing.T) {
	for i, tier := range DefaultMilestoneLadder {
		assert.Equal(t, i+1, tier.Level)
		if i > 0 {
			assert.Greater(t, tier.Target, DefaultMilestoneLadder[i-1].Target)
		}
	}
	_, ok := TierFor(len(DefaultMilestoneLadder) + 1)
	assert.False(t, ok)
}

func TestBuildCommissionKey(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "commission:550e8400-e29b-41d4-a716-446655440000:2", BuildCommissionKey(id, 2))
}

func TestRoundMoney(t *testing.T) {
	got := RoundMoney(decimal.RequireFromString("0.1234567"))
	assert.Equal(t, "0.123457", got.String())
}

func TestEvents_PartitionKey(t *testing.T) {
	user := uuid.New()
	referrer := uuid.New()
	assert.Equal(t, user.String(), DepositCompleted{UserID: user}.PartitionKey())
	assert.Equal(t, referrer.String(), CommissionPaid{ReferrerID: referrer, FromUserID: user}.PartitionKey())
	assert.Equal(t, EventWithdrawalResolved, WithdrawalResolved{}.EventName())
}
