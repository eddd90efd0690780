package dto

import (
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Money amounts travel as decimal strings so that JSON numbers never pass
// through float64.

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email,max=254"`
	Password     string `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	FullName     string `json:"full_name" binding:"max=100"`
	ReferralCode string `json:"referral_code" binding:"omitempty,ref_code"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// VerifyEmailRequest is the request body for email verification.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required,hexadecimal,len=64"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FullName      string  `json:"full_name"`
	Role          string  `json:"role"`
	EmailVerified bool    `json:"email_verified"`
	ReferralCode  *string `json:"referral_code,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// WithdrawRequest is the request body for a withdrawal.
type WithdrawRequest struct {
	Amount        string `json:"amount" binding:"required,decimal_positive"`
	WalletAddress string `json:"walletAddress" binding:"required,max=64"`
	Network       string `json:"network" binding:"required,wallet_network"`
}

// ProcessWithdrawalRequest is the admin decision on a pending withdrawal.
type ProcessWithdrawalRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	Notes  string `json:"notes" binding:"max=500"`
	TxHash string `json:"txHash" binding:"omitempty,max=128,safe_id"`
}

// AdjustBalanceRequest sets exactly one of Adjustment or NewBalance.
type AdjustBalanceRequest struct {
	Adjustment *string `json:"adjustment" binding:"omitempty,decimal"`
	NewBalance *string `json:"newBalance" binding:"omitempty,decimal"`
	Reason     string  `json:"reason" binding:"required,max=500"`
}

// ManualDepositRequest is an admin-entered deposit.
type ManualDepositRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
	Amount string `json:"amount" binding:"required,decimal_positive"`
	TxHash string `json:"txHash" binding:"omitempty,max=128,safe_id"`
	Notes  string `json:"notes" binding:"max=500"`
}

// WalletResponse is the balance view of a wallet.
type WalletResponse struct {
	Available      string `json:"available"`
	Pending        string `json:"pending"`
	DepositAddress string `json:"deposit_address"`
	Network        string `json:"network"`
}

// TransactionResponse is the public view of a ledger entry.
type TransactionResponse struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Amount     string      `json:"amount"`
	Status     string      `json:"status"`
	TxHash     *string     `json:"tx_hash,omitempty"`
	Notes      *string     `json:"notes,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	CreatedAt  string      `json:"created_at"`
	ResolvedAt *string     `json:"resolved_at,omitempty"`
}

// MilestoneResponse is the public view of a milestone.
type MilestoneResponse struct {
	ID        string  `json:"id"`
	Level     int     `json:"level"`
	Target    int     `json:"target"`
	Reward    string  `json:"reward"`
	Claimed   bool    `json:"claimed"`
	ClaimedAt *string `json:"claimed_at,omitempty"`
}

// NotificationResponse is the public view of a notification.
type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// ReferralStatsResponse is the referral dashboard.
type ReferralStatsResponse struct {
	ReferralCode    string               `json:"referral_code,omitempty"`
	DirectReferrals int64                `json:"direct_referrals"`
	ActiveReferrals int64                `json:"active_referrals"`
	TotalEarned     string               `json:"total_earned"`
	Levels          []LevelStatsResponse `json:"levels"`
}

type LevelStatsResponse struct {
	Level  int    `json:"level"`
	Count  int64  `json:"count"`
	Earned string `json:"earned"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func ToAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID.String(),
		Email:         a.Email,
		FullName:      a.FullName,
		Role:          string(a.Role),
		EmailVerified: a.EmailVerified,
		ReferralCode:  a.ReferralCode,
		CreatedAt:     formatTime(a.CreatedAt),
	}
}

func ToWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		Available:      w.Available.StringFixed(domain.MoneyScale),
		Pending:        w.Pending.StringFixed(domain.MoneyScale),
		DepositAddress: w.DepositAddress,
		Network:        string(domain.NetworkTRC20),
	}
}

func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	r := TransactionResponse{
		ID:        t.ID.String(),
		Type:      string(t.Type),
		Amount:    t.Amount.StringFixed(domain.MoneyScale),
		Status:    string(t.Status),
		TxHash:    t.TxHash,
		Notes:     t.Notes,
		Details:   t.Details,
		CreatedAt: formatTime(t.CreatedAt),
	}
	if t.ResolvedAt != nil {
		s := formatTime(*t.ResolvedAt)
		r.ResolvedAt = &s
	}
	return r
}

func ToTransactionResponses(txns []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, ToTransactionResponse(&txns[i]))
	}
	return out
}

func ToMilestoneResponses(ms []domain.Milestone) []MilestoneResponse {
	out := make([]MilestoneResponse, 0, len(ms))
	for _, m := range ms {
		r := MilestoneResponse{
			ID:      m.ID.String(),
			Level:   m.Level,
			Target:  m.Target,
			Reward:  m.Reward.StringFixed(domain.MoneyScale),
			Claimed: m.Claimed,
		}
		if m.ClaimedAt != nil {
			s := formatTime(*m.ClaimedAt)
			r.ClaimedAt = &s
		}
		out = append(out, r)
	}
	return out
}

func ToNotificationResponses(ns []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, NotificationResponse{
			ID:        n.ID.String(),
			Title:     n.Title,
			Message:   n.Message,
			Severity:  string(n.Severity),
			Read:      n.Read,
			CreatedAt: formatTime(n.CreatedAt),
		})
	}
	return out
}

func ToReferralStatsResponse(s *domain.ReferralStats) ReferralStatsResponse {
	levels := make([]LevelStatsResponse, 0, len(s.Levels))
	for _, l := range s.Levels {
		levels = append(levels, LevelStatsResponse{Level: l.Level, Count: l.Count, Earned: l.Earned.StringFixed(domain.MoneyScale)})
	}
	return ReferralStatsResponse{
		ReferralCode:    s.ReferralCode,
		DirectReferrals: s.DirectReferrals,
		ActiveReferrals: s.ActiveReferrals,
		TotalEarned:     s.TotalEarned.StringFixed(domain.MoneyScale),
		Levels:          levels,
	}
}

// ParseDecimal parses an optional decimal field that already passed binding.
func ParseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
