package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ReferralCodeLength is the length of the code handed out at email verification.
const ReferralCodeLength = 8

// Account represents a registered platform user.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"` // Never expose
	FullName          string     `json:"full_name"`
	Role              Role       `json:"role"`
	EmailVerified     bool       `json:"email_verified"`
	VerificationToken *string    `json:"-"`
	ReferralCode      *string    `json:"referral_code,omitempty"` // Assigned at email verification
	ReferredBy        *uuid.UUID `json:"referred_by,omitempty"`   // Fixed at registration
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsAdmin returns true if the account carries the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// HasReferralCode returns true once a referral code has been assigned.
func (a *Account) HasReferralCode() bool {
	return a.ReferralCode != nil && *a.ReferralCode != ""
}
