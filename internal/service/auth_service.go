package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeAttempts = 5
)

var errReferralCodeExhausted = errors.New("could not generate a unique referral code")

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	txManager   ports.DBTransactor
	accountRepo ports.AccountRepository
	walletRepo  ports.WalletRepository
	hashSvc     ports.HashService
	encSvc      ports.EncryptionService
	tokenSvc    ports.TokenService
	addresses   ports.AddressProvider
	milestones  ports.MilestoneService
	mailer      ports.Mailer // nil: the verification link is only logged
	verifyURL   string
	log         zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	txManager ports.DBTransactor,
	accountRepo ports.AccountRepository,
	walletRepo ports.WalletRepository,
	hashSvc ports.HashService,
	encSvc ports.EncryptionService,
	tokenSvc ports.TokenService,
	addresses ports.AddressProvider,
	milestones ports.MilestoneService,
	mailer ports.Mailer,
	verifyURL string,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		txManager:   txManager,
		accountRepo: accountRepo,
		walletRepo:  walletRepo,
		hashSvc:     hashSvc,
		encSvc:      encSvc,
		tokenSvc:    tokenSvc,
		addresses:   addresses,
		milestones:  milestones,
		mailer:      mailer,
		verifyURL:   verifyURL,
		log:         log,
	}
}

// Register creates an unverified account and its wallet. The referrer, if
// any, is fixed here and never changes.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, internalErr("check email", err)
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	var referredBy *uuid.UUID
	if code := strings.ToUpper(strings.TrimSpace(req.ReferralCode)); code != "" {
		referrer, err := s.accountRepo.GetByReferralCode(ctx, code)
		if err != nil {
			return nil, internalErr("find referrer", err)
		}
		if referrer == nil {
			return nil, apperror.ErrInvalidReferralCode()
		}
		referredBy = &referrer.ID
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	accountID := uuid.New()
	address, privateKey, err := s.addresses.NewDepositAddress(ctx, accountID)
	if err != nil {
		return nil, apperror.ExternalService("allocate deposit address", err)
	}
	encryptedKey, err := s.encSvc.Encrypt(privateKey)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	token, err := generateRandomHex(32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate verification token: %w", err))
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:                accountID,
		Email:             email,
		PasswordHash:      passwordHash,
		FullName:          strings.TrimSpace(req.FullName),
		Role:              domain.RoleUser,
		VerificationToken: &token,
		ReferredBy:        referredBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	wallet := &domain.Wallet{
		ID:             uuid.New(),
		UserID:         accountID,
		Available:      decimal.Zero,
		Pending:        decimal.Zero,
		DepositAddress: address,
		EncryptedKey:   encryptedKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin register tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.accountRepo.Create(ctx, dbTx, account); err != nil {
		return nil, internalErr("create account", err)
	}
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		return nil, internalErr("create wallet", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit register: %w", err))
	}

	s.sendVerification(ctx, account.Email, token)
	s.log.Info().
		Str("user_id", account.ID.String()).
		Bool("referred", referredBy != nil).
		Msg("account registered")

	return account, nil
}

func (s *AuthServiceImpl) sendVerification(ctx context.Context, to, token string) {
	link := s.verifyURL + token
	if s.mailer == nil {
		s.log.Debug().Str("to", to).Str("link", link).Msg("mailer disabled, verification link not sent")
		return
	}

	body := fmt.Sprintf(`<p>Confirm your email address:</p><p><a href="%[1]s">%[1]s</a></p>`, html.EscapeString(link))
	bg := context.WithoutCancel(ctx)
	go func() {
		mailCtx, cancel := context.WithTimeout(bg, mailTimeout)
		defer cancel()
		if err := s.mailer.Send(mailCtx, to, "Verify your email", body); err != nil {
			s.log.Warn().Err(err).Str("to", to).Msg("failed to send verification email")
		}
	}()
}

// VerifyEmail consumes the verification token, assigns the account's referral
// code and opens its first milestone.
func (s *AuthServiceImpl) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, apperror.ErrInvalidToken()
	}
	account, err := s.accountRepo.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, internalErr("find verification token", err)
	}
	if account == nil {
		return nil, apperror.ErrInvalidToken()
	}

	code := ""
	if account.HasReferralCode() {
		code = *account.ReferralCode
	} else if code, err = s.uniqueReferralCode(ctx); err != nil {
		return nil, internalErr("assign referral code", err)
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin verify tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.accountRepo.MarkVerified(ctx, dbTx, account.ID, code); err != nil {
		return nil, internalErr("mark verified", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit verify: %w", err))
	}

	if err := s.milestones.Initialize(ctx, account.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", account.ID.String()).Msg("failed to initialize milestones")
	}

	verified, err := s.accountRepo.GetByID(ctx, account.ID)
	if err != nil {
		return nil, internalErr("reload account", err)
	}
	if verified == nil {
		return nil, apperror.ErrNotFound("Account")
	}
	return verified, nil
}

func (s *AuthServiceImpl) uniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", err
		}
		taken, err := s.accountRepo.GetByReferralCode(ctx, code)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return code, nil
		}
	}
	return "", errReferralCodeExhausted
}

// Login validates credentials and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	account, err := s.accountRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", time.Time{}, internalErr("find account", err)
	}
	if account == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, account.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}
	if !account.EmailVerified {
		return "", time.Time{}, apperror.ErrEmailNotVerified()
	}

	token, expiry, err := s.tokenSvc.Generate(account.ID, account.Role)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}

// EnsureAdmin creates a verified operator account unless the email is taken.
// Operators hold no wallet. It runs once at startup.
func (s *AuthServiceImpl) EnsureAdmin(ctx context.Context, email, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, internalErr("check admin email", err)
	}
	if existing != nil {
		if !existing.IsAdmin() {
			return nil, apperror.Conflict("admin email belongs to a regular account")
		}
		return existing, nil
	}
	if len(password) < 12 {
		return nil, apperror.Validation("admin password must be at least 12 characters")
	}

	passwordHash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash admin password: %w", err))
	}
	code, err := s.uniqueReferralCode(ctx)
	if err != nil {
		return nil, internalErr("assign referral code", err)
	}

	now := time.Now().UTC()
	admin := &domain.Account{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  passwordHash,
		FullName:      "Administrator",
		Role:          domain.RoleAdmin,
		EmailVerified: true,
		ReferralCode:  &code,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin admin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.accountRepo.Create(ctx, dbTx, admin); err != nil {
		return nil, internalErr("create admin", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit admin: %w", err))
	}

	s.log.Info().Str("user_id", admin.ID.String()).Msg("admin account created")
	return admin, nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func generateReferralCode() (string, error) {
	base := big.NewInt(int64(len(referralCodeAlphabet)))
	var sb strings.Builder
	sb.Grow(domain.ReferralCodeLength)
	for i := 0; i < domain.ReferralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
