package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
	mailTimeout              = 15 * time.Second
)

// NotificationServiceImpl stores in-app notifications and emails operators.
// Delivery never fails the operation that triggered it.
type NotificationServiceImpl struct {
	repo        ports.NotificationRepository
	accountRepo ports.AccountRepository
	mailer      ports.Mailer // nil disables email
	log         zerolog.Logger
}

func NewNotificationService(
	repo ports.NotificationRepository,
	accountRepo ports.AccountRepository,
	mailer ports.Mailer,
	log zerolog.Logger,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{repo: repo, accountRepo: accountRepo, mailer: mailer, log: log}
}

func (s *NotificationServiceImpl) Notify(ctx context.Context, userID uuid.UUID, title, message string, severity domain.Severity) {
	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Str("title", title).Msg("failed to store notification")
	}
}

// AlertAdmins notifies every admin in-app and, when a mailer is configured, by email.
func (s *NotificationServiceImpl) AlertAdmins(ctx context.Context, title, message string) {
	admins, err := s.accountRepo.ListAdmins(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("title", title).Msg("failed to list admins for alert")
		return
	}
	if len(admins) == 0 {
		s.log.Warn().Str("title", title).Msg("no admins to alert")
	}

	for _, admin := range admins {
		s.Notify(ctx, admin.ID, title, message, domain.SeverityWarning)
		if s.mailer != nil {
			s.sendAsync(ctx, admin.Email, "[Ledger alert] "+title, fmt.Sprintf("<p>%s</p>", html.EscapeString(message)))
		}
	}
}

func (s *NotificationServiceImpl) sendAsync(ctx context.Context, to, subject, body string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		mailCtx, cancel := context.WithTimeout(bg, mailTimeout)
		defer cancel()
		if err := s.mailer.Send(mailCtx, to, subject, body); err != nil {
			s.log.Warn().Err(err).Str("to", to).Msg("failed to send email")
		}
	}()
}

func (s *NotificationServiceImpl) List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	list, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, internalErr("list notifications", err)
	}
	return list, nil
}

func (s *NotificationServiceImpl) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			return apperror.ErrNotFound("Notification")
		}
		return internalErr("mark notification read", err)
	}
	return nil
}
