package service

import (
	"context"
	"errors"
	"fmt"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"
)

// internalErr wraps err as SYS_001 unless it already carries an AppError.
func internalErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type nopMetrics struct{}

func (nopMetrics) CommissionPayment(int, string)               {}
func (nopMetrics) WithdrawalResolved(domain.TransactionStatus) {}
func (nopMetrics) DepositCompleted(domain.DepositSource)       {}

func metricsOrNop(m ports.LedgerMetrics) ports.LedgerMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

type nopBus struct{}

func (nopBus) Subscribe(string, ports.EventHandler)  {}
func (nopBus) Publish(context.Context, domain.Event) {}

func busOrNop(b ports.EventBus) ports.EventBus {
	if b == nil {
		return nopBus{}
	}
	return b
}
