// Package worker runs the background jobs of the ledger.
package worker

import (
	"context"
	"errors"
	"time"

	"referral-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultScanConcurrency = 4

// ScanStats summarizes one pass over the deposit addresses.
type ScanStats struct {
	Addresses int
	Credited  int
	Failed    int
}

// DepositScanner polls the chain for every deposit address on a fixed
// interval. A pass is idempotent: already processed transfers are skipped by
// the deposit service, so an overlapping or repeated pass credits nothing twice.
type DepositScanner struct {
	wallets     ports.WalletRepository
	deposits    ports.DepositService
	interval    time.Duration
	concurrency int
	log         zerolog.Logger
}

func NewDepositScanner(wallets ports.WalletRepository, deposits ports.DepositService, interval time.Duration, log zerolog.Logger) *DepositScanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DepositScanner{
		wallets:     wallets,
		deposits:    deposits,
		interval:    interval,
		concurrency: defaultScanConcurrency,
		log:         log,
	}
}

// Run scans immediately and then on every tick until ctx is done.
func (s *DepositScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("deposit scanner started")
	for {
		if _, err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("deposit scan failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("deposit scanner stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce checks every deposit address once. Per-address failures are logged
// and counted; only a failure to list the addresses is returned.
func (s *DepositScanner) ScanOnce(ctx context.Context) (ScanStats, error) {
	addrs, err := s.wallets.ListDepositAddresses(ctx)
	if err != nil {
		return ScanStats{}, err
	}

	stats := ScanStats{Addresses: len(addrs)}
	results := make(chan scanResult, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, a := range addrs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := s.deposits.CheckForDeposits(gctx, a.UserID, a.Address)
			if err != nil {
				s.log.Warn().Err(err).
					Str("user_id", a.UserID.String()).
					Str("address", a.Address).
					Msg("deposit check failed")
			}
			results <- scanResult{credited: n, failed: err != nil}
			return nil
		})
	}
	waitErr := g.Wait()
	close(results)

	for r := range results {
		stats.Credited += r.credited
		if r.failed {
			stats.Failed++
		}
	}
	if stats.Credited > 0 || stats.Failed > 0 {
		s.log.Info().
			Int("addresses", stats.Addresses).
			Int("credited", stats.Credited).
			Int("failed", stats.Failed).
			Msg("deposit scan complete")
	}
	return stats, waitErr
}

type scanResult struct {
	credited int
	failed   bool
}
