package worker

import (
	"context"
	"errors"
	"time"

	"referral-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// CommissionSweep re-drives the referral cascade for recent deposits.
type CommissionSweep interface {
	Sweep(ctx context.Context, since time.Time) (ports.SweepStats, error)
}

// CommissionSweeper periodically sweeps the deposits of the last window so a
// level the event-driven cascade failed to pay is retried.
type CommissionSweeper struct {
	sweeps   CommissionSweep
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewCommissionSweeper(sweeps CommissionSweep, interval, window time.Duration, log zerolog.Logger) *CommissionSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &CommissionSweeper{
		sweeps:   sweeps,
		interval: interval,
		window:   window,
		now:      time.Now,
		log:      log,
	}
}

// Run sweeps on every tick until ctx is done. The first sweep waits one
// interval so that it does not race the cascades of startup deposits.
func (s *CommissionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("commission sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("commission sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("commission sweep failed")
		}
	}
}

// SweepOnce sweeps the deposits completed within the window.
func (s *CommissionSweeper) SweepOnce(ctx context.Context) (ports.SweepStats, error) {
	return s.sweeps.Sweep(ctx, s.now().UTC().Add(-s.window))
}
