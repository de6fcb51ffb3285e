package worker

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

// Purger removes expired pending requests.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// SweepConfig holds configuration for the expiry sweep.
type SweepConfig struct {
	Purger   Purger
	Interval time.Duration
	Clock    clock.Clock
	Metrics  *Metrics
	Logger   zerolog.Logger
}

// Sweep periodically purges expired pending requests.
type Sweep struct {
	purger   Purger
	interval time.Duration
	clock    clock.Clock
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewSweep creates a new sweep. Zero values take the DefaultConfig interval
// and the wall clock.
func NewSweep(cfg SweepConfig) *Sweep {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Sweep{
		purger:   cfg.Purger,
		interval: interval,
		clock:    clk,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("starting expiry sweep")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.interval):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and retried at the
// next interval.
func (s *Sweep) RunOnce(ctx context.Context) int {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("purged", n).Msg("expiry sweep failed")
		s.record("error", n)
		return n
	}

	s.logger.Debug().Int("purged", n).Msg("expiry sweep completed")
	s.record("ok", n)
	return n
}

func (s *Sweep) record(result string, purged int) {
	if s.metrics == nil {
		return
	}
	s.metrics.Sweeps.WithLabelValues(result).Inc()
	if purged > 0 {
		s.metrics.Purged.Add(float64(purged))
	}
}
