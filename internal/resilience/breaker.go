// Package resilience wraps calls to upstream dependencies (the mail relay and
// other HTTP collaborators) with circuit breaking and bounded retries, and
// tracks their health for the status endpoint.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and status output.
	Name string

	// HalfOpenRequests is how many trial requests pass while half-open. Default: 1
	HalfOpenRequests uint32

	// OpenFor is how long the breaker stays open before probing. Default: 30s
	OpenFor time.Duration

	// MinRequests is the sample size needed before the breaker can trip. Default: 5
	MinRequests uint32

	// FailureRatio trips the breaker once reached. Default: 0.5
	FailureRatio float64
}

// DefaultBreakerConfig returns the breaker settings used for upstream calls.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		OpenFor:          30 * time.Second,
		MinRequests:      5,
		FailureRatio:     0.5,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig(c.Name)
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = d.HalfOpenRequests
	}
	if c.OpenFor == 0 {
		c.OpenFor = d.OpenFor
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = d.FailureRatio
	}
	return c
}

// NewBreaker creates a circuit breaker that logs its state transitions.
func NewBreaker[T any](cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	cfg = cfg.withDefaults()

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
