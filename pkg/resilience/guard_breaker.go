// Package resilience provides fault tolerance for remote classifier calls.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"guard_server/pkg/logger"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	Name                string
	MaxHalfOpenRequests uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open duration before half-open
	ConsecutiveFailures uint32        // trip when exceeded
	MinRequests         uint32        // ratio check needs this many requests
	FailureRatio        float64
}

// DefaultBreakerConfig returns the thresholds used for remote classifiers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxHalfOpenRequests: 3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// NewBreaker creates a gobreaker circuit breaker that logs state changes.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// IsRejected reports whether err came from the breaker refusing the call
// rather than from the call itself.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
