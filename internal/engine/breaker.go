package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls one circuit breaker instance.
type BreakerConfig struct {
	FailureThreshold  int           // consecutive failures before opening
	ResetTimeout      time.Duration // open duration before half-open probes
	HalfOpenSuccesses int           // probe successes required to close
}

// Breaker guards one upstream. While open, calls fail with ErrCircuitOpen
// without touching the upstream; after ResetTimeout a bounded number of
// probe calls is let through.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker
}

// NewBreaker creates a named breaker. Safe for concurrent use.
func NewBreaker(name string, bc BreakerConfig) *Breaker {
	if bc.FailureThreshold <= 0 {
		bc.FailureThreshold = 5
	}
	if bc.HalfOpenSuccesses <= 0 {
		bc.HalfOpenSuccesses = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(bc.HalfOpenSuccesses),
		Timeout:     bc.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("breaker: state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// State returns the current state name (closed, half-open, open).
func (b *Breaker) State() string { return b.cb.State().String() }

// BreakerDo runs fn through the breaker. Not-found and invalid-input
// results are caller mistakes, not upstream faults, and do not count
// against the failure threshold.
func BreakerDo[T any](b *Breaker, fn func() (T, error)) (T, error) {
	done, err := b.cb.Allow()
	if err != nil {
		var zero T
		return zero, Wrapf(ErrCircuitOpen, "%s", b.name)
	}
	result, err := fn()
	done(err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput))
	return result, err
}
