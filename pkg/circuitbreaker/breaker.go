package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"synapse/pkg/metrics"
)

// Config defines circuit breaker behavior for one transport target.
//
// The breaker trips open after FailureThreshold consecutive counted
// failures, fails fast while open, and lets exactly one probe through
// once RecoveryTimeout has elapsed (evaluated lazily at the next call).
// The probe's outcome decides between closing again and re-opening
// with a fresh timer.
type Config struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration

	// IsFailure classifies which errors count toward the threshold.
	// Nil counts every error. Validation and configuration errors
	// must not trip the breaker, so callers typically pass a
	// transport-only classifier here.
	IsFailure func(err error) bool

	OnStateChange func(name string, from, to gobreaker.State)
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker wraps one gobreaker instance. One Breaker per logical
// transport target; obtain shared instances through a Registry.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(cfg Config) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultConfig(cfg.Name).FailureThreshold
	}
	timeout := cfg.RecoveryTimeout
	if timeout <= 0 {
		timeout = DefaultConfig(cfg.Name).RecoveryTimeout
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// Exactly one half-open probe; losers of the admission race
		// fail fast with ErrTooManyRequests.
		MaxRequests: 1,
		// Interval zero: consecutive-failure counts survive until a
		// success or a state change resets them.
		Interval: 0,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if cfg.IsFailure != nil {
				return !cfg.IsFailure(err)
			}
			return false
		},
	}

	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		updateStateMetric(name, to)
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	updateStateMetric(cfg.Name, cb.State())

	return &Breaker{cb: cb}
}

// Execute runs the operation under breaker protection. While open it
// returns gobreaker.ErrOpenState without invoking the operation; a
// losing half-open caller gets gobreaker.ErrTooManyRequests. Use
// IsFastFail to detect both.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	state := b.cb.State().String()
	result, err := b.cb.Execute(fn)

	metrics.CircuitBreakerRequests.WithLabelValues(b.cb.Name(), state).Inc()
	if err != nil && !IsFastFail(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(b.cb.Name()).Inc()
	}

	return result, err
}

// ExecuteWithContext is Execute with a cancellation check before and
// inside the protected call. The breaker imposes no timeout of its
// own; the operation's context governs.
func (b *Breaker) ExecuteWithContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return b.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return fn()
		}
	})
}

func (b *Breaker) Name() string {
	return b.cb.Name()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// FailureCount reports the current consecutive counted failures.
// Resets to zero on success and on every state transition.
func (b *Breaker) FailureCount() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) IsHalfOpen() bool {
	return b.cb.State() == gobreaker.StateHalfOpen
}

func (b *Breaker) IsClosed() bool {
	return b.cb.State() == gobreaker.StateClosed
}

// IsFastFail reports whether the error is the breaker refusing the
// call without invoking the operation.
func IsFastFail(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func updateStateMetric(name string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateHalfOpen:
		stateValue = 1
	case gobreaker.StateOpen:
		stateValue = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}
