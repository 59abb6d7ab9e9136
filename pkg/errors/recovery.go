package errors

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements per-dependency failure isolation. The breaker opens
// after MaxFailures consecutive failures, probes again after CoolDown, and
// closes on the first successful probe.
type CircuitBreaker struct {
	name           string
	maxFailures    int
	coolDown       time.Duration
	state          CircuitBreakerState
	failures       int
	lastTransition time.Time
	onStateChange  func(name string, from, to CircuitBreakerState)
	logger         *logrus.Logger
	mu             sync.Mutex
}

// CircuitBreakerConfig contains configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name          string        `mapstructure:"name"`
	MaxFailures   int           `mapstructure:"max_failures"`
	CoolDown      time.Duration `mapstructure:"cool_down"`
	OnStateChange func(name string, from, to CircuitBreakerState)
	Logger        *logrus.Logger
}

// BreakerSnapshot is a read-only view of a breaker's state.
type BreakerSnapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastTransition      time.Time `json:"last_transition"`
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.CoolDown <= 0 {
		config.CoolDown = time.Second * 30
	}

	return &CircuitBreaker{
		name:           config.Name,
		maxFailures:    config.MaxFailures,
		coolDown:       config.CoolDown,
		state:          StateClosed,
		lastTransition: time.Now(),
		onStateChange:  config.OnStateChange,
		logger:         config.Logger,
	}
}

// Allow reports whether a request may proceed. An open breaker whose cool-down
// has elapsed moves to half_open and admits a single probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastTransition) >= cb.coolDown {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
}

// RecordFailure records a failed call and opens the breaker when the
// consecutive-failure threshold is reached. A half_open probe failure reopens
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	}
}

// Execute runs fn guarded by the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.Allow() {
		return Wrapf(ErrCircuitOpen, "breaker %s", cb.name)
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a read-only view for dashboards.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerSnapshot{
		Name:                cb.name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.failures,
		LastTransition:      cb.lastTransition,
	}
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	if oldState == newState {
		return
	}

	cb.state = newState
	cb.lastTransition = time.Now()
	if newState == StateClosed {
		cb.failures = 0
	}

	if cb.logger != nil {
		cb.logger.WithFields(logrus.Fields{
			"breaker": cb.name,
			"from":    oldState.String(),
			"to":      newState.String(),
		}).Info("Circuit breaker state changed")
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, oldState, newState)
	}
}

// RetryPolicy defines retry behavior for operations
type RetryPolicy struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	Jitter        bool          `mapstructure:"jitter"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond * 500,
		MaxDelay:      time.Second * 5,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Delay calculates the backoff before the given retry attempt (1-based).
// With Jitter enabled this is full jitter: a random duration up to the
// exponential ceiling.
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	ceiling := float64(rp.InitialDelay) * math.Pow(rp.BackoffFactor, float64(attempt-1))
	if ceiling > float64(rp.MaxDelay) {
		ceiling = float64(rp.MaxDelay)
	}

	if rp.Jitter {
		return time.Duration(rand.Float64() * ceiling)
	}
	return time.Duration(ceiling)
}

// RetryExecutor executes functions with retry logic
type RetryExecutor struct {
	policy *RetryPolicy
	logger *logrus.Logger
}

// NewRetryExecutor creates a new retry executor
func NewRetryExecutor(policy *RetryPolicy, logger *logrus.Logger) *RetryExecutor {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &RetryExecutor{
		policy: policy,
		logger: logger,
	}
}

// Execute runs fn up to MaxAttempts times, backing off between attempts. It
// returns the last error when all attempts fail, and aborts early when the
// context is cancelled.
func (re *RetryExecutor) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= re.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 && re.logger != nil {
				re.logger.WithFields(logrus.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if attempt == re.policy.MaxAttempts {
			break
		}

		delay := re.policy.Delay(attempt)
		if re.logger != nil {
			re.logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay.String(),
			}).WithError(err).Warn("Operation failed, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// Attempts returns the configured attempt cap.
func (re *RetryExecutor) Attempts() int {
	return re.policy.MaxAttempts
}
