package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/endgamekit/tablebase/types"
)

type BreakerState int32

const (
	StateBreakerClosed BreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker shields the oracle from hammering while it is down.
// It sits under the retry loop: when open, attempts fail fast with
// ErrOracleCircuitOpen instead of consuming retry budget on a dead host.
type CircuitBreaker struct {
	config *types.CircuitBreakerConfig
	logger types.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	lastFail  time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger) *CircuitBreaker {
	if config == nil {
		config = &types.CircuitBreakerConfig{Enabled: false}
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateBreakerClosed,
	}
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerOpen:
		if cb.now().Sub(cb.lastFail) > cb.config.RecoveryTimeout {
			cb.state = StateBreakerHalfOpen
			cb.successes = 0
			cb.logger.Info("Circuit breaker transitioned to half-open")
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures = 0
	case StateBreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.state = StateBreakerClosed
			cb.failures = 0
			cb.successes = 0
			cb.logger.Info("Circuit breaker closed")
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFail = cb.now()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateBreakerOpen
			cb.logger.Warn("Circuit breaker opened",
				zap.Int("failures", cb.failures),
				zap.Int("threshold", cb.config.FailureThreshold))
		}
	case StateBreakerHalfOpen:
		cb.state = StateBreakerOpen
		cb.logger.Warn("Circuit breaker reopened from half-open")
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
