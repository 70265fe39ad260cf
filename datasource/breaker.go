package datasource

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
)

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// CircuitBreaker shields the remote query endpoint: after
// FailureThreshold consecutive failures calls are rejected until
// RecoveryTimeout passes, then a half-open probe window decides whether
// to close again.
type CircuitBreaker struct {
	config    *CircuitBreakerConfig
	logger    types.Logger
	state     atomic.Value
	failures  atomic.Int32
	successes atomic.Int32
	lastFail  atomic.Int64
	mutex     sync.Mutex
}

func NewCircuitBreaker(config *CircuitBreakerConfig, logger types.Logger) *CircuitBreaker {
	if config == nil {
		config = &CircuitBreakerConfig{Enabled: false}
	}

	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 3
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
	}

	cb.state.Store(BreakerClosed)
	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil || !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state.Load().(BreakerState) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout {
			cb.state.Store(BreakerHalfOpen)
			cb.successes.Store(0)
			cb.logger.Debug("Circuit breaker half-open")
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state.Load().(BreakerState) {
	case BreakerClosed:
		cb.failures.Store(0)
	case BreakerHalfOpen:
		if cb.successes.Add(1) >= int32(cb.config.HalfOpenRequests) {
			cb.state.Store(BreakerClosed)
			cb.failures.Store(0)
			cb.logger.Info("Circuit breaker closed")
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())

	switch cb.state.Load().(BreakerState) {
	case BreakerClosed:
		if cb.failures.Add(1) >= int32(cb.config.FailureThreshold) {
			cb.state.Store(BreakerOpen)
			cb.logger.Warn("Circuit breaker opened",
				zap.Int32("failures", cb.failures.Load()))
		}
	case BreakerHalfOpen:
		cb.state.Store(BreakerOpen)
		cb.logger.Warn("Circuit breaker re-opened from half-open")
	}
}
