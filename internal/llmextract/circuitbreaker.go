package llmextract

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/pipeline"
)

// CircuitBreaker tracks consecutive LLM call failures and opens the
// circuit once failureThreshold is reached, auto-resetting after
// timeoutSeconds. Ported from circuit_breaker.py; sony/gobreaker's generic
// CircuitBreaker[T] doesn't expose a time-remaining figure or a raw
// consecutive-failure counter, both of which the stats surface needs.
type CircuitBreaker struct {
	mu sync.Mutex

	failureCount     int
	failureThreshold int
	timeout          time.Duration
	openedAt         *time.Time

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
}

// NewCircuitBreaker builds a breaker; failureThreshold and timeoutSeconds
// are each floored at 1.
func NewCircuitBreaker(failureThreshold, timeoutSeconds int) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if timeoutSeconds < 1 {
		timeoutSeconds = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		timeout:          time.Duration(timeoutSeconds) * time.Second,
	}
}

// Call executes fn through the circuit breaker, returning
// pipeline.CodeLLMCircuitOpen when the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.isOpenLocked() {
		cb.totalCalls++
		remaining := cb.timeRemainingLocked()
		cb.mu.Unlock()
		return pipeline.NewStageError(pipeline.CodeLLMCircuitOpen, fmt.Errorf(
			"circuit breaker open after %d consecutive failures, retry in %.0fs", cb.failureCount, remaining.Seconds()))
	}
	cb.totalCalls++
	cb.mu.Unlock()

	err := fn()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

// IsOpen reports whether the circuit is currently open, resetting it first
// if the cool-down has elapsed.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpenLocked()
}

func (cb *CircuitBreaker) isOpenLocked() bool {
	if cb.openedAt == nil {
		return false
	}
	if time.Since(*cb.openedAt) > cb.timeout {
		log.Info().Msg("llmextract: circuit breaker timeout elapsed, resetting")
		cb.openedAt = nil
		cb.failureCount = 0
		return false
	}
	return true
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalSuccesses++
	if cb.failureCount > 0 {
		log.Info().Int("previous_failures", cb.failureCount).Msg("llmextract: circuit breaker recovered")
	}
	cb.failureCount = 0
	cb.openedAt = nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.totalFailures++
	if cb.failureCount >= cb.failureThreshold {
		now := time.Now()
		cb.openedAt = &now
		log.Error().
			Int("failure_count", cb.failureCount).
			Int("failure_threshold", cb.failureThreshold).
			Msg("llmextract: circuit breaker opened")
	}
}

func (cb *CircuitBreaker) timeRemainingLocked() time.Duration {
	if cb.openedAt == nil {
		return 0
	}
	remaining := cb.timeout - time.Since(*cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats is the breaker's exported statistics snapshot (spec §4.6).
type Stats struct {
	IsOpen         bool
	FailureCount   int
	TotalCalls     int64
	TotalSuccesses int64
	TotalFailures  int64
	OpenedAt       *time.Time
	TimeRemaining  *time.Duration
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	open := cb.isOpenLocked()
	s := Stats{
		IsOpen:         open,
		FailureCount:   cb.failureCount,
		TotalCalls:     cb.totalCalls,
		TotalSuccesses: cb.totalSuccesses,
		TotalFailures:  cb.totalFailures,
		OpenedAt:       cb.openedAt,
	}
	if open {
		r := cb.timeRemainingLocked()
		s.TimeRemaining = &r
	}
	return s
}
