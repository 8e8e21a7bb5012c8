// Package breaker implements a consecutive-failure circuit breaker used to
// stop hammering a failing acquisition source.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultTimeout   = 5 * time.Minute
)

// State is a point-in-time view of a Breaker.
type State struct {
	Name           string        `json:"name"`
	IsOpen         bool          `json:"is_open"`
	FailureCount   int           `json:"failure_count"`
	TimeUntilReset time.Duration `json:"time_until_reset"`
}

// Breaker opens after threshold consecutive failures and allows a trial call
// once timeout has elapsed. A failure while half-open re-opens it immediately
// because the failure count is only reset by a success.
//
// Breaker is safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu           sync.Mutex
	isOpen       bool
	failureCount int
	lastFailure  time.Time
	nextAttempt  time.Time
}

// New creates a closed Breaker. Non-positive threshold or timeout fall back
// to DefaultThreshold and DefaultTimeout.
func New(name string, threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// SetClock replaces the time source. Used by tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Name returns the breaker's label.
func (b *Breaker) Name() string { return b.name }

// CanExecute reports whether a call may proceed. Once the open timeout has
// elapsed it moves the breaker to half-open and admits the call.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isOpen {
		return true
	}
	if !b.now().Before(b.nextAttempt) {
		b.isOpen = false
		b.logger.Info("circuit breaker half-open", "breaker", b.name, "failures", b.failureCount)
		return true
	}
	return false
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount > 0 || b.isOpen {
		b.logger.Info("circuit breaker closed", "breaker", b.name)
	}
	b.failureCount = 0
	b.isOpen = false
}

// RecordFailure counts a failure and opens the breaker at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failureCount++
	b.lastFailure = now
	if b.failureCount >= b.threshold {
		b.isOpen = true
		b.nextAttempt = now.Add(b.timeout)
		b.logger.Warn("circuit breaker open",
			"breaker", b.name,
			"failures", b.failureCount,
			"retry_at", b.nextAttempt.UTC().Format(time.RFC3339),
		)
	}
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := State{Name: b.name, IsOpen: b.isOpen, FailureCount: b.failureCount}
	if b.isOpen {
		if d := b.nextAttempt.Sub(b.now()); d > 0 {
			st.TimeUntilReset = d
		}
	}
	return st
}
