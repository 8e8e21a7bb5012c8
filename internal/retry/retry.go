// Package retry provides the capped exponential backoff used by every
// acquisition source.
package retry

import (
	"context"
	"time"
)

const (
	DefaultAttempts = 3

	baseDelay = time.Second
	maxDelay  = 10 * time.Second
)

// Delay returns min(1s * 2^attempt, 10s) for a zero-based attempt.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 4 {
		return maxDelay
	}
	d := baseDelay << attempt
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep returns immediately unless ctx is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
