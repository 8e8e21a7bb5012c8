// Package alert delivers degraded-acquisition notices to external sinks.
// Delivery is fire-and-forget: Notify never blocks the caller and sink
// failures are only logged.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sendTimeout = 10 * time.Second

// Sink delivers one message.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg string) error
}

// Dispatcher fans a message out to every configured sink in the background.
type Dispatcher struct {
	sinks  []Sink
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. Nil sinks are ignored; with no sinks
// Notify only logs.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Notify sends msg to every sink without waiting for delivery. The caller's
// cancellation does not abort in-flight sends.
func (d *Dispatcher) Notify(ctx context.Context, msg string) {
	d.logger.Warn("alert", "message", msg)

	base := context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, sendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, msg); err != nil {
				d.logger.Warn("alert delivery failed", "sink", s.Name(), "error", err)
			}
		}(s)
	}
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
