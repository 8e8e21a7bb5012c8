// Package acquire sequences the acquisition sources: the headless-browser
// scraper first, the grid broker second and previously stored data last.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/trendsync/internal/breaker"
	"github.com/kalambet/trendsync/internal/retry"
	"github.com/kalambet/trendsync/internal/trend"
)

// Source names reported in Result.Source.
const (
	SourcePrimary   = "primary"
	SourceSecondary = "secondary"
	SourceStale     = "stale"
	SourceNone      = "none"
)

// Source produces a ranked trend batch.
type Source interface {
	Fetch(ctx context.Context) ([]trend.Item, error)
}

// SecondarySource is a Source that may lack its credentials.
type SecondarySource interface {
	Source
	Configured() bool
}

// StaleStore reads the last known-good batch.
type StaleStore interface {
	StaleTrends(ctx context.Context, platform string, limit int) ([]trend.Item, error)
}

// Cache keeps a copy of the most recent successful batch.
type Cache interface {
	SaveAcquisition(ctx context.Context, platform, source string, items []trend.Item) error
}

// Alerter delivers degraded-service notices. Implementations must not block.
type Alerter interface {
	Notify(ctx context.Context, msg string)
}

// Options alter a single acquisition.
type Options struct {
	ForceSecondary   bool `json:"force_secondary"`
	UseStaleFallback bool `json:"use_stale_fallback"`
}

// Result is the outcome of Scrape. Items is empty only when every source failed.
type Result struct {
	Items  []trend.Item
	Source string
}

// Config wires an Orchestrator.
type Config struct {
	Primary          Source
	Secondary        SecondarySource
	Stale            StaleStore
	Cache            Cache
	Alerts           Alerter
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Orchestrator owns both circuit breakers and the retry policy for the
// primary source. It is safe for concurrent use.
type Orchestrator struct {
	primary   Source
	secondary SecondarySource
	stale     StaleStore
	cache     Cache
	alerts    Alerter

	primaryBreaker   *breaker.Breaker
	secondaryBreaker *breaker.Breaker

	attempts int
	sleep    retry.SleepFunc
	logger   *slog.Logger
}

// New creates an Orchestrator with fresh, closed breakers.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		primary:          cfg.Primary,
		secondary:        cfg.Secondary,
		stale:            cfg.Stale,
		cache:            cfg.Cache,
		alerts:           cfg.Alerts,
		primaryBreaker:   breaker.New(SourcePrimary, cfg.BreakerThreshold, cfg.BreakerTimeout),
		secondaryBreaker: breaker.New(SourceSecondary, cfg.BreakerThreshold, cfg.BreakerTimeout),
		attempts:         retry.DefaultAttempts,
		sleep:            retry.Sleep,
		logger:           slog.Default(),
	}
}

// SetSleep replaces the backoff sleep. Used by tests.
func (o *Orchestrator) SetSleep(fn retry.SleepFunc) { o.sleep = fn }

// SetClock replaces the breakers' time source. Used by tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.primaryBreaker.SetClock(now)
	o.secondaryBreaker.SetClock(now)
}

// Breakers returns the state of the primary and secondary breakers.
func (o *Orchestrator) Breakers() []breaker.State {
	return []breaker.State{o.primaryBreaker.State(), o.secondaryBreaker.State()}
}

// Scrape acquires a trend batch. It never fails: when every source is
// exhausted it returns an empty Result with Source set to SourceNone.
func (o *Orchestrator) Scrape(ctx context.Context, opts Options) Result {
	if opts.UseStaleFallback {
		if items := o.loadStale(ctx); len(items) > 0 {
			o.logger.Info("serving stale trends on request", "items", len(items))
			return Result{Items: items, Source: SourceStale}
		}
		o.logger.Warn("stale data requested but none stored; acquiring live")
	}

	if !opts.ForceSecondary {
		if items, ok := o.tryPrimary(ctx); ok {
			return Result{Items: items, Source: SourcePrimary}
		}
	}

	return o.fallback(ctx)
}

func (o *Orchestrator) tryPrimary(ctx context.Context) ([]trend.Item, bool) {
	if o.primary == nil {
		return nil, false
	}

	for attempt := range o.attempts {
		if !o.primaryBreaker.CanExecute() {
			o.logger.Warn("primary breaker open; skipping scraper", "attempt", attempt+1)
			return nil, false
		}

		items, err := o.primary.Fetch(ctx)
		if err == nil && len(items) > 0 {
			o.primaryBreaker.RecordSuccess()
			o.saveCache(ctx, SourcePrimary, items)
			return items, true
		}
		if err == nil {
			err = errors.New("empty result")
		}
		o.primaryBreaker.RecordFailure()

		if ctx.Err() != nil {
			return nil, false
		}
		if attempt < o.attempts-1 {
			delay := retry.Delay(attempt)
			o.logger.Warn("primary scrape failed",
				"attempt", attempt+1,
				"max_attempts", o.attempts,
				"retry_in", delay,
				"error", err,
			)
			if o.sleep(ctx, delay) != nil {
				return nil, false
			}
		} else {
			o.logger.Warn("primary scrape failed; giving up", "attempt", attempt+1, "error", err)
		}
	}
	return nil, false
}

func (o *Orchestrator) fallback(ctx context.Context) Result {
	if o.secondary == nil || !o.secondary.Configured() {
		o.logger.Warn("secondary source not configured")
		o.alert(ctx, "Trend acquisition failed: primary unavailable and grid broker credentials are not configured")
		return Result{Source: SourceNone}
	}

	if !o.secondaryBreaker.CanExecute() {
		o.logger.Warn("secondary breaker open; trying stale data")
		if items := o.loadStale(ctx); len(items) > 0 {
			o.alert(ctx, fmt.Sprintf("Trend acquisition degraded: both breakers open, serving %d stale items", len(items)))
			return Result{Items: items, Source: SourceStale}
		}
		o.alert(ctx, "Trend acquisition failed: secondary breaker open and no stale data available")
		return Result{Source: SourceNone}
	}

	items, err := o.secondary.Fetch(ctx)
	if err == nil && len(items) > 0 {
		o.secondaryBreaker.RecordSuccess()
		o.saveCache(ctx, SourceSecondary, items)
		o.alert(ctx, fmt.Sprintf("Trend acquisition degraded: primary scraper failed, grid broker returned %d items", len(items)))
		return Result{Items: items, Source: SourceSecondary}
	}
	o.secondaryBreaker.RecordFailure()
	o.logger.Warn("secondary fetch failed", "error", err, "items", len(items))

	if items := o.loadStale(ctx); len(items) > 0 {
		o.alert(ctx, fmt.Sprintf("Trend acquisition degraded: live sources failed, serving %d stale items", len(items)))
		return Result{Items: items, Source: SourceStale}
	}

	o.logger.Error("all acquisition methods exhausted")
	o.alert(ctx, "Trend acquisition failed: all methods exhausted, no data this cycle")
	return Result{Source: SourceNone}
}

// loadStale returns stored items re-ranked 1..N by stored order.
func (o *Orchestrator) loadStale(ctx context.Context) []trend.Item {
	if o.stale == nil {
		return nil
	}
	items, err := o.stale.StaleTrends(ctx, trend.Platform, trend.MaxItems)
	if err != nil {
		o.logger.Warn("loading stale trends failed", "error", err)
		return nil
	}
	return trend.Rerank(items)
}

func (o *Orchestrator) saveCache(ctx context.Context, source string, items []trend.Item) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SaveAcquisition(ctx, trend.Platform, source, items); err != nil {
		o.logger.Warn("caching acquisition failed", "source", source, "error", err)
	}
}

func (o *Orchestrator) alert(ctx context.Context, msg string) {
	if o.alerts != nil {
		o.alerts.Notify(ctx, msg)
	}
}
