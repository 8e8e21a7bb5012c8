// Package metrics records pipeline outcomes: Prometheus series for scraping
// and a persisted run log for the status endpoints.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/trendsync/internal/breaker"
	"github.com/kalambet/trendsync/internal/storage"
)

// RunStore persists run records.
type RunStore interface {
	RecordRun(ctx context.Context, r storage.Run) error
}

// Recorder owns a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry
	store    RunStore

	runs          *prometheus.CounterVec
	duration      prometheus.Histogram
	items         prometheus.Gauge
	tagsGenerated prometheus.Counter
	lastSuccess   prometheus.Gauge
	breakerOpen   *prometheus.GaugeVec
	breakerFails  *prometheus.GaugeVec
}

// New creates a Recorder. store may be nil to skip persistence.
func New(store RunStore) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		store:    store,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendsync",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by status and acquisition source.",
		}, []string{"status", "source"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trendsync",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendsync",
			Name:      "pipeline_items",
			Help:      "Items committed by the last run.",
		}),
		tagsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trendsync",
			Name:      "tags_generated_total",
			Help:      "Items classified by the tagging backend.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendsync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trendsync",
			Name:      "breaker_open",
			Help:      "1 when the source's circuit breaker is open.",
		}, []string{"breaker"}),
		breakerFails: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trendsync",
			Name:      "breaker_failures",
			Help:      "Consecutive failures recorded by the source's circuit breaker.",
		}, []string{"breaker"}),
	}

	r.registry.MustRegister(
		r.runs, r.duration, r.items, r.tagsGenerated, r.lastSuccess, r.breakerOpen, r.breakerFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Record updates the series for one finished run and persists it.
// Persistence failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, run storage.Run) {
	r.runs.WithLabelValues(run.Status, run.Source).Inc()
	r.duration.Observe(float64(run.DurationMs) / 1000)
	r.tagsGenerated.Add(float64(run.TagsGenerated))
	if run.Status == "success" {
		r.items.Set(float64(run.Count))
		r.lastSuccess.Set(float64(run.StartedAt.Add(time.Duration(run.DurationMs) * time.Millisecond).Unix()))
	}

	if r.store == nil {
		return
	}
	if err := r.store.RecordRun(ctx, run); err != nil {
		slog.Error("failed to record pipeline run", "run_id", run.ID, "error", err)
	}
}

// ObserveBreakers exports the given breaker states.
func (r *Recorder) ObserveBreakers(states []breaker.State) {
	for _, s := range states {
		open := 0.0
		if s.IsOpen {
			open = 1
		}
		r.breakerOpen.WithLabelValues(s.Name).Set(open)
		r.breakerFails.WithLabelValues(s.Name).Set(float64(s.FailureCount))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
