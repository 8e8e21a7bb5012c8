// Package ingest schedules pipeline runs on a fixed interval.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/trendsync/internal/pipeline"
)

// PipelineRunner executes one pipeline cycle.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) pipeline.Result
}

// Worker triggers the pipeline every interval until its context is cancelled.
type Worker struct {
	runner   PipelineRunner
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If interval is <= 0, it defaults to 6h.
func NewWorker(runner PipelineRunner, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Worker{
		runner:   runner,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run executes a cycle immediately and then once per interval.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("scheduler started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single scheduled cycle with default options.
func (w *Worker) RunOnce(ctx context.Context) pipeline.Result {
	res := w.runner.Run(ctx, pipeline.Options{})
	if res.Status != pipeline.StatusSuccess {
		w.logger.Warn("scheduled run degraded", "run_id", res.RunID, "status", res.Status, "error", res.Error)
	}
	return res
}
