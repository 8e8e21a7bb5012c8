// Package pipeline reconciles an acquired trend batch with stored history
// and tags, then commits the new snapshot atomically.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/trendsync/internal/acquire"
	"github.com/kalambet/trendsync/internal/growth"
	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/tagging"
	"github.com/kalambet/trendsync/internal/trend"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

const (
	// DefaultTagLimit is the per-run tagging quota when none is configured.
	DefaultTagLimit = 15
	// MaxTagLimit is the hard cap on the tagging quota.
	MaxTagLimit = 50
)

// Acquirer produces the batch for a run.
type Acquirer interface {
	Scrape(ctx context.Context, opts acquire.Options) acquire.Result
}

// Store is the persistence the runner needs.
type Store interface {
	LatestSnapshots(ctx context.Context, platform string, ids []string) (map[string]trend.Snapshot, error)
	ExistingTags(ctx context.Context, platform string, ids []string) (map[string]trend.Tags, error)
	CommitSnapshot(ctx context.Context, c storage.Commit) error
}

// HashtagIngester refreshes the hashtag side-channel.
type HashtagIngester interface {
	Ingest(ctx context.Context) (int, error)
}

// RunRecorder observes finished runs.
type RunRecorder interface {
	Record(ctx context.Context, run storage.Run)
}

// Options alter a single run.
type Options struct {
	ForceSecondary   bool `json:"force_secondary"`
	UseStaleFallback bool `json:"use_stale_fallback"`
	// TagLimit overrides the configured quota when positive.
	TagLimit int  `json:"tag_limit"`
	Reload   bool `json:"reload"`
}

// Result is the structured outcome of a run. Run never returns an error;
// failures are reported through Status and Error.
type Result struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	Count         int    `json:"count"`
	TopSong       string `json:"top_song,omitempty"`
	TagsGenerated int    `json:"tags_generated"`
	Source        string `json:"source"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	// Shared is set when this caller joined a run already in progress.
	Shared bool `json:"shared,omitempty"`
}

// Config wires a Runner. Hashtags and Recorder may be nil.
type Config struct {
	Acquirer   Acquirer
	Store      Store
	Classifier tagging.Classifier
	Hashtags   HashtagIngester
	Recorder   RunRecorder
	TagLimit   int
}

// Runner executes pipeline runs. Overlapping calls to Run share one execution.
type Runner struct {
	acquirer   Acquirer
	store      Store
	classifier tagging.Classifier
	hashtags   HashtagIngester
	recorder   RunRecorder
	growth     *growth.Calculator
	tagLimit   int

	group  singleflight.Group
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewRunner creates a Runner. A nil Classifier falls back to the keyword heuristic.
func NewRunner(cfg Config) *Runner {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = tagging.Heuristic{}
	}
	return &Runner{
		acquirer:   cfg.Acquirer,
		store:      cfg.Store,
		classifier: classifier,
		hashtags:   cfg.Hashtags,
		recorder:   cfg.Recorder,
		growth:     growth.New(),
		tagLimit:   clampTagLimit(cfg.TagLimit),
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// SetClock replaces the time source used for snapshot timestamps.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes one pipeline cycle. If a run is already in flight, the caller
// waits for it and receives its result with Shared set.
func (r *Runner) Run(ctx context.Context, opts Options) Result {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return Result{Status: StatusError, Source: acquire.SourceNone, Error: "runner is shutting down"}
	}
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	v, _, shared := r.group.Do("run", func() (any, error) {
		return r.run(context.WithoutCancel(ctx), opts), nil
	})
	res := v.(Result)
	res.Shared = shared
	return res
}

// Drain refuses new runs and blocks until in-flight ones have committed.
func (r *Runner) Drain() {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	r.inflight.Wait()
}

func (r *Runner) run(ctx context.Context, opts Options) Result {
	start := r.now()
	res := r.execute(ctx, opts, start)
	res.DurationMs = r.now().Sub(start).Milliseconds()

	switch res.Status {
	case StatusError:
		r.logger.Error("pipeline run failed", "run_id", res.RunID, "source", res.Source, "error", res.Error)
	case StatusWarning:
		r.logger.Warn("pipeline run produced no data", "run_id", res.RunID, "source", res.Source, "reason", res.Error)
	default:
		r.logger.Info("pipeline run complete",
			"run_id", res.RunID,
			"source", res.Source,
			"count", res.Count,
			"tags_generated", res.TagsGenerated,
			"duration_ms", res.DurationMs,
		)
	}

	if r.recorder != nil {
		r.recorder.Record(ctx, storage.Run{
			ID:            res.RunID,
			StartedAt:     start,
			DurationMs:    res.DurationMs,
			Status:        res.Status,
			Count:         res.Count,
			TopSong:       res.TopSong,
			TagsGenerated: res.TagsGenerated,
			Source:        res.Source,
			Error:         res.Error,
		})
	}
	return res
}

func (r *Runner) execute(ctx context.Context, opts Options, start time.Time) Result {
	res := Result{RunID: uuid.New().String()}

	acquired := r.acquirer.Scrape(ctx, acquire.Options{
		ForceSecondary:   opts.ForceSecondary,
		UseStaleFallback: opts.UseStaleFallback,
	})
	res.Source = acquired.Source
	if len(acquired.Items) == 0 {
		res.Status = StatusWarning
		res.Error = "no trend data acquired"
		return res
	}

	items := trend.Normalize(acquired.Items)
	if len(items) == 0 {
		res.Status = StatusWarning
		res.Error = "no valid trend items after normalization"
		return res
	}

	previous, existing, err := r.loadState(ctx, trend.IDs(items))
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}

	limit := r.tagLimit
	if opts.TagLimit > 0 {
		limit = clampTagLimit(opts.TagLimit)
	}

	snapshotAt := start.UnixMilli()
	rows, tagged := r.buildRows(ctx, items, previous, existing, limit, snapshotAt)

	commit := storage.Commit{
		Platform:   trend.Platform,
		Rows:       rows,
		SnapshotAt: snapshotAt,
		Reload:     opts.Reload,
	}
	if err := r.store.CommitSnapshot(ctx, commit); err != nil {
		res.Status = StatusError
		res.Error = fmt.Sprintf("committing snapshot: %v", err)
		return res
	}

	r.ingestHashtags(ctx)

	res.Status = StatusSuccess
	res.Count = len(items)
	res.TopSong = items[0].Title
	res.TagsGenerated = tagged
	return res
}

// loadState fetches the latest snapshot and current tags for ids, one query each.
func (r *Runner) loadState(ctx context.Context, ids []string) (map[string]trend.Snapshot, map[string]trend.Tags, error) {
	var (
		previous map[string]trend.Snapshot
		existing map[string]trend.Tags
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		previous, err = r.store.LatestSnapshots(gctx, trend.Platform, ids)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = r.store.ExistingTags(gctx, trend.Platform, ids)
		if err != nil {
			return fmt.Errorf("loading tags: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return previous, existing, nil
}

// buildRows computes growth and tags for each item in rank order. The quota
// is spent once per classified item whatever the classifier returns.
func (r *Runner) buildRows(
	ctx context.Context,
	items []trend.Item,
	previous map[string]trend.Snapshot,
	existing map[string]trend.Tags,
	quota int,
	snapshotAt int64,
) ([]trend.Row, int) {
	rows := make([]trend.Row, 0, len(items))
	tagged := 0

	for _, it := range items {
		var prev *trend.Snapshot
		if s, ok := previous[it.ID]; ok {
			prev = &s
		}
		rate := r.growth.Rate(it, prev)

		var current *trend.Tags
		if t, ok := existing[it.ID]; ok {
			current = &t
		}

		genre, vibe := tagPointers(current)
		if tagging.NeedsTag(current) && quota > 0 {
			quota--
			tagged++
			t := r.classifier.Classify(ctx, it.Title, it.Author)
			genre, vibe = &t.Genre, &t.Vibe
		}

		rows = append(rows, trend.Row{
			Platform:   trend.Platform,
			Item:       it,
			GrowthRate: &rate,
			Genre:      genre,
			Vibe:       vibe,
			UpdatedAt:  snapshotAt,
		})
	}
	return rows, tagged
}

func (r *Runner) ingestHashtags(ctx context.Context) {
	if r.hashtags == nil {
		return
	}
	n, err := r.hashtags.Ingest(ctx)
	if err != nil {
		r.logger.Warn("hashtag ingest failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("hashtags refreshed", "count", n)
	}
}

// tagPointers keeps whatever non-empty tags are already stored.
func tagPointers(t *trend.Tags) (genre, vibe *string) {
	if t == nil {
		return nil, nil
	}
	if t.Genre != "" {
		g := t.Genre
		genre = &g
	}
	if t.Vibe != "" {
		v := t.Vibe
		vibe = &v
	}
	return genre, vibe
}

func clampTagLimit(n int) int {
	if n <= 0 {
		return DefaultTagLimit
	}
	if n > MaxTagLimit {
		return MaxTagLimit
	}
	return n
}
