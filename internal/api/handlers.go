package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/trendsync/internal/breaker"
	"github.com/kalambet/trendsync/internal/pipeline"
	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/trend"
)

const maxRequestBodySize = 64 << 10 // 64KB

// PipelineRunner executes a pipeline cycle.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) pipeline.Result
}

// TrendReader is the read side of the store used by the API and MCP layers.
type TrendReader interface {
	ListTrends(ctx context.Context, f storage.TrendFilter) ([]trend.Row, error)
	History(ctx context.Context, platform, id string, limit int) ([]trend.Snapshot, error)
	RecentRuns(ctx context.Context, limit int) ([]storage.Run, error)
	ListHashtags(ctx context.Context, platform string, limit int) ([]storage.Hashtag, error)
	Ping(ctx context.Context) error
}

// BreakerSource reports circuit breaker states.
type BreakerSource interface {
	Breakers() []breaker.State
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Runner   PipelineRunner
	Store    TrendReader
	Breakers BreakerSource
	Metrics  http.Handler // optional; /metrics is not mounted when nil
	Token    string
}

// NewAppHandler returns the HTTP API. /health and /metrics are public; every
// other route requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/pipeline/run", handleRunPipeline(deps))
		r.Get("/pipeline/runs", handleListRuns(deps))
		r.Get("/trends", handleListTrends(deps))
		r.Get("/trends/{id}/history", handleTrendHistory(deps))
		r.Get("/hashtags", handleListHashtags(deps))
		r.Get("/breakers", handleBreakers(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleRunPipeline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var opts pipeline.Options
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if opts.TagLimit < 0 || opts.TagLimit > pipeline.MaxTagLimit {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "tag_limit must be between 0 and %d", pipeline.MaxTagLimit)
			return
		}

		res := deps.Runner.Run(r.Context(), opts)

		code := http.StatusOK
		if res.Status == pipeline.StatusError {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, res)
	}
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r, 20)
		if !ok {
			return
		}
		runs, err := deps.Store.RecentRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleListTrends(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r, trend.MaxItems)
		if !ok {
			return
		}
		rows, err := deps.Store.ListTrends(r.Context(), storage.TrendFilter{
			Platform: trend.Platform,
			Genre:    r.URL.Query().Get("genre"),
			Vibe:     r.URL.Query().Get("vibe"),
			Limit:    limit,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing trends: %v", err)
			return
		}
		if rows == nil {
			rows = []trend.Row{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleTrendHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r, 100)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		snaps, err := deps.Store.History(r.Context(), trend.Platform, id, limit)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no history for trend %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)
	}
}

func handleListHashtags(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r, trend.MaxItems)
		if !ok {
			return
		}
		tags, err := deps.Store.ListHashtags(r.Context(), trend.Platform, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing hashtags: %v", err)
			return
		}
		if tags == nil {
			tags = []storage.Hashtag{}
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

func handleBreakers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var states []breaker.State
		if deps.Breakers != nil {
			states = deps.Breakers.Breakers()
		}
		if states == nil {
			states = []breaker.State{}
		}
		writeJSON(w, http.StatusOK, states)
	}
}

// queryLimit parses ?limit=, writing a 400 and returning false when it is invalid.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
		return 0, false
	}
	if n > 500 {
		n = 500
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
