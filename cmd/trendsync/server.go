package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/trendsync/internal/acquire"
	"github.com/kalambet/trendsync/internal/alert"
	"github.com/kalambet/trendsync/internal/api"
	"github.com/kalambet/trendsync/internal/config"
	"github.com/kalambet/trendsync/internal/grid"
	"github.com/kalambet/trendsync/internal/hashtags"
	"github.com/kalambet/trendsync/internal/ingest"
	"github.com/kalambet/trendsync/internal/logging"
	"github.com/kalambet/trendsync/internal/metrics"
	"github.com/kalambet/trendsync/internal/ollama"
	"github.com/kalambet/trendsync/internal/openrouter"
	"github.com/kalambet/trendsync/internal/pipeline"
	"github.com/kalambet/trendsync/internal/scraper"
	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/tagging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpFlag, _ := cmd.Flags().GetBool("mcp")
		noSchedule, _ := cmd.Flags().GetBool("no-schedule")
		return runServer(mcpFlag, noSchedule)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Bool("no-schedule", false, "disable the interval scheduler; runs happen only on trigger")
}

// app is the composition root shared by serve and run.
type app struct {
	store    storage.Repository
	orch     *acquire.Orchestrator
	runner   *observedRunner
	recorder *metrics.Recorder
	alerts   *alert.Dispatcher
}

// observedRunner refreshes the breaker gauges after every run.
type observedRunner struct {
	*pipeline.Runner
	orch     *acquire.Orchestrator
	recorder *metrics.Recorder
}

func (r *observedRunner) Run(ctx context.Context, opts pipeline.Options) pipeline.Result {
	res := r.Runner.Run(ctx, opts)
	r.recorder.ObserveBreakers(r.orch.Breakers())
	return res
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.Connect(ctx, cfg.Storage.Driver, cfg.Storage.DataDir, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	dispatcher := alert.NewDispatcher(alertSinks(cfg)...)

	browser := scraper.NewPlaywright(cfg.Scraper.BrowserWS, cfg.Scraper.Timeout)
	orch := acquire.New(acquire.Config{
		Primary:          scraper.New(browser, cfg.Scraper.TargetURL),
		Secondary:        grid.NewClient(cfg.Grid.BaseURL, cfg.Grid.Secret, cfg.Grid.Timeout),
		Stale:            store,
		Cache:            store,
		Alerts:           dispatcher,
		BreakerThreshold: cfg.Breaker.Threshold,
		BreakerTimeout:   cfg.Breaker.Timeout,
	})

	recorder := metrics.New(store)
	runner := pipeline.NewRunner(pipeline.Config{
		Acquirer:   orch,
		Store:      store,
		Classifier: newClassifier(ctx, cfg.Tagging),
		Hashtags:   hashtags.New(cfg.Hashtags.FeedURL, store),
		Recorder:   recorder,
		TagLimit:   cfg.Tagging.Limit,
	})
	recorder.ObserveBreakers(orch.Breakers())

	return &app{
		store:    store,
		orch:     orch,
		runner:   &observedRunner{Runner: runner, orch: orch, recorder: recorder},
		recorder: recorder,
		alerts:   dispatcher,
	}, nil
}

// Close waits for in-flight alerts and releases storage.
func (a *app) Close() {
	a.alerts.Wait()
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

func alertSinks(cfg config.Config) []alert.Sink {
	var sinks []alert.Sink
	if cfg.Alerts.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhook(cfg.Alerts.WebhookURL))
	}
	if cfg.Alerts.TelegramToken != "" && cfg.Alerts.TelegramChatID != 0 {
		tg, err := alert.NewTelegram(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID)
		if err != nil {
			slog.Warn("telegram alerts disabled", "error", err)
		} else {
			sinks = append(sinks, tg)
		}
	}
	return sinks
}

// newClassifier picks the tagging backend. An unreachable Ollama falls back
// to the keyword heuristic rather than failing startup.
func newClassifier(ctx context.Context, cfg config.TaggingConfig) tagging.Classifier {
	switch cfg.Backend {
	case "ollama":
		client := ollama.New(cfg.OllamaBaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.OllamaModel, os.Stderr); err != nil {
			slog.Warn("ollama unavailable, tagging with heuristic", "error", err)
			return tagging.Heuristic{}
		}
		slog.Info("tagging with ollama", "model", cfg.OllamaModel)
		return tagging.NewLLMClassifier(client, cfg.OllamaModel, cfg.Rate)
	case "openrouter":
		client := openrouter.NewClient(cfg.OpenRouterAPIKey)
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.CheckModel(checkCtx, cfg.OpenRouterModel); err != nil {
			slog.Warn("openrouter model check failed", "model", cfg.OpenRouterModel, "error", err)
		}
		slog.Info("tagging with openrouter", "model", cfg.OpenRouterModel)
		return tagging.NewLLMClassifier(client, cfg.OpenRouterModel, cfg.Rate)
	default:
		return tagging.Heuristic{}
	}
}

func runServer(mcpFlag, noSchedule bool) error {
	fmt.Fprintf(os.Stderr, "trendsync version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		slog.Warn("TRENDSYNC_API_TOKEN is not set; authenticated endpoints will reject every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewAppHandler(api.AppDeps{
		Runner:   a.runner,
		Store:    a.store,
		Breakers: a.orch,
		Metrics:  a.recorder.Handler(),
		Token:    cfg.Server.APIToken,
	})

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	workerDone := make(chan struct{})
	if noSchedule {
		close(workerDone)
	} else {
		worker := ingest.NewWorker(a.runner, cfg.Schedule.Interval)
		go func() {
			defer close(workerDone)
			worker.Run(ctx)
		}()
	}
	// Runs outlive ctx, so storage may only close once they have committed.
	defer func() {
		stop()
		<-workerDone
		a.runner.Drain()
	}()

	if mcpFlag || cfg.Server.MCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Runner: a.runner, Store: a.store})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("trendsync listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
