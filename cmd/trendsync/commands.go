package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/trendsync/internal/breaker"
	"github.com/kalambet/trendsync/internal/config"
	"github.com/kalambet/trendsync/internal/logging"
	"github.com/kalambet/trendsync/internal/pipeline"
	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/trend"
)

// --- run / trigger ---

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("force-secondary", false, "skip the headless browser and use the grid broker")
	cmd.Flags().Bool("stale", false, "use the last stored batch instead of acquiring")
	cmd.Flags().Int("tag-limit", 0, fmt.Sprintf("tagging quota for this run (default %d, max %d)", pipeline.DefaultTagLimit, pipeline.MaxTagLimit))
	cmd.Flags().Bool("reload", false, "replace all current trends instead of upserting")
}

func runOptions(cmd *cobra.Command) (pipeline.Options, error) {
	forceSecondary, _ := cmd.Flags().GetBool("force-secondary")
	stale, _ := cmd.Flags().GetBool("stale")
	tagLimit, _ := cmd.Flags().GetInt("tag-limit")
	reload, _ := cmd.Flags().GetBool("reload")

	if tagLimit < 0 || tagLimit > pipeline.MaxTagLimit {
		return pipeline.Options{}, fmt.Errorf("--tag-limit must be between 0 and %d", pipeline.MaxTagLimit)
	}
	return pipeline.Options{
		ForceSecondary:   forceSecondary,
		UseStaleFallback: stale,
		TagLimit:         tagLimit,
		Reload:           reload,
	}, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline cycle locally and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.runner.Run(cmd.Context(), opts)
		return reportRun(stdout, res)
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a pipeline run on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Running pipeline...")
		resp, err := client.post(cmd.Context(), "/pipeline/run", opts)
		if err != nil {
			return err
		}
		res, err := decodeRunResult(resp)
		if err != nil {
			return err
		}
		return reportRun(stdout, res)
	},
}

func init() {
	addRunFlags(runCmd)
	addRunFlags(triggerCmd)
}

// decodeRunResult reads a run result. Failed runs come back as 500 with the
// result as body, so the body is decoded before the status is considered.
func decodeRunResult(resp *http.Response) (pipeline.Result, error) {
	if resp.StatusCode != http.StatusInternalServerError {
		var res pipeline.Result
		err := decodeJSON(resp, &res)
		return res, err
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var res pipeline.Result
	if json.Unmarshal(body, &res) == nil && res.Status != "" {
		return res, nil
	}
	return pipeline.Result{}, newAPIError(resp.StatusCode, body)
}

// reportRun prints a run result and turns an error status into an error.
func reportRun(w io.Writer, res pipeline.Result) error {
	switch res.Status {
	case pipeline.StatusSuccess:
		printSuccess("Run %s stored %d trends from %s", res.RunID, res.Count, res.Source)
	case pipeline.StatusWarning:
		printWarning("Run %s produced no data: %s", res.RunID, res.Error)
	default:
		printError("Run %s failed: %s", res.RunID, res.Error)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}

	if res.Status == pipeline.StatusError {
		return fmt.Errorf("pipeline run failed")
	}
	return nil
}

// --- trends ---

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "List current trending sounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		genre, _ := cmd.Flags().GetString("genre")
		vibe, _ := cmd.Flags().GetString("vibe")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if genre != "" {
			q.Set("genre", genre)
		}
		if vibe != "" {
			q.Set("vibe", vibe)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/trends?"+q.Encode())
		if err != nil {
			return err
		}

		var rows []trend.Row
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(stderr, "No trends stored yet.")
			return nil
		}
		for _, r := range rows {
			fmt.Fprintln(stdout, formatTrendRow(r))
		}
		return nil
	},
}

func init() {
	trendsCmd.Flags().String("genre", "", "filter by genre")
	trendsCmd.Flags().String("vibe", "", "filter by vibe")
	trendsCmd.Flags().Int("limit", 20, "maximum number of trends")
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the stored snapshots of one trend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/trends/%s/history?limit=%d", url.PathEscape(args[0]), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var snaps []trend.Snapshot
		if err := decodeJSON(resp, &snaps); err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Fprintln(stdout, formatSnapshot(s))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 30, "maximum number of snapshots")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health, breaker state and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	} else {
		printStatus("Server", "running at %s", client.baseURL)
	}

	resp, err = client.get(ctx, "/breakers")
	if err != nil {
		return err
	}
	var states []breaker.State
	if err := decodeJSON(resp, &states); err != nil {
		return err
	}
	for _, s := range states {
		printStatus("Breaker "+s.Name, "%s", breakerLabel(s))
	}

	resp, err = client.get(ctx, "/pipeline/runs?limit=5")
	if err != nil {
		return err
	}
	var runs []storage.Run
	if err := decodeJSON(resp, &runs); err != nil {
		return err
	}
	if len(runs) == 0 {
		printStatus("Last run", "never")
		return nil
	}
	for i, r := range runs {
		label := "Run"
		if i == 0 {
			label = "Last run"
		}
		printStatus(label, "%s  %s  %d items from %s", r.StartedAt.Local().Format(time.DateTime), runStatusLabel(r.Status), r.Count, r.Source)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "  %s\n", colorize(colorCyan, config.FilePath()))
		for _, s := range config.Settings(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, s.Key), s.Value, colorize(colorDim, s.Env))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys:\n  " +
		strings.Join(config.Keys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.Set(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
