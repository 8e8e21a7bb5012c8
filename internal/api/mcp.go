package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/trendsync/internal/pipeline"
	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/trend"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner PipelineRunner
	Store  TrendReader
}

// NewMCPServer creates an MCP server exposing pipeline runs and trend reads.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"trendsync",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("trendsync ingests trending TikTok sounds. Use list_trends to read the current chart and run_pipeline to refresh it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("run_pipeline",
			mcp.WithDescription("Acquire the current trending sounds and store a new snapshot. Returns the run result."),
			mcp.WithBoolean("force_secondary", mcp.Description("Skip the headless browser and use the grid broker")),
			mcp.WithBoolean("use_stale_fallback", mcp.Description("Serve the last stored batch instead of acquiring")),
			mcp.WithNumber("tag_limit", mcp.Description("Maximum number of trends to tag this run (default 15, max 50)")),
			mcp.WithBoolean("reload", mcp.Description("Replace all current trends instead of upserting")),
		),
		mcpRunPipeline(deps),
	)

	s.AddTool(
		mcp.NewTool("list_trends",
			mcp.WithDescription("List current trending sounds ordered by rank."),
			mcp.WithString("genre", mcp.Description("Filter by genre, e.g. hip-hop")),
			mcp.WithString("vibe", mcp.Description("Filter by vibe, e.g. chill")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListTrends(deps),
	)

	s.AddTool(
		mcp.NewTool("trend_history",
			mcp.WithDescription("Return the stored snapshots of one trending sound, newest first."),
			mcp.WithString("id", mcp.Description("Trend id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of snapshots (default 30)")),
		),
		mcpTrendHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"trends://top",
			"Top Trends",
			mcp.WithResourceDescription("Top 10 current trending sounds as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTop(deps),
	)

	return s
}

func mcpRunPipeline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := pipeline.Options{
			ForceSecondary:   req.GetBool("force_secondary", false),
			UseStaleFallback: req.GetBool("use_stale_fallback", false),
			TagLimit:         req.GetInt("tag_limit", 0),
			Reload:           req.GetBool("reload", false),
		}
		if opts.TagLimit < 0 || opts.TagLimit > pipeline.MaxTagLimit {
			return mcpError(fmt.Sprintf("tag_limit must be between 0 and %d", pipeline.MaxTagLimit)), nil
		}

		res := deps.Runner.Run(ctx, opts)

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if res.Status == pipeline.StatusError {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListTrends(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > trend.MaxItems {
			limit = trend.MaxItems
		}

		rows, err := deps.Store.ListTrends(ctx, storage.TrendFilter{
			Platform: trend.Platform,
			Genre:    req.GetString("genre", ""),
			Vibe:     req.GetString("vibe", ""),
			Limit:    limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("listing trends failed: %v", err)), nil
		}
		if len(rows) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(rows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTrendHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return mcpError("id is required"), nil
		}
		limit := req.GetInt("limit", 30)
		if limit <= 0 {
			limit = 30
		}

		snaps, err := deps.Store.History(ctx, trend.Platform, id, limit)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no history for trend %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading history failed: %v", err)), nil
		}

		b, err := json.Marshal(snaps)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTop(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rows, err := deps.Store.ListTrends(ctx, storage.TrendFilter{Platform: trend.Platform, Limit: 10})
		if err != nil {
			return nil, fmt.Errorf("failed to list trends: %w", err)
		}

		type topEntry struct {
			Rank       int      `json:"rank"`
			ID         string   `json:"id"`
			Title      string   `json:"title"`
			Author     string   `json:"author"`
			GrowthRate *float64 `json:"growth_rate"`
			Genre      *string  `json:"genre"`
			Vibe       *string  `json:"vibe"`
		}

		entries := make([]topEntry, len(rows))
		for i, row := range rows {
			entries[i] = topEntry{
				Rank:       row.Rank,
				ID:         row.ID,
				Title:      row.Title,
				Author:     row.Author,
				GrowthRate: row.GrowthRate,
				Genre:      row.Genre,
				Vibe:       row.Vibe,
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trends: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
