package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kInt64
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "TRENDSYNC_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "TRENDSYNC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp", typ: kBool, env: "TRENDSYNC_SERVER_MCP",
		apply:   func(cfg *Config, v any) { cfg.Server.MCP = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCP },
	},
	{
		key: "server.api_token", typ: kString, env: "TRENDSYNC_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.driver", typ: kString, env: "TRENDSYNC_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TRENDSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.postgres_dsn", typ: kString, env: "TRENDSYNC_POSTGRES_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.PostgresDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PostgresDSN },
	},
	{
		key: "scraper.target_url", typ: kString, env: "TRENDSYNC_SCRAPER_TARGET_URL",
		apply:   func(cfg *Config, v any) { cfg.Scraper.TargetURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.TargetURL },
	},
	{
		key: "scraper.browser_ws", typ: kString, env: "TRENDSYNC_SCRAPER_BROWSER_WS",
		apply:   func(cfg *Config, v any) { cfg.Scraper.BrowserWS = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.BrowserWS },
	},
	{
		key: "scraper.timeout", typ: kDuration, env: "TRENDSYNC_SCRAPER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Scraper.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scraper.Timeout },
	},
	{
		key: "grid.base_url", typ: kString, env: "TRENDSYNC_GRID_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Grid.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Grid.BaseURL },
	},
	{
		key: "grid.secret", typ: kString, env: "TRENDSYNC_GRID_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Grid.Secret = v.(string) },
		extract: func(cfg Config) any { return cfg.Grid.Secret },
	},
	{
		key: "grid.timeout", typ: kDuration, env: "TRENDSYNC_GRID_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Grid.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Grid.Timeout },
	},
	{
		key: "breaker.threshold", typ: kInt, env: "TRENDSYNC_BREAKER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Breaker.Threshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Breaker.Threshold },
	},
	{
		key: "breaker.timeout", typ: kDuration, env: "TRENDSYNC_BREAKER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Breaker.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Breaker.Timeout },
	},
	{
		key: "tagging.backend", typ: kString, env: "TRENDSYNC_TAGGING_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Tagging.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Tagging.Backend },
	},
	{
		key: "tagging.limit", typ: kInt, env: "TRENDSYNC_TAGGING_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Tagging.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Tagging.Limit },
	},
	{
		key: "tagging.ollama_base_url", typ: kString, env: "TRENDSYNC_TAGGING_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Tagging.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Tagging.OllamaBaseURL },
	},
	{
		key: "tagging.ollama_model", typ: kString, env: "TRENDSYNC_TAGGING_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Tagging.OllamaModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Tagging.OllamaModel },
	},
	{
		key: "tagging.openrouter_model", typ: kString, env: "TRENDSYNC_TAGGING_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Tagging.OpenRouterModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Tagging.OpenRouterModel },
	},
	{
		key: "tagging.openrouter_api_key", typ: kString, env: "TRENDSYNC_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Tagging.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Tagging.OpenRouterAPIKey },
	},
	{
		key: "tagging.rate", typ: kFloat, env: "TRENDSYNC_TAGGING_RATE",
		apply:   func(cfg *Config, v any) { cfg.Tagging.Rate = v.(float64) },
		extract: func(cfg Config) any { return cfg.Tagging.Rate },
	},
	{
		key: "alerts.webhook_url", typ: kString, env: "TRENDSYNC_ALERTS_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Alerts.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Alerts.WebhookURL },
	},
	{
		key: "alerts.telegram_chat_id", typ: kInt64, env: "TRENDSYNC_ALERTS_TELEGRAM_CHAT_ID",
		apply:   func(cfg *Config, v any) { cfg.Alerts.TelegramChatID = v.(int64) },
		extract: func(cfg Config) any { return cfg.Alerts.TelegramChatID },
	},
	{
		key: "alerts.telegram_token", typ: kString, env: "TRENDSYNC_TELEGRAM_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Alerts.TelegramToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Alerts.TelegramToken },
	},
	{
		key: "hashtags.feed_url", typ: kString, env: "TRENDSYNC_HASHTAGS_FEED_URL",
		apply:   func(cfg *Config, v any) { cfg.Hashtags.FeedURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Hashtags.FeedURL },
	},
	{
		key: "schedule.interval", typ: kDuration, env: "TRENDSYNC_SCHEDULE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schedule.Interval },
	},
	{
		key: "log.level", typ: kString, env: "TRENDSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "TRENDSYNC_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

// parseValue converts raw into the Go type of typ.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kInt64:
		return strconv.ParseInt(raw, 10, 64)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return nil, fmt.Errorf("unsupported key type %d", typ)
}

// applyStore overlays file values. A value that does not parse is reported
// and the default kept.
func applyStore(cfg *Config, st Store) {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := st.Lookup(s.key)
		if !ok {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring config value", "key", s.key, "value", raw, "err", err)
			continue
		}
		s.apply(cfg, v)
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring environment override", "env", s.env, "value", raw, "err", err)
			continue
		}
		s.apply(cfg, v)
	}
}
