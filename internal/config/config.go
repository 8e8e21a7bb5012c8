package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Scraper  ScraperConfig
	Grid     GridConfig
	Breaker  BreakerConfig
	Tagging  TaggingConfig
	Alerts   AlertsConfig
	Hashtags HashtagsConfig
	Schedule ScheduleConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	MCP      bool
	APIToken string
}

type StorageConfig struct {
	Driver      string `validate:"oneof=sqlite postgres"`
	DataDir     string `validate:"required_if=Driver sqlite"`
	PostgresDSN string `validate:"required_if=Driver postgres"`
}

type ScraperConfig struct {
	TargetURL string        `validate:"required,url"`
	BrowserWS string        `validate:"omitempty,url"`
	Timeout   time.Duration `validate:"gt=0"`
}

type GridConfig struct {
	BaseURL string `validate:"omitempty,url"`
	Secret  string
	Timeout time.Duration `validate:"gt=0"`
}

type BreakerConfig struct {
	Threshold int           `validate:"min=1"`
	Timeout   time.Duration `validate:"gt=0"`
}

type TaggingConfig struct {
	Backend          string  `validate:"oneof=heuristic ollama openrouter"`
	Limit            int     `validate:"min=1,max=50"`
	OllamaBaseURL    string  `validate:"omitempty,url"`
	OllamaModel      string  `validate:"required_if=Backend ollama"`
	OpenRouterModel  string  `validate:"required_if=Backend openrouter"`
	OpenRouterAPIKey string  `validate:"required_if=Backend openrouter"`
	Rate             float64 `validate:"gte=0"`
}

type AlertsConfig struct {
	WebhookURL     string `validate:"omitempty,url"`
	TelegramChatID int64
	TelegramToken  string
}

type HashtagsConfig struct {
	FeedURL string `validate:"omitempty,url"`
}

type ScheduleConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json pretty"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4100,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Scraper: ScraperConfig{
			TargetURL: "https://ads.tiktok.com/business/creativecenter/inspiration/popular/music/pc/en",
			Timeout:   25 * time.Second,
		},
		Grid: GridConfig{
			Timeout: 30 * time.Second,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Timeout:   5 * time.Minute,
		},
		Tagging: TaggingConfig{
			Backend:         "heuristic",
			Limit:           15,
			OllamaBaseURL:   "http://localhost:11434",
			OllamaModel:     "llama3.2",
			OpenRouterModel: "meta-llama/llama-3.1-8b-instruct",
			Rate:            2,
		},
		Schedule: ScheduleConfig{
			Interval: 6 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/trendsync/config.yaml and TRENDSYNC_* environment
// variables, which override file values. Secrets are read from the
// environment only.
func Load() (Config, error) {
	return loadFrom(openYAMLStore(FilePath()))
}

func loadFrom(st Store) (Config, error) {
	cfg := defaults()
	applyStore(&cfg, st)
	applyEnvOverrides(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
