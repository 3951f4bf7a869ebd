package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	SteamSpy SteamSpyConfig `mapstructure:"steamspy"`
	SteamAPI SteamAPIConfig `mapstructure:"steamapi"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// SteamSpyConfig holds configuration for the bulk listing / primary detail
// source. SteamSpy publishes separate rate limits for the paginated "all"
// endpoint (one page per minute) and the per-app detail endpoint.
type SteamSpyConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	PageDelay time.Duration `mapstructure:"page_delay"`
	AppDelay  time.Duration `mapstructure:"app_delay"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SteamAPIConfig holds configuration for the secondary storefront detail source.
type SteamAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Delay   time.Duration `mapstructure:"delay"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds the admission-control caps that bound each run.
// These are the operator-tunable knobs that keep a daily run inside a
// predictable time and API budget.
type PipelineConfig struct {
	MaxNewPerRun      int `mapstructure:"max_new_per_run"`
	MaxEnrichments    int `mapstructure:"max_enrichments"`
	MaxRefreshes      int `mapstructure:"max_refreshes"`
	MaxPages          int `mapstructure:"max_pages"`
	RefreshOlderDays  int `mapstructure:"refresh_older_days"`
	PruneOlderDays    int `mapstructure:"prune_older_days"`
	PruneSampleSize   int `mapstructure:"prune_sample_size"`
	MaxRemovals       int `mapstructure:"max_removals"`
	HighPriorityCount int `mapstructure:"high_priority_count"`
	Concurrency       int `mapstructure:"concurrency"`
}

// TelegramConfig holds run-summary notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("PLAYINTEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// SteamSpy defaults
	v.SetDefault("steamspy.base_url", "https://steamspy.com/api.php")
	v.SetDefault("steamspy.page_delay", "61s")
	v.SetDefault("steamspy.app_delay", "250ms")
	v.SetDefault("steamspy.timeout", "60s")

	// Steam storefront defaults
	v.SetDefault("steamapi.base_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("steamapi.delay", "1500ms")
	v.SetDefault("steamapi.timeout", "15s")

	// Pipeline caps sized for a daily run
	v.SetDefault("pipeline.max_new_per_run", 500)
	v.SetDefault("pipeline.max_enrichments", 1000)
	v.SetDefault("pipeline.max_refreshes", 2000)
	v.SetDefault("pipeline.max_pages", 20)
	v.SetDefault("pipeline.refresh_older_days", 7)
	v.SetDefault("pipeline.prune_older_days", 30)
	v.SetDefault("pipeline.prune_sample_size", 100)
	v.SetDefault("pipeline.max_removals", 20)
	v.SetDefault("pipeline.high_priority_count", 100)
	v.SetDefault("pipeline.concurrency", 4)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.SteamSpy.BaseURL == "" {
		return fmt.Errorf("steamspy.base_url is required")
	}
	if c.SteamSpy.PageDelay < time.Second {
		return fmt.Errorf("steamspy.page_delay must be at least 1 second")
	}
	if c.SteamSpy.AppDelay <= 0 {
		return fmt.Errorf("steamspy.app_delay must be positive")
	}

	if c.SteamAPI.BaseURL == "" {
		return fmt.Errorf("steamapi.base_url is required")
	}
	if c.SteamAPI.Delay <= 0 {
		return fmt.Errorf("steamapi.delay must be positive")
	}

	if c.Pipeline.MaxNewPerRun < 1 {
		return fmt.Errorf("pipeline.max_new_per_run must be at least 1")
	}
	if c.Pipeline.MaxEnrichments < 1 {
		return fmt.Errorf("pipeline.max_enrichments must be at least 1")
	}
	if c.Pipeline.MaxRefreshes < 1 {
		return fmt.Errorf("pipeline.max_refreshes must be at least 1")
	}
	if c.Pipeline.MaxPages < 1 {
		return fmt.Errorf("pipeline.max_pages must be at least 1")
	}
	if c.Pipeline.RefreshOlderDays < 1 {
		return fmt.Errorf("pipeline.refresh_older_days must be at least 1")
	}
	if c.Pipeline.PruneOlderDays < 1 {
		return fmt.Errorf("pipeline.prune_older_days must be at least 1")
	}
	if c.Pipeline.PruneSampleSize < 1 {
		return fmt.Errorf("pipeline.prune_sample_size must be at least 1")
	}
	if c.Pipeline.MaxRemovals < 0 {
		return fmt.Errorf("pipeline.max_removals must not be negative")
	}
	if c.Pipeline.HighPriorityCount < 0 {
		return fmt.Errorf("pipeline.high_priority_count must not be negative")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	return nil
}
