// Package config defines the configuration for the venue comparison service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VENUECMP_* environment variables.
type Config struct {
	Feed      FeedConfig                   `toml:"feed"`
	Venues    VenuesConfig                 `toml:"venues"`
	Assets    map[string]map[string]string `toml:"assets"`
	Analytics AnalyticsConfig              `toml:"analytics"`
	Redis     RedisConfig                  `toml:"redis"`
	Server    ServerConfig                 `toml:"server"`
	Notify    NotifyConfig                 `toml:"notify"`
	Log       LogConfig                    `toml:"log"`
	Mode      string                       `toml:"mode"`
	LogLevel  string                       `toml:"log_level"`
}

// FeedConfig holds the aggregator connection parameters.
type FeedConfig struct {
	URL                string   `toml:"url"`
	HeartbeatInterval  duration `toml:"heartbeat_interval"`
	ReconnectDelay     duration `toml:"reconnect_delay"`
	ExponentialBackoff bool     `toml:"exponential_backoff"`
	MaxReconnectDelay  duration `toml:"max_reconnect_delay"`
	HandshakeTimeout   duration `toml:"handshake_timeout"`
	WriteTimeout       duration `toml:"write_timeout"`
	StaleTimeout       duration `toml:"stale_timeout"`
	// Markets are subscribed in addition to the active asset.
	Markets []string `toml:"markets"`
}

// VenuesConfig names the two compared venues. First wins on-demand ties.
type VenuesConfig struct {
	First  string `toml:"first"`
	Second string `toml:"second"`
}

// AnalyticsConfig holds comparison tracking parameters.
type AnalyticsConfig struct {
	CaptureInterval duration  `toml:"capture_interval"`
	HistoryCapacity int       `toml:"history_capacity"`
	DefaultAsset    string    `toml:"default_asset"`
	PriceWindow     duration  `toml:"price_window"`
	DeriveCurves    bool      `toml:"derive_curves"`
	LiquiditySizes  []float64 `toml:"liquidity_sizes"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it the bus is in-process and rate limiting is per instance.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every /api request except health.
	APIKey          string `toml:"api_key"`
	RateLimitPerSec int    `toml:"rate_limit_per_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
}

// LogConfig controls the optional rotating log file. Console output is
// always on.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:               "ws://localhost:8000/ws",
			HeartbeatInterval: duration{30 * time.Second},
			ReconnectDelay:    duration{3 * time.Second},
			MaxReconnectDelay: duration{60 * time.Second},
			HandshakeTimeout:  duration{15 * time.Second},
			WriteTimeout:      duration{10 * time.Second},
			StaleTimeout:      duration{90 * time.Second},
		},
		Venues: VenuesConfig{
			First:  "hyperliquid",
			Second: "lighter",
		},
		Assets: map[string]map[string]string{
			"ETH": {"hyperliquid": "ETH", "lighter": "market_0"},
			"BTC": {"hyperliquid": "BTC", "lighter": "market_1"},
			"SOL": {"hyperliquid": "SOL", "lighter": "market_2"},
		},
		Analytics: AnalyticsConfig{
			CaptureInterval: duration{10 * time.Second},
			HistoryCapacity: 60,
			DefaultAsset:    "ETH",
			PriceWindow:     duration{time.Hour},
			LiquiditySizes:  []float64{1_000, 5_000, 10_000, 50_000, 100_000, 200_000, 500_000, 1_000_000},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "venuecmp:",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerSec: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"connection_lost", "connection_restored"},
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: url must start with ws:// or wss://, got %q", c.Feed.URL))
	}
	if c.Feed.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "feed: heartbeat_interval must be > 0")
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_delay must be > 0")
	}
	if c.Feed.ExponentialBackoff && c.Feed.MaxReconnectDelay.Duration < c.Feed.ReconnectDelay.Duration {
		errs = append(errs, "feed: max_reconnect_delay must not be below reconnect_delay")
	}
	if c.Feed.StaleTimeout.Duration < 0 {
		errs = append(errs, "feed: stale_timeout must be >= 0")
	}
	if c.Feed.StaleTimeout.Duration > 0 && c.Feed.StaleTimeout.Duration <= c.Feed.HeartbeatInterval.Duration {
		errs = append(errs, "feed: stale_timeout must exceed heartbeat_interval")
	}

	// Venues
	if c.Venues.First == "" || c.Venues.Second == "" {
		errs = append(errs, "venues: first and second must both be set")
	} else if strings.EqualFold(c.Venues.First, c.Venues.Second) {
		errs = append(errs, "venues: first and second must differ")
	}

	// Assets
	if len(c.Assets) == 0 {
		errs = append(errs, "assets: at least one asset must be configured")
	}
	for asset, markets := range c.Assets {
		for _, v := range []string{c.Venues.First, c.Venues.Second} {
			if v != "" && markets[strings.ToLower(v)] == "" {
				errs = append(errs, fmt.Sprintf("assets: %s has no market for venue %s", asset, v))
			}
		}
	}

	// Analytics
	if c.Analytics.CaptureInterval.Duration <= 0 {
		errs = append(errs, "analytics: capture_interval must be > 0")
	}
	if c.Analytics.HistoryCapacity < 1 {
		errs = append(errs, "analytics: history_capacity must be >= 1")
	}
	if !c.hasAsset(c.Analytics.DefaultAsset) {
		errs = append(errs, fmt.Sprintf("analytics: default_asset %q is not in assets", c.Analytics.DefaultAsset))
	}
	for _, s := range c.Analytics.LiquiditySizes {
		if s <= 0 {
			errs = append(errs, fmt.Sprintf("analytics: liquidity_sizes must be > 0, got %g", s))
			break
		}
	}

	// Redis
	if c.Redis.Enabled || strings.EqualFold(c.Mode, "full") {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled || !strings.EqualFold(c.Mode, "monitor") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerSec < 0 {
			errs = append(errs, "server: rate_limit_per_sec must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Log
	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		errs = append(errs, "log: max_size_mb must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) hasAsset(asset string) bool {
	for k := range c.Assets {
		if strings.EqualFold(k, asset) {
			return true
		}
	}
	return false
}
