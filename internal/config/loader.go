package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VENUECMP_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// A configured asset table replaces the defaults instead of merging.
		defaultAssets := cfg.Assets
		cfg.Assets = nil
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if len(cfg.Assets) == 0 {
			cfg.Assets = defaultAssets
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	normalizeAssets(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VENUECMP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "VENUECMP_FEED_URL")
	setDuration(&cfg.Feed.HeartbeatInterval, "VENUECMP_FEED_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Feed.ReconnectDelay, "VENUECMP_FEED_RECONNECT_DELAY")
	setBool(&cfg.Feed.ExponentialBackoff, "VENUECMP_FEED_EXPONENTIAL_BACKOFF")
	setDuration(&cfg.Feed.MaxReconnectDelay, "VENUECMP_FEED_MAX_RECONNECT_DELAY")
	setDuration(&cfg.Feed.StaleTimeout, "VENUECMP_FEED_STALE_TIMEOUT")
	setStringSlice(&cfg.Feed.Markets, "VENUECMP_FEED_MARKETS")

	// ── Venues ──
	setStr(&cfg.Venues.First, "VENUECMP_VENUES_FIRST")
	setStr(&cfg.Venues.Second, "VENUECMP_VENUES_SECOND")

	// ── Analytics ──
	setDuration(&cfg.Analytics.CaptureInterval, "VENUECMP_ANALYTICS_CAPTURE_INTERVAL")
	setInt(&cfg.Analytics.HistoryCapacity, "VENUECMP_ANALYTICS_HISTORY_CAPACITY")
	setStr(&cfg.Analytics.DefaultAsset, "VENUECMP_ANALYTICS_DEFAULT_ASSET")
	setBool(&cfg.Analytics.DeriveCurves, "VENUECMP_ANALYTICS_DERIVE_CURVES")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VENUECMP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VENUECMP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUECMP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUECMP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VENUECMP_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "VENUECMP_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "VENUECMP_REDIS_KEY_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VENUECMP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VENUECMP_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VENUECMP_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VENUECMP_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerSec, "VENUECMP_SERVER_RATE_LIMIT_PER_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VENUECMP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VENUECMP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VENUECMP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VENUECMP_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "VENUECMP_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "VENUECMP_MODE")
	setStr(&cfg.LogLevel, "VENUECMP_LOG_LEVEL")
}

// normalizeAssets upper-cases asset symbols and lower-cases venue names so
// lookups are case-insensitive.
func normalizeAssets(cfg *Config) {
	out := make(map[string]map[string]string, len(cfg.Assets))
	for asset, markets := range cfg.Assets {
		m := make(map[string]string, len(markets))
		for venue, market := range markets {
			m[strings.ToLower(strings.TrimSpace(venue))] = strings.TrimSpace(market)
		}
		out[strings.ToUpper(strings.TrimSpace(asset))] = m
	}
	cfg.Assets = out
	cfg.Venues.First = strings.ToLower(strings.TrimSpace(cfg.Venues.First))
	cfg.Venues.Second = strings.ToLower(strings.TrimSpace(cfg.Venues.Second))
	cfg.Analytics.DefaultAsset = strings.ToUpper(strings.TrimSpace(cfg.Analytics.DefaultAsset))
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
