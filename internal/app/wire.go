package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/venuecompare/internal/bus"
	"github.com/alanyoungcy/venuecompare/internal/cache/redis"
	"github.com/alanyoungcy/venuecompare/internal/config"
	"github.com/alanyoungcy/venuecompare/internal/domain"
	"github.com/alanyoungcy/venuecompare/internal/feed"
	"github.com/alanyoungcy/venuecompare/internal/notify"
	"github.com/alanyoungcy/venuecompare/internal/server/middleware"
	"github.com/alanyoungcy/venuecompare/internal/session"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Session *session.Session

	// Bus is nil in monitor mode without Redis.
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter
	// Redis is non-nil when the bus and limiter are Redis-backed.
	Redis *redis.Client

	Notifier *notify.Notifier
}

// needsRedis reports whether the configuration requires a Redis connection.
func needsRedis(cfg *config.Config) bool {
	return cfg.Redis.Enabled || strings.EqualFold(cfg.Mode, "full")
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Bus and rate limiter ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		if !strings.EqualFold(cfg.Mode, "monitor") {
			mem := bus.NewMemory()
			closers = append(closers, func() { _ = mem.Close() })
			deps.Bus = mem
		}
		deps.RateLimiter = middleware.NewLocalLimiter()
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Session ---
	sess, err := session.New(sessionConfig(cfg), deps.Bus, deps.Notifier, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	closers = append(closers, func() { _ = sess.Close() })
	if len(cfg.Feed.Markets) > 0 {
		sess.Subscribe(cfg.Feed.Markets...)
	}
	deps.Session = sess

	logger.Info("dependencies wired",
		slog.Bool("redis", deps.Redis != nil),
		slog.Bool("bus", deps.Bus != nil),
		slog.Int("notify_senders", len(senders)),
		slog.String("session_id", sess.ID()),
	)
	return deps, cleanup, nil
}

// assetMap converts the configured asset table.
func assetMap(cfg *config.Config) domain.AssetMap {
	out := make(domain.AssetMap, len(cfg.Assets))
	for asset, markets := range cfg.Assets {
		m := make(map[domain.Venue]string, len(markets))
		for venue, market := range markets {
			m[domain.Venue(venue)] = market
		}
		out[asset] = m
	}
	return out
}

// sessionConfig translates the file configuration into a session.Config.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Feed: feed.Config{
			URL:                cfg.Feed.URL,
			HeartbeatInterval:  cfg.Feed.HeartbeatInterval.Duration,
			ReconnectDelay:     cfg.Feed.ReconnectDelay.Duration,
			ExponentialBackoff: cfg.Feed.ExponentialBackoff,
			MaxReconnectDelay:  cfg.Feed.MaxReconnectDelay.Duration,
			HandshakeTimeout:   cfg.Feed.HandshakeTimeout.Duration,
			WriteTimeout:       cfg.Feed.WriteTimeout.Duration,
			StaleTimeout:       cfg.Feed.StaleTimeout.Duration,
		},
		Pair: domain.VenuePair{
			First:  domain.Venue(strings.ToLower(cfg.Venues.First)),
			Second: domain.Venue(strings.ToLower(cfg.Venues.Second)),
		},
		Assets:          assetMap(cfg),
		Asset:           cfg.Analytics.DefaultAsset,
		CaptureInterval: cfg.Analytics.CaptureInterval.Duration,
		HistoryCapacity: cfg.Analytics.HistoryCapacity,
		PriceWindow:     cfg.Analytics.PriceWindow.Duration,
		DeriveCurves:    cfg.Analytics.DeriveCurves,
		LiquiditySizes:  cfg.Analytics.LiquiditySizes,
	}
}
