package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/venuecompare/internal/server"
	"github.com/alanyoungcy/venuecompare/internal/server/handler"
	"github.com/alanyoungcy/venuecompare/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// MonitorMode runs the comparison session alone. Captures are logged and,
// when Redis is configured, published to the bus.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Session.Run(ctx)
	})

	return ignoreCanceled(g.Wait())
}

// ServerMode runs the session, the websocket hub, and the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Session.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps)

	return ignoreCanceled(g.Wait())
}

// FullMode runs server mode with the bus and limiter on Redis, so other
// processes can consume the published book, liquidity, price, and
// comparison events.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if deps.Redis == nil {
		return errors.New("full mode: redis is required")
	}
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("notify", deps.Notifier.Enabled()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Session.Run(ctx)
	})

	// Surface a Redis outage early instead of silently dropping publishes.
	g.Go(func() error {
		return a.watchRedis(ctx, deps)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return ignoreCanceled(g.Wait())
}

// watchRedis pings Redis periodically and logs state transitions.
func (a *App) watchRedis(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := deps.Redis.Ping(pingCtx)
			cancel()
			switch {
			case err != nil && healthy:
				healthy = false
				a.logger.WarnContext(ctx, "redis unreachable", slog.String("error", err.Error()))
			case err == nil && !healthy:
				healthy = true
				a.logger.InfoContext(ctx, "redis reachable again")
			}
		}
	}
}

// startHTTPServer registers the hub and the HTTP server on g. The server is
// shut down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sess := deps.Session

	hub := ws.NewHub(deps.Bus, func() any { return sess.Status() }, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerSec: a.cfg.Server.RateLimitPerSec,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(),
		Session:    handler.NewSessionHandler(sess, a.cfg.Mode, a.logger),
		State:      handler.NewStateHandler(sess.Store(), sess.Assets(), a.logger),
		Comparison: handler.NewComparisonHandler(sess.Tracker(), a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
