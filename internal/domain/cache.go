package domain

import (
	"context"
	"time"
)

// RateLimiter provides per-key request limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides fan-out pub/sub for derived events. Channels ending in
// "*" are patterns.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channel names.
const (
	ChannelComparison = "ch:comparison"
	ChannelStatus     = "ch:status"
)

// BookChannel is the channel carrying order book snapshots for key.
func BookChannel(k VenueKey) string {
	return "ch:book:" + k.String()
}

// LiquidityChannel is the channel carrying liquidity curves for key.
func LiquidityChannel(k VenueKey) string {
	return "ch:liquidity:" + k.String()
}

// PriceChannel is the channel carrying price ticks for key.
func PriceChannel(k VenueKey) string {
	return "ch:price:" + k.String()
}
