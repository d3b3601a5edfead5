package domain

import "time"

// BookLevel is a single price level with its running depth from the best
// price through this level inclusive.
type BookLevel struct {
	Price              float64 `json:"price"`
	Size               float64 `json:"size"`
	CumulativeSize     float64 `json:"cumulative_size"`
	CumulativeNotional float64 `json:"cumulative_notional"`
}

// OrderBookSnapshot is the full book for one (venue, market). Bids are
// ordered best (highest) first and asks best (lowest) first. Snapshots are
// values: a new update replaces the previous snapshot, it is never patched.
type OrderBookSnapshot struct {
	Venue     Venue       `json:"venue"`
	Market    string      `json:"market"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Mid       *float64    `json:"mid,omitempty"`
	Spread    *float64    `json:"spread,omitempty"`
	SpreadBps *float64    `json:"spread_bps,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Key returns the snapshot's store key.
func (s OrderBookSnapshot) Key() VenueKey {
	return NewVenueKey(s.Venue, s.Market)
}

// BestBid returns the top bid price.
func (s OrderBookSnapshot) BestBid() (float64, bool) {
	if len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[0].Price, true
}

// BestAsk returns the top ask price.
func (s OrderBookSnapshot) BestAsk() (float64, bool) {
	if len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// MidPrice returns the feed-supplied mid when present, otherwise the mid of
// the top of book.
func (s OrderBookSnapshot) MidPrice() (float64, bool) {
	if s.Mid != nil {
		return *s.Mid, true
	}
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// SpreadValue returns the feed-supplied spread or best ask minus best bid.
func (s OrderBookSnapshot) SpreadValue() (float64, bool) {
	if s.Spread != nil {
		return *s.Spread, true
	}
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// SpreadBpsValue returns the feed-supplied spread in bps or spread/mid*1e4.
func (s OrderBookSnapshot) SpreadBpsValue() (float64, bool) {
	if s.SpreadBps != nil {
		return *s.SpreadBps, true
	}
	spread, ok := s.SpreadValue()
	if !ok {
		return 0, false
	}
	mid, ok := s.MidPrice()
	if !ok || mid <= 0 {
		return 0, false
	}
	return spread / mid * 10000, true
}

// PriceTick is a bare mid-price update for one (venue, market).
type PriceTick struct {
	Venue     Venue     `json:"venue"`
	Market    string    `json:"market"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the tick's store key.
func (t PriceTick) Key() VenueKey {
	return NewVenueKey(t.Venue, t.Market)
}

// PricePoint records a single price observation.
type PricePoint struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}
