// Package venuestate holds the latest order book, liquidity curve, and price
// for every (venue, market) pair seen on the feed.
package venuestate

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// DefaultPriceWindow is how far back per-key price history extends.
const DefaultPriceWindow = time.Hour

// ChangeKind identifies which value changed for a key.
type ChangeKind string

const (
	ChangeOrderBook ChangeKind = "orderbook"
	ChangeLiquidity ChangeKind = "liquidity"
	ChangePrice     ChangeKind = "price"
)

// Change notifies listeners that the value of Kind for Key was replaced.
// Listeners read the new value back from the store.
type Change struct {
	Kind ChangeKind
	Key  domain.VenueKey
}

// Listener is called synchronously after every store write.
type Listener func(Change)

// Store is the venue state store. Every write replaces the stored value for
// its key as a whole; stored values are never modified afterwards, so values
// returned by readers may share slices with the store and must be treated as
// read-only.
type Store struct {
	mu      sync.RWMutex
	books   map[domain.VenueKey]domain.OrderBookSnapshot
	curves  map[domain.VenueKey]domain.LiquidityCostCurve
	prices  map[domain.VenueKey]domain.PricePoint
	history *PriceHistory

	listenerMu sync.RWMutex
	listeners  []Listener
}

// New creates an empty Store keeping priceWindow of price history per key.
// A non-positive window uses DefaultPriceWindow.
func New(priceWindow time.Duration) *Store {
	if priceWindow <= 0 {
		priceWindow = DefaultPriceWindow
	}
	return &Store{
		books:   make(map[domain.VenueKey]domain.OrderBookSnapshot),
		curves:  make(map[domain.VenueKey]domain.LiquidityCostCurve),
		prices:  make(map[domain.VenueKey]domain.PricePoint),
		history: NewPriceHistory(priceWindow),
	}
}

// OnChange registers a listener for every subsequent write.
func (s *Store) OnChange(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// PutOrderBook replaces the snapshot for the snapshot's key. A book with a
// mid price also extends the key's price history.
func (s *Store) PutOrderBook(snap domain.OrderBookSnapshot) {
	key := snap.Key()
	s.mu.Lock()
	s.books[key] = snap
	s.mu.Unlock()
	if mid, ok := snap.MidPrice(); ok && !snap.Timestamp.IsZero() {
		s.history.Track(key, domain.PricePoint{Price: mid, Time: snap.Timestamp})
	}
	s.notify(Change{Kind: ChangeOrderBook, Key: key})
}

// PutCurve replaces the liquidity curve for the curve's key.
func (s *Store) PutCurve(curve domain.LiquidityCostCurve) {
	key := curve.Key()
	s.mu.Lock()
	s.curves[key] = curve
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeLiquidity, Key: key})
}

// PutPriceTick replaces the cached mid price for the tick's key and records
// it in the price history.
func (s *Store) PutPriceTick(tick domain.PriceTick) {
	key := tick.Key()
	pt := domain.PricePoint{Price: tick.Price, Time: tick.Timestamp}
	s.mu.Lock()
	s.prices[key] = pt
	s.mu.Unlock()
	s.history.Track(key, pt)
	s.notify(Change{Kind: ChangePrice, Key: key})
}

// OrderBook returns the latest snapshot for key.
func (s *Store) OrderBook(key domain.VenueKey) (domain.OrderBookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.books[key]
	return snap, ok
}

// Curve returns the latest liquidity curve for key.
func (s *Store) Curve(key domain.VenueKey) (domain.LiquidityCostCurve, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.curves[key]
	return c, ok
}

// Price returns the latest cached mid price for key.
func (s *Store) Price(key domain.VenueKey) (domain.PricePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[key]
	return p, ok
}

// PriceHistory returns a copy of the windowed price history for key.
func (s *Store) PriceHistory(key domain.VenueKey) []domain.PricePoint {
	return s.history.Get(key)
}

// Keys returns every key with any stored value, sorted by venue then market.
func (s *Store) Keys() []domain.VenueKey {
	s.mu.RLock()
	seen := make(map[domain.VenueKey]struct{}, len(s.books)+len(s.curves))
	for k := range s.books {
		seen[k] = struct{}{}
	}
	for k := range s.curves {
		seen[k] = struct{}{}
	}
	for k := range s.prices {
		seen[k] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]domain.VenueKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Market < out[j].Market
	})
	return out
}

func (s *Store) notify(c Change) {
	s.listenerMu.RLock()
	listeners := s.listeners
	s.listenerMu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}
