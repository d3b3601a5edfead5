package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Venue identifies one of the trading venues whose data is compared.
type Venue string

const (
	VenueHyperliquid Venue = "hyperliquid"
	VenueLighter     Venue = "lighter"
)

// VenueKey is the composite (venue, market) key for all per-market state.
type VenueKey struct {
	Venue  Venue  `json:"venue"`
	Market string `json:"market"`
}

// NewVenueKey builds a VenueKey.
func NewVenueKey(venue Venue, market string) VenueKey {
	return VenueKey{Venue: venue, Market: market}
}

func (k VenueKey) String() string {
	return string(k.Venue) + ":" + k.Market
}

// VenuePair is the ordered pair of venues being compared. First wins ties in
// the on-demand comparison.
type VenuePair struct {
	First  Venue `json:"first"`
	Second Venue `json:"second"`
}

// Validate reports whether both venues are set and distinct.
func (p VenuePair) Validate() error {
	if p.First == "" || p.Second == "" {
		return fmt.Errorf("venue pair: both venues must be set")
	}
	if p.First == p.Second {
		return fmt.Errorf("venue pair: venues must differ, got %q twice", p.First)
	}
	return nil
}

// AssetMap maps an asset symbol (the feed subscription key, e.g. "ETH") to
// the market identifier each venue uses for it.
type AssetMap map[string]map[Venue]string

// DefaultAssetMap returns the markets known to the upstream aggregator.
func DefaultAssetMap() AssetMap {
	return AssetMap{
		"ETH": {VenueHyperliquid: "ETH", VenueLighter: "market_0"},
		"BTC": {VenueHyperliquid: "BTC", VenueLighter: "market_1"},
		"SOL": {VenueHyperliquid: "SOL", VenueLighter: "market_2"},
	}
}

// Market returns the venue-scoped market id for asset.
func (m AssetMap) Market(asset string, venue Venue) (string, bool) {
	markets, ok := m[strings.ToUpper(asset)]
	if !ok {
		return "", false
	}
	market, ok := markets[venue]
	return market, ok
}

// Asset resolves a venue-scoped market id back to its asset symbol.
func (m AssetMap) Asset(venue Venue, market string) (string, bool) {
	for asset, markets := range m {
		if markets[venue] == market {
			return asset, true
		}
	}
	return "", false
}

// Assets returns the configured asset symbols in sorted order.
func (m AssetMap) Assets() []string {
	out := make([]string, 0, len(m))
	for asset := range m {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// Keys returns the (venue, market) keys of asset for both venues of pair.
func (m AssetMap) Keys(asset string, pair VenuePair) (first, second VenueKey, err error) {
	fm, ok := m.Market(asset, pair.First)
	if !ok {
		return VenueKey{}, VenueKey{}, fmt.Errorf("asset %q on %s: %w", asset, pair.First, ErrUnknownAsset)
	}
	sm, ok := m.Market(asset, pair.Second)
	if !ok {
		return VenueKey{}, VenueKey{}, fmt.Errorf("asset %q on %s: %w", asset, pair.Second, ErrUnknownAsset)
	}
	return NewVenueKey(pair.First, fm), NewVenueKey(pair.Second, sm), nil
}
