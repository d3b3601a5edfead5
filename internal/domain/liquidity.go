package domain

import "time"

// CostPoint is the execution cost of one notional trade size (quote
// currency) on one venue.
type CostPoint struct {
	Size            float64 `json:"size"`
	BuyCost         float64 `json:"buy_cost"`
	BuyAvgPrice     float64 `json:"buy_avg_price"`
	BuySlippageBps  float64 `json:"buy_slippage_bps"`
	SellProceeds    float64 `json:"sell_proceeds"`
	SellAvgPrice    float64 `json:"sell_avg_price"`
	SellSlippageBps float64 `json:"sell_slippage_bps"`
}

// LiquidityCostCurve holds cost points ordered ascending by size. Sizes are
// unique within a curve.
type LiquidityCostCurve struct {
	Venue     Venue       `json:"venue"`
	Market    string      `json:"market"`
	Points    []CostPoint `json:"points"`
	Timestamp time.Time   `json:"timestamp"`
	// Derived is set when the curve was computed locally from the book
	// rather than received from the feed.
	Derived bool `json:"derived,omitempty"`
}

// Key returns the curve's store key.
func (c LiquidityCostCurve) Key() VenueKey {
	return NewVenueKey(c.Venue, c.Market)
}

// Point returns the cost point for size.
func (c LiquidityCostCurve) Point(size float64) (CostPoint, bool) {
	for _, p := range c.Points {
		if p.Size == size {
			return p, true
		}
	}
	return CostPoint{}, false
}

// Sizes returns the curve's trade sizes in order.
func (c LiquidityCostCurve) Sizes() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Size
	}
	return out
}
