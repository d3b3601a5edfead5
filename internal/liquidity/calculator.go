// Package liquidity derives liquidity cost curves by walking order book
// depth for a set of notional trade sizes.
package liquidity

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// DefaultSizes are the notional trade sizes (USD) the feed reports.
var DefaultSizes = []float64{1_000, 5_000, 10_000, 50_000, 100_000, 200_000, 500_000, 1_000_000}

// feasibilityTolerance is the unfilled notional still considered a full fill.
const feasibilityTolerance = 0.01

// Fill is the result of walking one side of the book for a notional size.
type Fill struct {
	Size        float64
	Notional    float64
	AvgPrice    float64
	SlippageBps float64
	LevelsUsed  int
	Feasible    bool
}

// Calculator walks books for a fixed list of sizes.
type Calculator struct {
	sizes []float64
}

// NewCalculator creates a Calculator for sizes. An empty list uses
// DefaultSizes.
func NewCalculator(sizes []float64) *Calculator {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	return &Calculator{sizes: append([]float64(nil), sizes...)}
}

// Sizes returns the configured sizes.
func (c *Calculator) Sizes() []float64 {
	return append([]float64(nil), c.sizes...)
}

// Derive computes a cost curve for book. It fails with
// domain.ErrInsufficientData when the book has no usable mid price.
func (c *Calculator) Derive(book domain.OrderBookSnapshot) (domain.LiquidityCostCurve, error) {
	mid, ok := book.MidPrice()
	if !ok || mid <= 0 {
		return domain.LiquidityCostCurve{}, fmt.Errorf("liquidity: derive %s: no mid price: %w", book.Key(), domain.ErrInsufficientData)
	}

	points := make([]domain.CostPoint, 0, len(c.sizes))
	for _, size := range c.sizes {
		buy := Buy(book.Asks, size, mid)
		sell := Sell(book.Bids, size, mid)
		points = append(points, domain.CostPoint{
			Size:            size,
			BuyCost:         round2(buy.Notional),
			BuyAvgPrice:     round2(buy.AvgPrice),
			BuySlippageBps:  round2(buy.SlippageBps),
			SellProceeds:    round2(sell.Notional),
			SellAvgPrice:    round2(sell.AvgPrice),
			SellSlippageBps: round2(sell.SlippageBps),
		})
	}

	return domain.LiquidityCostCurve{
		Venue:     book.Venue,
		Market:    book.Market,
		Points:    points,
		Timestamp: book.Timestamp,
		Derived:   true,
	}, nil
}

// Buy walks asks (best first) to spend size notional. Slippage is
// (avg-mid)/mid in basis points.
func Buy(asks []domain.BookLevel, size, mid float64) Fill {
	f := walk(asks, size)
	if f.AvgPrice > 0 && mid > 0 {
		f.SlippageBps = (f.AvgPrice - mid) / mid * 10000
	}
	return f
}

// Sell walks bids (best first) to sell size notional. Slippage is
// (mid-avg)/mid in basis points.
func Sell(bids []domain.BookLevel, size, mid float64) Fill {
	f := walk(bids, size)
	if f.AvgPrice > 0 && mid > 0 {
		f.SlippageBps = (mid - f.AvgPrice) / mid * 10000
	}
	return f
}

func walk(levels []domain.BookLevel, size float64) Fill {
	f := Fill{Size: size}
	if len(levels) == 0 {
		return f
	}

	remaining := size
	var units float64
	for _, l := range levels {
		if remaining <= 0 {
			break
		}
		if l.Price <= 0 {
			continue
		}
		available := l.Price * l.Size
		f.LevelsUsed++
		if available >= remaining {
			units += remaining / l.Price
			f.Notional += remaining
			remaining = 0
			break
		}
		units += l.Size
		f.Notional += available
		remaining -= available
	}

	f.Feasible = remaining <= feasibilityTolerance
	if units > 0 {
		f.AvgPrice = f.Notional / units
	}
	return f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
