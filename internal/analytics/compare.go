// Package analytics derives cross-venue best-execution comparisons from
// liquidity cost curves and tracks how often each venue wins over time.
package analytics

import (
	"math"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// Compare returns the best-execution result for every size present in both
// curves, in the order of first's points. Sizes missing from either curve are
// skipped. Lower slippage wins each side; equal slippage goes to first.
func Compare(first, second domain.LiquidityCostCurve) []domain.SizeComparison {
	counterpart := indexPoints(second)
	out := make([]domain.SizeComparison, 0, len(first.Points))

	for _, a := range first.Points {
		b, ok := counterpart[a.Size]
		if !ok {
			continue
		}

		c := domain.SizeComparison{
			Size:        a.Size,
			BuySavings:  math.Abs(a.BuyCost - b.BuyCost),
			SellSavings: math.Abs(a.SellProceeds - b.SellProceeds),
		}

		if a.BuySlippageBps <= b.BuySlippageBps {
			c.BuyWinner, c.BuyCost, c.BuySlippageBps = first.Venue, a.BuyCost, a.BuySlippageBps
		} else {
			c.BuyWinner, c.BuyCost, c.BuySlippageBps = second.Venue, b.BuyCost, b.BuySlippageBps
		}

		if a.SellSlippageBps <= b.SellSlippageBps {
			c.SellWinner, c.SellProceeds, c.SellSlippageBps = first.Venue, a.SellProceeds, a.SellSlippageBps
		} else {
			c.SellWinner, c.SellProceeds, c.SellSlippageBps = second.Venue, b.SellProceeds, b.SellSlippageBps
		}

		out = append(out, c)
	}
	return out
}

// Capture records the per-size winners of first and second at now. Unlike
// Compare, equal slippage is recorded as domain.OutcomeTie.
func Capture(now time.Time, first, second domain.LiquidityCostCurve) domain.ComparisonSnapshot {
	counterpart := indexPoints(second)
	outcomes := make([]domain.SizeOutcome, 0, len(first.Points))

	for _, a := range first.Points {
		b, ok := counterpart[a.Size]
		if !ok {
			continue
		}
		outcomes = append(outcomes, domain.SizeOutcome{
			Size: a.Size,
			Buy:  strictWinner(a.BuySlippageBps, b.BuySlippageBps, first.Venue, second.Venue),
			Sell: strictWinner(a.SellSlippageBps, b.SellSlippageBps, first.Venue, second.Venue),
		})
	}

	return domain.ComparisonSnapshot{
		CapturedAt: now,
		Outcomes:   outcomes,
	}
}

func strictWinner(a, b float64, first, second domain.Venue) domain.Outcome {
	switch {
	case a < b:
		return domain.VenueOutcome(first)
	case b < a:
		return domain.VenueOutcome(second)
	default:
		return domain.OutcomeTie
	}
}

func indexPoints(c domain.LiquidityCostCurve) map[float64]domain.CostPoint {
	m := make(map[float64]domain.CostPoint, len(c.Points))
	for _, p := range c.Points {
		m[p.Size] = p
	}
	return m
}
