package liquidity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

func TestBuyWalksAsks(t *testing.T) {
	asks := []domain.BookLevel{{Price: 100, Size: 10}, {Price: 101, Size: 10}}

	f := Buy(asks, 1500, 99.5)
	assert.True(t, f.Feasible)
	assert.Equal(t, 2, f.LevelsUsed)
	assert.Equal(t, 1500.0, f.Notional)
	// 10 units at 100 plus 500/101 units at 101.
	assert.InDelta(t, 1500/(10+500.0/101), f.AvgPrice, 1e-9)
	assert.Greater(t, f.SlippageBps, 0.0)
}

func TestSellWalksBidsAndFlagsShortfall(t *testing.T) {
	bids := []domain.BookLevel{{Price: 99, Size: 1}, {Price: 98, Size: 1}}

	f := Sell(bids, 1000, 99.5)
	assert.False(t, f.Feasible)
	assert.Equal(t, 197.0, f.Notional)
	assert.Equal(t, 98.5, f.AvgPrice)
	assert.InDelta(t, (99.5-98.5)/99.5*10000, f.SlippageBps, 1e-9)

	empty := Sell(nil, 1000, 99.5)
	assert.False(t, empty.Feasible)
	assert.Zero(t, empty.AvgPrice)
}

func TestDeriveBuildsAscendingCurve(t *testing.T) {
	book := domain.OrderBookSnapshot{
		Venue:  domain.VenueLighter,
		Market: "market_0",
		Bids:   []domain.BookLevel{{Price: 3499, Size: 100}},
		Asks:   []domain.BookLevel{{Price: 3501, Size: 100}},
	}

	c := NewCalculator([]float64{1000, 5000})
	curve, err := c.Derive(book)
	require.NoError(t, err)
	assert.True(t, curve.Derived)
	assert.Equal(t, []float64{1000, 5000}, curve.Sizes())
	assert.Equal(t, 1000.0, curve.Points[0].BuyCost)
	assert.Equal(t, 3501.0, curve.Points[0].BuyAvgPrice)
	assert.Equal(t, 2.86, curve.Points[0].BuySlippageBps)
	assert.Equal(t, 2.86, curve.Points[0].SellSlippageBps)

	_, err = c.Derive(domain.OrderBookSnapshot{Venue: domain.VenueLighter, Market: "market_0"})
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}
