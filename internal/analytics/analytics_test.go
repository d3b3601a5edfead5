package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

var pair = domain.VenuePair{First: domain.VenueHyperliquid, Second: domain.VenueLighter}

func curve(venue domain.Venue, market string, points ...domain.CostPoint) domain.LiquidityCostCurve {
	return domain.LiquidityCostCurve{Venue: venue, Market: market, Points: points}
}

func point(size, buySlip, sellSlip float64) domain.CostPoint {
	return domain.CostPoint{
		Size:            size,
		BuyCost:         size * (1 + buySlip/1e4),
		BuySlippageBps:  buySlip,
		SellProceeds:    size * (1 - sellSlip/1e4),
		SellSlippageBps: sellSlip,
	}
}

func TestComparePicksLowerSlippage(t *testing.T) {
	a := curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 9))
	b := curve(domain.VenueLighter, "market_0", point(1000, 8, 3))

	got := Compare(a, b)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, 1000.0, c.Size)
	assert.Equal(t, domain.VenueHyperliquid, c.BuyWinner)
	assert.Equal(t, 5.0, c.BuySlippageBps)
	assert.Equal(t, a.Points[0].BuyCost, c.BuyCost)
	assert.InDelta(t, 0.3, c.BuySavings, 1e-9)

	assert.Equal(t, domain.VenueLighter, c.SellWinner)
	assert.Equal(t, 3.0, c.SellSlippageBps)
	assert.Equal(t, b.Points[0].SellProceeds, c.SellProceeds)
	assert.InDelta(t, 0.6, c.SellSavings, 1e-9)
}

func TestTieComparatorsDiffer(t *testing.T) {
	a := curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 5))
	b := curve(domain.VenueLighter, "market_0", point(1000, 5, 5))

	cmp := Compare(a, b)
	require.Len(t, cmp, 1)
	assert.Equal(t, domain.VenueHyperliquid, cmp[0].BuyWinner)
	assert.Equal(t, domain.VenueHyperliquid, cmp[0].SellWinner)

	// Swapping the order hands the tie to the other venue.
	swapped := Compare(b, a)
	assert.Equal(t, domain.VenueLighter, swapped[0].BuyWinner)

	snap := Capture(time.Unix(1, 0), a, b)
	require.Len(t, snap.Outcomes, 1)
	assert.Equal(t, domain.OutcomeTie, snap.Outcomes[0].Buy)
	assert.Equal(t, domain.OutcomeTie, snap.Outcomes[0].Sell)
}

func TestCompareSkipsUnsharedSizes(t *testing.T) {
	a := curve(domain.VenueHyperliquid, "BTC", point(1000, 1, 1), point(5000, 2, 2), point(10000, 3, 3))
	b := curve(domain.VenueLighter, "market_1", point(5000, 1, 4), point(50000, 1, 1))

	got := Compare(a, b)
	require.Len(t, got, 1)
	assert.Equal(t, 5000.0, got[0].Size)

	snap := Capture(time.Unix(1, 0), a, b)
	require.Len(t, snap.Outcomes, 1)
	assert.Equal(t, domain.VenueOutcome(domain.VenueLighter), snap.Outcomes[0].Buy)
	assert.Equal(t, domain.VenueOutcome(domain.VenueHyperliquid), snap.Outcomes[0].Sell)

	assert.Empty(t, Compare(a, curve(domain.VenueLighter, "market_1")))
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	h := NewHistory(60)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 65; i++ {
		evicted := h.Append(domain.ComparisonSnapshot{CapturedAt: base.Add(time.Duration(i) * 10 * time.Second)})
		assert.Equal(t, i >= 60, evicted)
	}

	snaps := h.Snapshots()
	require.Len(t, snaps, 60)
	assert.Equal(t, 60, h.Len())
	assert.Equal(t, base.Add(50*time.Second), snaps[0].CapturedAt, "first five captures evicted")
	assert.Equal(t, base.Add(640*time.Second), snaps[59].CapturedAt)

	h.Reset()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Snapshots())
}

func TestWinRatesExcludeTies(t *testing.T) {
	hl := domain.VenueOutcome(domain.VenueHyperliquid)
	lt := domain.VenueOutcome(domain.VenueLighter)
	snaps := []domain.ComparisonSnapshot{
		{Outcomes: []domain.SizeOutcome{{Size: 1000, Buy: hl, Sell: domain.OutcomeTie}, {Size: 5000, Buy: lt, Sell: lt}}},
		{Outcomes: []domain.SizeOutcome{{Size: 1000, Buy: hl, Sell: domain.OutcomeTie}, {Size: 5000, Buy: domain.OutcomeTie, Sell: lt}}},
		{Outcomes: []domain.SizeOutcome{{Size: 1000, Buy: lt, Sell: domain.OutcomeTie}, {Size: 10000, Buy: lt, Sell: lt}}},
		{Outcomes: []domain.SizeOutcome{{Size: 1000, Buy: domain.OutcomeTie, Sell: domain.OutcomeTie}}},
	}

	rates := WinRates(snaps, pair)
	require.Len(t, rates, 2, "only sizes of the first snapshot are reported")

	r1000 := rates[0]
	assert.Equal(t, 1000.0, r1000.Size)
	assert.Equal(t, 4, r1000.Samples)
	assert.Equal(t, 1, r1000.BuyTies)
	assert.Equal(t, 2, r1000.Buy[0].Wins)
	assert.InDelta(t, 66.666, r1000.Buy[0].Rate.Value, 0.01)
	assert.InDelta(t, 33.333, r1000.Buy[1].Rate.Value, 0.01)
	assert.True(t, r1000.Buy[0].Rate.Valid)

	assert.Equal(t, 4, r1000.SellTies)
	for _, v := range r1000.Sell {
		assert.False(t, v.Rate.Valid, "all ties leaves the rate undefined")
		assert.Equal(t, "undefined", v.Rate.String())
	}

	r5000 := rates[1]
	assert.Equal(t, 2, r5000.Samples)
	assert.Equal(t, domain.DefinedPercent(0), r5000.Buy[0].Rate)
	assert.Equal(t, domain.DefinedPercent(100), r5000.Buy[1].Rate)

	raw, err := json.Marshal(r1000.Sell[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"venue":"hyperliquid","wins":0,"rate":null}`, string(raw))

	assert.Nil(t, WinRates(nil, pair))
}

type curveMap struct {
	mu sync.Mutex
	m  map[domain.VenueKey]domain.LiquidityCostCurve
}

func (c *curveMap) Curve(k domain.VenueKey) (domain.LiquidityCostCurve, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *curveMap) put(v domain.LiquidityCostCurve) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.Key()] = v
}

func newTracker(t *testing.T, interval time.Duration) (*Tracker, *curveMap) {
	t.Helper()
	curves := &curveMap{m: map[domain.VenueKey]domain.LiquidityCostCurve{}}
	tr := NewTracker(TrackerConfig{
		Pair:      pair,
		Assets:    domain.DefaultAssetMap(),
		Asset:     "eth",
		Interval:  interval,
		SessionID: "s-1",
	}, curves, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return tr, curves
}

func TestTrackerCapturesOnlyWithBothCurves(t *testing.T) {
	tr, curves := newTracker(t, time.Hour)

	_, ok := tr.CaptureNow()
	assert.False(t, ok)
	_, err := tr.Compare()
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))

	curves.put(curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 5)))
	_, ok = tr.CaptureNow()
	assert.False(t, ok)

	curves.put(curve(domain.VenueLighter, "market_0", point(1000, 8, 5)))
	var captured []domain.ComparisonSnapshot
	tr.OnCapture(func(s domain.ComparisonSnapshot) { captured = append(captured, s) })

	snap, ok := tr.CaptureNow()
	require.True(t, ok)
	assert.Equal(t, "ETH", snap.Asset)
	assert.Equal(t, "s-1", snap.SessionID)
	assert.Equal(t, domain.VenueOutcome(domain.VenueHyperliquid), snap.Outcomes[0].Buy)
	assert.Equal(t, domain.OutcomeTie, snap.Outcomes[0].Sell)
	assert.Len(t, captured, 1)

	cmp, err := tr.Compare()
	require.NoError(t, err)
	assert.Equal(t, domain.VenueHyperliquid, cmp[0].SellWinner)
}

func TestTrackerBoundsHistory(t *testing.T) {
	tr, curves := newTracker(t, time.Hour)
	curves.put(curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 5)))
	curves.put(curve(domain.VenueLighter, "market_0", point(1000, 8, 5)))

	for i := 0; i < 65; i++ {
		_, ok := tr.CaptureNow()
		require.True(t, ok)
	}
	assert.Len(t, tr.History(), 60)
}

func TestTrackerAssetSwitchResetsHistory(t *testing.T) {
	tr, curves := newTracker(t, time.Hour)
	curves.put(curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 5)))
	curves.put(curve(domain.VenueLighter, "market_0", point(1000, 8, 5)))

	for i := 0; i < 30; i++ {
		tr.CaptureNow()
	}
	require.Len(t, tr.History(), 30)

	require.NoError(t, tr.SetAsset("ETH"))
	assert.Len(t, tr.History(), 30, "same asset keeps history")

	require.NoError(t, tr.SetAsset("BTC"))
	assert.Empty(t, tr.History())
	assert.Empty(t, tr.WinRates())
	assert.Equal(t, "BTC", tr.Asset())

	_, ok := tr.CaptureNow()
	assert.False(t, ok, "BTC curves are not known yet")

	err := tr.SetAsset("DOGE")
	assert.True(t, errors.Is(err, domain.ErrUnknownAsset))
	assert.Equal(t, "BTC", tr.Asset())
}

func TestTrackerRunCapturesOnTimer(t *testing.T) {
	tr, curves := newTracker(t, 10*time.Millisecond)
	curves.put(curve(domain.VenueHyperliquid, "ETH", point(1000, 5, 5)))
	curves.put(curve(domain.VenueLighter, "market_0", point(1000, 8, 5)))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.History()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
