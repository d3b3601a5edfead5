package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// OrderBook converts an orderbook_update frame into a snapshot. Cumulative
// depth is passed through when every level of a side carries it, otherwise it
// is recomputed as running sums in received order. Levels are never re-sorted.
func OrderBook(f OrderBookFrame) (domain.OrderBookSnapshot, error) {
	const kind = TypeOrderBookUpdate

	venue, market, err := keyFields(kind, f.Exchange, f.Market)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if f.Bids == nil {
		return domain.OrderBookSnapshot{}, missing(kind, "bids")
	}
	if f.Asks == nil {
		return domain.OrderBookSnapshot{}, missing(kind, "asks")
	}
	ts, err := timestamp(kind, f.Timestamp)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	bids, err := levels(kind, "bids", *f.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	asks, err := levels(kind, "asks", *f.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	return domain.OrderBookSnapshot{
		Venue:     venue,
		Market:    market,
		Bids:      bids,
		Asks:      asks,
		Mid:       copyFloat(f.Mid),
		Spread:    copyFloat(f.Spread),
		SpreadBps: copyFloat(f.SpreadBps),
		Timestamp: ts,
	}, nil
}

// levels validates one side and fills cumulative depth.
func levels(kind, side string, in []LevelFrame) ([]domain.BookLevel, error) {
	out := make([]domain.BookLevel, len(in))
	carried := len(in) > 0
	for i, l := range in {
		if l.Price == nil {
			return nil, missing(kind, fmt.Sprintf("%s[%d].price", side, i))
		}
		if l.Size == nil {
			return nil, missing(kind, fmt.Sprintf("%s[%d].size", side, i))
		}
		out[i] = domain.BookLevel{Price: *l.Price, Size: *l.Size}
		if l.CumulativeSize == nil || l.CumulativeNotional == nil {
			carried = false
		}
	}

	if carried {
		for i, l := range in {
			out[i].CumulativeSize = *l.CumulativeSize
			out[i].CumulativeNotional = *l.CumulativeNotional
		}
		return out, nil
	}

	var size, notional float64
	for i := range out {
		size += out[i].Size
		notional += out[i].Price * out[i].Size
		out[i].CumulativeSize = size
		out[i].CumulativeNotional = notional
	}
	return out, nil
}

// LiquidityCurve converts a liquidity_metrics frame into a curve ordered
// ascending by size. Entries whose key is not a finite number, or that repeat
// a size already seen, are dropped and their keys returned in skipped; the
// rest of the frame is kept.
func LiquidityCurve(f LiquidityFrame) (curve domain.LiquidityCostCurve, skipped []string, err error) {
	const kind = TypeLiquidity

	venue, market, err := keyFields(kind, f.Exchange, f.Market)
	if err != nil {
		return domain.LiquidityCostCurve{}, nil, err
	}
	if f.Metrics == nil {
		return domain.LiquidityCostCurve{}, nil, missing(kind, "metrics")
	}
	ts, err := timestamp(kind, f.Timestamp)
	if err != nil {
		return domain.LiquidityCostCurve{}, nil, err
	}

	metrics := *f.Metrics
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	// Map order is random; sort keys so duplicate resolution is stable.
	sort.Strings(keys)

	seen := make(map[float64]bool, len(keys))
	points := make([]domain.CostPoint, 0, len(keys))
	for _, k := range keys {
		size, ok := parseSize(k)
		if !ok || seen[size] {
			skipped = append(skipped, k)
			continue
		}
		p, err := costPoint(kind, k, size, metrics[k])
		if err != nil {
			return domain.LiquidityCostCurve{}, nil, err
		}
		seen[size] = true
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Size < points[j].Size })

	return domain.LiquidityCostCurve{
		Venue:     venue,
		Market:    market,
		Points:    points,
		Timestamp: ts,
	}, skipped, nil
}

func parseSize(key string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(key), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func costPoint(kind, key string, size float64, c CostFrame) (domain.CostPoint, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"buy_cost", c.BuyCost},
		{"buy_avg_price", c.BuyAvgPrice},
		{"buy_slippage_bps", c.BuySlippageBps},
		{"sell_proceeds", c.SellProceeds},
		{"sell_avg_price", c.SellAvgPrice},
		{"sell_slippage_bps", c.SellSlippageBps},
	}
	for _, fl := range fields {
		if fl.v == nil {
			return domain.CostPoint{}, missing(kind, "metrics."+key+"."+fl.name)
		}
	}
	return domain.CostPoint{
		Size:            size,
		BuyCost:         *c.BuyCost,
		BuyAvgPrice:     *c.BuyAvgPrice,
		BuySlippageBps:  *c.BuySlippageBps,
		SellProceeds:    *c.SellProceeds,
		SellAvgPrice:    *c.SellAvgPrice,
		SellSlippageBps: *c.SellSlippageBps,
	}, nil
}

// PriceTick converts a price_update frame.
func PriceTick(f PriceFrame) (domain.PriceTick, error) {
	const kind = TypePriceUpdate

	venue, market, err := keyFields(kind, f.Exchange, f.Market)
	if err != nil {
		return domain.PriceTick{}, err
	}
	if f.Price == nil {
		return domain.PriceTick{}, missing(kind, "price")
	}
	ts, err := timestamp(kind, f.Timestamp)
	if err != nil {
		return domain.PriceTick{}, err
	}
	return domain.PriceTick{
		Venue:     venue,
		Market:    market,
		Price:     *f.Price,
		Timestamp: ts,
	}, nil
}

func keyFields(kind string, exchange, market *string) (domain.Venue, string, error) {
	if exchange == nil || strings.TrimSpace(*exchange) == "" {
		return "", "", missing(kind, "exchange")
	}
	if market == nil || strings.TrimSpace(*market) == "" {
		return "", "", missing(kind, "market")
	}
	return domain.Venue(strings.ToLower(strings.TrimSpace(*exchange))), strings.TrimSpace(*market), nil
}

// timestamp converts float seconds since the epoch to UTC time.
func timestamp(kind string, ts *float64) (time.Time, error) {
	if ts == nil {
		return time.Time{}, missing(kind, "timestamp")
	}
	if math.IsNaN(*ts) || math.IsInf(*ts, 0) || *ts < 0 {
		return time.Time{}, &domain.NormalizationError{Kind: kind, Field: "timestamp", Reason: "out of range"}
	}
	sec, frac := math.Modf(*ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), nil
}

func missing(kind, field string) error {
	return &domain.NormalizationError{Kind: kind, Field: field, Reason: "missing required field"}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
