package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

const bookFrame = `{
	"type": "orderbook_update",
	"exchange": "hyperliquid",
	"market": "ETH",
	"bids": [{"price": 3500, "size": 2}, {"price": 3499, "size": 1.5}, {"price": 3498, "size": 4}],
	"asks": [{"price": 3501, "size": 1}, {"price": 3502, "size": 3}],
	"mid": 3500.5,
	"spread": 1,
	"spread_bps": 2.857,
	"timestamp": 1700000000.25
}`

func TestDecodeOrderBookFillsCumulativeDepth(t *testing.T) {
	msg, err := Decode([]byte(bookFrame))
	require.NoError(t, err)
	require.NotNil(t, msg.Book)

	book := msg.Book
	assert.Equal(t, domain.VenueHyperliquid, book.Venue)
	assert.Equal(t, "ETH", book.Market)
	require.NotNil(t, book.Mid)
	assert.Equal(t, 3500.5, *book.Mid)
	assert.Equal(t, time.Unix(1700000000, 250_000_000).UTC(), book.Timestamp)

	require.Len(t, book.Bids, 3)
	assert.Equal(t, 2.0, book.Bids[0].CumulativeSize)
	assert.Equal(t, 3.5, book.Bids[1].CumulativeSize)
	assert.Equal(t, 7.5, book.Bids[2].CumulativeSize)
	assert.Equal(t, 7000.0, book.Bids[0].CumulativeNotional)
	assert.InDelta(t, 7000+3499*1.5+3498*4, book.Bids[2].CumulativeNotional, 1e-9)

	for _, side := range [][]domain.BookLevel{book.Bids, book.Asks} {
		for i := 1; i < len(side); i++ {
			assert.GreaterOrEqual(t, side[i].CumulativeSize, side[i-1].CumulativeSize)
			assert.GreaterOrEqual(t, side[i].CumulativeNotional, side[i-1].CumulativeNotional)
		}
	}
}

func TestOrderBookPassesThroughCarriedDepth(t *testing.T) {
	raw := `{"type":"orderbook_update","exchange":"lighter","market":"market_0",
		"bids":[{"price":10,"size":1,"cumulative_size":99,"cumulative_notional":990}],
		"asks":[{"price":11,"size":2,"cumulative_size":5},{"price":12,"size":1}],
		"timestamp":1}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 99.0, msg.Book.Bids[0].CumulativeSize)
	assert.Equal(t, 990.0, msg.Book.Bids[0].CumulativeNotional)
	// Asks are only partially annotated so they are recomputed.
	assert.Equal(t, 2.0, msg.Book.Asks[0].CumulativeSize)
	assert.Equal(t, 3.0, msg.Book.Asks[1].CumulativeSize)
	assert.Equal(t, 34.0, msg.Book.Asks[1].CumulativeNotional)
	assert.Nil(t, msg.Book.Mid)
}

func TestOrderBookDoesNotResort(t *testing.T) {
	raw := `{"type":"orderbook_update","exchange":"lighter","market":"market_0",
		"bids":[{"price":9,"size":1},{"price":10,"size":1}],"asks":[],"timestamp":1}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 9.0, msg.Book.Bids[0].Price)
	assert.Equal(t, 9.0, msg.Book.Bids[0].CumulativeNotional)
	assert.Equal(t, 19.0, msg.Book.Bids[1].CumulativeNotional)
}

func TestDecodeLiquidityMetricsOrdersBySize(t *testing.T) {
	raw := `{"type":"liquidity_metrics","exchange":"hyperliquid","market":"BTC","timestamp":1700000000,
		"metrics":{
			"5000":{"buy_cost":5000,"buy_avg_price":101,"buy_slippage_bps":8,"sell_proceeds":4990,"sell_avg_price":99,"sell_slippage_bps":9},
			"1000":{"buy_cost":1000,"buy_avg_price":100.5,"buy_slippage_bps":5,"sell_proceeds":999,"sell_avg_price":99.5,"sell_slippage_bps":4}
		}}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, msg.Curve)
	assert.Empty(t, msg.Skipped)

	require.Len(t, msg.Curve.Points, 2)
	assert.Equal(t, []float64{1000, 5000}, msg.Curve.Sizes())
	assert.Equal(t, 5.0, msg.Curve.Points[0].BuySlippageBps)
	assert.Equal(t, 4990.0, msg.Curve.Points[1].SellProceeds)
}

func TestLiquidityCurveDropsBadKeysOnly(t *testing.T) {
	raw := `{"type":"liquidity_metrics","exchange":"lighter","market":"market_1","timestamp":1,
		"metrics":{
			"abc":{"buy_cost":1,"buy_avg_price":1,"buy_slippage_bps":1,"sell_proceeds":1,"sell_avg_price":1,"sell_slippage_bps":1},
			"1000":{"buy_cost":1,"buy_avg_price":1,"buy_slippage_bps":1,"sell_proceeds":1,"sell_avg_price":1,"sell_slippage_bps":1},
			"1000.0":{"buy_cost":2,"buy_avg_price":2,"buy_slippage_bps":2,"sell_proceeds":2,"sell_avg_price":2,"sell_slippage_bps":2}
		}}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"abc", "1000.0"}, msg.Skipped)
	require.Len(t, msg.Curve.Points, 1)
	assert.Equal(t, 1000.0, msg.Curve.Points[0].Size)
	assert.Equal(t, 1.0, msg.Curve.Points[0].BuyCost)
}

func TestDecodeIsIdempotent(t *testing.T) {
	frames := []string{
		bookFrame,
		`{"type":"price_update","exchange":"lighter","market":"market_2","price":150.25,"timestamp":1700000001.5}`,
		`{"type":"liquidity_metrics","exchange":"lighter","market":"market_2","timestamp":1,"metrics":{
			"200000":{"buy_cost":1,"buy_avg_price":1,"buy_slippage_bps":1,"sell_proceeds":1,"sell_avg_price":1,"sell_slippage_bps":1},
			"10000":{"buy_cost":1,"buy_avg_price":1,"buy_slippage_bps":1,"sell_proceeds":1,"sell_avg_price":1,"sell_slippage_bps":1},
			"x":{}}}`,
	}
	for _, f := range frames {
		first, err := Decode([]byte(f))
		require.NoError(t, err)
		second, err := Decode([]byte(f))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestDecodePriceUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"price_update","exchange":"Lighter","market":"market_2","price":150.25,"timestamp":1700000001}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Tick)
	assert.Equal(t, domain.NewVenueKey(domain.VenueLighter, "market_2"), msg.Tick.Key())
	assert.Equal(t, 150.25, msg.Tick.Price)
}

func TestDecodeControlFrames(t *testing.T) {
	for _, typ := range []string{TypePing, TypePong} {
		msg, err := Decode([]byte(`{"type":"` + typ + `"}`))
		require.NoError(t, err)
		assert.Equal(t, typ, msg.Type)
		assert.Nil(t, msg.Book)
		assert.Nil(t, msg.Curve)
		assert.Nil(t, msg.Tick)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
		parse bool
	}{
		{name: "not json", raw: `{nope`, parse: true},
		{name: "no type", raw: `{"exchange":"lighter"}`, field: "type"},
		{name: "unknown type", raw: `{"type":"trade"}`, field: "type"},
		{name: "missing exchange", raw: `{"type":"price_update","market":"ETH","price":1,"timestamp":1}`, field: "exchange"},
		{name: "missing price", raw: `{"type":"price_update","exchange":"lighter","market":"ETH","timestamp":1}`, field: "price"},
		{name: "wrong type", raw: `{"type":"price_update","exchange":5,"market":"ETH","price":1,"timestamp":1}`, field: "exchange"},
		{name: "missing bids", raw: `{"type":"orderbook_update","exchange":"lighter","market":"ETH","asks":[],"timestamp":1}`, field: "bids"},
		{name: "level without size", raw: `{"type":"orderbook_update","exchange":"lighter","market":"ETH","bids":[{"price":1}],"asks":[],"timestamp":1}`, field: "bids[0].size"},
		{name: "missing metrics", raw: `{"type":"liquidity_metrics","exchange":"lighter","market":"ETH","timestamp":1}`, field: "metrics"},
		{name: "missing cost field", raw: `{"type":"liquidity_metrics","exchange":"lighter","market":"ETH","timestamp":1,"metrics":{"1000":{"buy_cost":1}}}`, field: "metrics.1000.buy_avg_price"},
		{name: "missing timestamp", raw: `{"type":"price_update","exchange":"lighter","market":"ETH","price":1}`, field: "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedFrame))

			if tt.parse {
				var pe *domain.ParseError
				assert.ErrorAs(t, err, &pe)
				return
			}
			var ne *domain.NormalizationError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, tt.field, ne.Field)
		})
	}
}
