// Package normalize converts raw feed frames into canonical domain values.
// Every function here is pure: the same input always yields the same output.
package normalize

// Frame type tags used on the feed.
const (
	TypePing            = "ping"
	TypePong            = "pong"
	TypeOrderBookUpdate = "orderbook_update"
	TypeLiquidity       = "liquidity_metrics"
	TypePriceUpdate     = "price_update"
)

// Envelope carries only the discriminating type tag of a frame.
type Envelope struct {
	Type string `json:"type"`
}

// LevelFrame is one wire order book level. The cumulative fields are
// optional; pointer fields distinguish "absent" from zero.
type LevelFrame struct {
	Price              *float64 `json:"price"`
	Size               *float64 `json:"size"`
	CumulativeSize     *float64 `json:"cumulative_size,omitempty"`
	CumulativeNotional *float64 `json:"cumulative_notional,omitempty"`
}

// OrderBookFrame is the wire form of an orderbook_update.
type OrderBookFrame struct {
	Type      string        `json:"type"`
	Exchange  *string       `json:"exchange"`
	Market    *string       `json:"market"`
	Bids      *[]LevelFrame `json:"bids"`
	Asks      *[]LevelFrame `json:"asks"`
	Mid       *float64      `json:"mid"`
	Spread    *float64      `json:"spread"`
	SpreadBps *float64      `json:"spread_bps"`
	Timestamp *float64      `json:"timestamp"`
}

// CostFrame is the wire form of one liquidity cost entry.
type CostFrame struct {
	BuyCost         *float64 `json:"buy_cost"`
	BuyAvgPrice     *float64 `json:"buy_avg_price"`
	BuySlippageBps  *float64 `json:"buy_slippage_bps"`
	SellProceeds    *float64 `json:"sell_proceeds"`
	SellAvgPrice    *float64 `json:"sell_avg_price"`
	SellSlippageBps *float64 `json:"sell_slippage_bps"`
}

// LiquidityFrame is the wire form of a liquidity_metrics update. Metrics is
// keyed by the stringified notional size, e.g. "1000".
type LiquidityFrame struct {
	Type      string                `json:"type"`
	Exchange  *string               `json:"exchange"`
	Market    *string               `json:"market"`
	Metrics   *map[string]CostFrame `json:"metrics"`
	Timestamp *float64              `json:"timestamp"`
}

// PriceFrame is the wire form of a price_update.
type PriceFrame struct {
	Type      string   `json:"type"`
	Exchange  *string  `json:"exchange"`
	Market    *string  `json:"market"`
	Price     *float64 `json:"price"`
	Timestamp *float64 `json:"timestamp"`
}

// SubscribeCommand is the outbound subscription request.
type SubscribeCommand struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// ControlFrame is an outbound or inbound keepalive frame.
type ControlFrame struct {
	Type string `json:"type"`
}
