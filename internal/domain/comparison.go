package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Outcome is the result of one captured comparison: the winning venue or
// OutcomeTie.
type Outcome string

// OutcomeTie marks exactly equal slippage in a captured comparison.
const OutcomeTie Outcome = "tie"

// VenueOutcome converts a venue into a winning Outcome.
func VenueOutcome(v Venue) Outcome {
	return Outcome(v)
}

// SizeComparison is the on-demand best-execution result for one trade size.
type SizeComparison struct {
	Size float64 `json:"size"`

	BuyWinner      Venue   `json:"buy_winner"`
	BuyCost        float64 `json:"buy_cost"`
	BuySlippageBps float64 `json:"buy_slippage_bps"`
	// BuySavings is |first.BuyCost - second.BuyCost|.
	BuySavings float64 `json:"buy_savings"`

	SellWinner      Venue   `json:"sell_winner"`
	SellProceeds    float64 `json:"sell_proceeds"`
	SellSlippageBps float64 `json:"sell_slippage_bps"`
	// SellSavings is |first.SellProceeds - second.SellProceeds|.
	SellSavings float64 `json:"sell_savings"`
}

// SizeOutcome records the buy and sell winners for one size at capture time.
type SizeOutcome struct {
	Size float64 `json:"size"`
	Buy  Outcome `json:"buy"`
	Sell Outcome `json:"sell"`
}

// ComparisonSnapshot is an immutable point-in-time capture of per-size
// winners.
type ComparisonSnapshot struct {
	SessionID  string        `json:"session_id,omitempty"`
	Asset      string        `json:"asset,omitempty"`
	CapturedAt time.Time     `json:"captured_at"`
	Outcomes   []SizeOutcome `json:"outcomes"`
}

// Percent is a percentage that may be undefined. An undefined value encodes
// as JSON null so it is never rendered as 0 or NaN.
type Percent struct {
	Value float64
	Valid bool
}

// UndefinedPercent is the zero-denominator win rate.
var UndefinedPercent = Percent{}

// DefinedPercent wraps v as a valid percentage.
func DefinedPercent(v float64) Percent {
	return Percent{Value: v, Valid: true}
}

func (p Percent) String() string {
	if !p.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(p.Value, 'f', 1, 64) + "%"
}

// MarshalJSON implements json.Marshaler.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, p.Value, 'f', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler. null decodes as
// UndefinedPercent.
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = UndefinedPercent
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("percent: %w", err)
	}
	*p = DefinedPercent(v)
	return nil
}

// VenueWinRate is one venue's tally for one side of one size.
type VenueWinRate struct {
	Venue Venue   `json:"venue"`
	Wins  int     `json:"wins"`
	Rate  Percent `json:"rate"`
}

// SizeWinRate aggregates captured outcomes for one trade size. Buy and Sell
// list the venue pair in order.
type SizeWinRate struct {
	Size     float64        `json:"size"`
	Samples  int            `json:"samples"`
	Buy      []VenueWinRate `json:"buy"`
	BuyTies  int            `json:"buy_ties"`
	Sell     []VenueWinRate `json:"sell"`
	SellTies int            `json:"sell_ties"`
}
