package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// Message is a decoded inbound frame. Exactly one payload field is set for
// data frames; ping and pong carry none.
type Message struct {
	Type  string
	Book  *domain.OrderBookSnapshot
	Curve *domain.LiquidityCostCurve
	Tick  *domain.PriceTick
	// Skipped lists liquidity entries dropped during normalization.
	Skipped []string
}

// Decode parses raw into a Message. Undecodable JSON yields a
// *domain.ParseError; structural problems yield a *domain.NormalizationError.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, &domain.ParseError{Err: err}
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypePing, TypePong:
		return msg, nil

	case TypeOrderBookUpdate:
		var f OrderBookFrame
		if err := unmarshal(env.Type, raw, &f); err != nil {
			return Message{}, err
		}
		book, err := OrderBook(f)
		if err != nil {
			return Message{}, err
		}
		msg.Book = &book

	case TypeLiquidity:
		var f LiquidityFrame
		if err := unmarshal(env.Type, raw, &f); err != nil {
			return Message{}, err
		}
		curve, skipped, err := LiquidityCurve(f)
		if err != nil {
			return Message{}, err
		}
		msg.Curve = &curve
		msg.Skipped = skipped

	case TypePriceUpdate:
		var f PriceFrame
		if err := unmarshal(env.Type, raw, &f); err != nil {
			return Message{}, err
		}
		tick, err := PriceTick(f)
		if err != nil {
			return Message{}, err
		}
		msg.Tick = &tick

	case "":
		return Message{}, &domain.NormalizationError{Kind: "frame", Field: "type", Reason: "missing required field"}

	default:
		return Message{}, &domain.NormalizationError{Kind: "frame", Field: "type", Reason: fmt.Sprintf("unknown frame type %q", env.Type)}
	}
	return msg, nil
}

// unmarshal decodes a typed frame, reporting wrong-typed fields as
// normalization errors naming the field.
func unmarshal(kind string, raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &domain.NormalizationError{
			Kind:   kind,
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return &domain.ParseError{Err: err}
}
