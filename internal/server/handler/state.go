package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// StateReader is the read side of the venue state store.
type StateReader interface {
	OrderBook(key domain.VenueKey) (domain.OrderBookSnapshot, bool)
	Curve(key domain.VenueKey) (domain.LiquidityCostCurve, bool)
	Price(key domain.VenueKey) (domain.PricePoint, bool)
	PriceHistory(key domain.VenueKey) []domain.PricePoint
	Keys() []domain.VenueKey
}

// StateHandler serves the latest per-venue state.
type StateHandler struct {
	state  StateReader
	assets domain.AssetMap
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(state StateReader, assets domain.AssetMap, logger *slog.Logger) *StateHandler {
	return &StateHandler{state: state, assets: assets, logger: logger.With(slog.String("handler", "state"))}
}

type assetInfo struct {
	Asset   string                  `json:"asset"`
	Markets map[domain.Venue]string `json:"markets"`
}

// ListAssets returns the configured assets and their per-venue markets.
// GET /api/assets
func (h *StateHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	names := h.assets.Assets()
	out := make([]assetInfo, 0, len(names))
	for _, a := range names {
		out = append(out, assetInfo{Asset: a, Markets: h.assets[a]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

type marketInfo struct {
	Venue     domain.Venue `json:"venue"`
	Market    string       `json:"market"`
	Asset     string       `json:"asset,omitempty"`
	HasBook   bool         `json:"has_book"`
	HasCurve  bool         `json:"has_curve"`
	Price     *float64     `json:"price,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// ListMarkets returns every (venue, market) seen on the feed.
// GET /api/markets
func (h *StateHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	keys := h.state.Keys()
	out := make([]marketInfo, 0, len(keys))
	for _, k := range keys {
		info := marketInfo{Venue: k.Venue, Market: k.Market}
		info.Asset, _ = h.assets.Asset(k.Venue, k.Market)
		_, info.HasBook = h.state.OrderBook(k)
		_, info.HasCurve = h.state.Curve(k)
		if p, ok := h.state.Price(k); ok {
			info.Price = &p.Price
			info.UpdatedAt = &p.Time
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out, "total": len(out)})
}

// GetOrderBook returns the latest order book for a key.
// GET /api/orderbook/{venue}/{market}
func (h *StateHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	key, err := venueKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	book, ok := h.state.OrderBook(key)
	if !ok {
		writeDomainError(w, r, h.logger, fmt.Errorf("order book %s: %w", key, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// GetLiquidity returns the latest liquidity cost curve for a key.
// GET /api/liquidity/{venue}/{market}
func (h *StateHandler) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	key, err := venueKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	curve, ok := h.state.Curve(key)
	if !ok {
		writeDomainError(w, r, h.logger, fmt.Errorf("liquidity %s: %w", key, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

type pricesResponse struct {
	Venue   domain.Venue        `json:"venue"`
	Market  string              `json:"market"`
	Latest  *domain.PricePoint  `json:"latest,omitempty"`
	History []domain.PricePoint `json:"history"`
}

// GetPrices returns the latest price and the windowed history for a key. The
// optional "since" query parameter (a duration such as "15m") narrows the
// history.
// GET /api/prices/{venue}/{market}?since=15m
func (h *StateHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	key, err := venueKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history := h.state.PriceHistory(key)
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		if n := len(history); n > 0 {
			cutoff := history[n-1].Time.Add(-d)
			i := 0
			for i < n && history[i].Time.Before(cutoff) {
				i++
			}
			history = history[i:]
		}
	}

	resp := pricesResponse{Venue: key.Venue, Market: key.Market, History: history}
	if p, ok := h.state.Price(key); ok {
		resp.Latest = &p
	}
	if resp.Latest == nil && len(history) == 0 {
		writeDomainError(w, r, h.logger, fmt.Errorf("prices %s: %w", key, domain.ErrNotFound))
		return
	}
	if resp.History == nil {
		resp.History = []domain.PricePoint{}
	}
	writeJSON(w, http.StatusOK, resp)
}
