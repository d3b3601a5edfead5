package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/venuecompare/internal/analytics"
	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// ComparisonSource provides comparisons for the active asset.
type ComparisonSource interface {
	Asset() string
	Pair() domain.VenuePair
	Compare() ([]domain.SizeComparison, error)
	History() []domain.ComparisonSnapshot
}

// ComparisonHandler serves the best-execution comparison endpoints.
type ComparisonHandler struct {
	source ComparisonSource
	logger *slog.Logger
}

// NewComparisonHandler creates a ComparisonHandler.
func NewComparisonHandler(source ComparisonSource, logger *slog.Logger) *ComparisonHandler {
	return &ComparisonHandler{source: source, logger: logger.With(slog.String("handler", "comparison"))}
}

type comparisonResponse struct {
	Asset  string                  `json:"asset"`
	Venues domain.VenuePair        `json:"venues"`
	Sizes  []domain.SizeComparison `json:"sizes"`
}

// GetComparison compares both venues' current curves for the active asset.
// It answers 503 until both curves have arrived.
// GET /api/comparison
func (h *ComparisonHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	sizes, err := h.source.Compare()
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if sizes == nil {
		sizes = []domain.SizeComparison{}
	}
	writeJSON(w, http.StatusOK, comparisonResponse{
		Asset:  h.source.Asset(),
		Venues: h.source.Pair(),
		Sizes:  sizes,
	})
}

// GetHistory returns the captured snapshots for the active asset, oldest
// first.
// GET /api/history
func (h *ComparisonHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	snaps := h.source.History()
	if snaps == nil {
		snaps = []domain.ComparisonSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":     h.source.Asset(),
		"snapshots": snaps,
		"total":     len(snaps),
	})
}

// GetWinRates aggregates the history into per-size win rates. Rates with no
// decisive samples are null. samples and rates come from the same history
// copy.
// GET /api/winrates
func (h *ComparisonHandler) GetWinRates(w http.ResponseWriter, r *http.Request) {
	snaps := h.source.History()
	rates := analytics.WinRates(snaps, h.source.Pair())
	if rates == nil {
		rates = []domain.SizeWinRate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":   h.source.Asset(),
		"samples": len(snaps),
		"rates":   rates,
	})
}
