package venuestate

import (
	"sync"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// PriceHistory keeps a sliding time window of price points per key.
type PriceHistory struct {
	mu      sync.RWMutex
	history map[domain.VenueKey][]domain.PricePoint
	window  time.Duration
}

// NewPriceHistory creates a PriceHistory retaining points newer than window
// relative to the latest point of each key.
func NewPriceHistory(window time.Duration) *PriceHistory {
	return &PriceHistory{
		history: make(map[domain.VenueKey][]domain.PricePoint),
		window:  window,
	}
}

// Track appends p and drops points that fell out of the window.
func (h *PriceHistory) Track(key domain.VenueKey, p domain.PricePoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[key] = append(h.history[key], p)
	h.trim(key, p.Time)
}

// Get returns a copy of the history for key, oldest first.
func (h *PriceHistory) Get(key domain.VenueKey) []domain.PricePoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	src := h.history[key]
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.PricePoint, len(src))
	copy(out, src)
	return out
}

// trim removes points older than the window. The caller must hold h.mu.
func (h *PriceHistory) trim(key domain.VenueKey, now time.Time) {
	cutoff := now.Add(-h.window)
	pts := h.history[key]

	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.history[key] = append([]domain.PricePoint(nil), pts[i:]...)
	}
}
