package analytics

import "github.com/alanyoungcy/venuecompare/internal/domain"

// DefaultHistoryCapacity is ten minutes of captures at a 10 second interval.
const DefaultHistoryCapacity = 60

// History is a fixed-capacity FIFO ring of comparison snapshots. It is not
// safe for concurrent use; Tracker serializes access.
type History struct {
	buf   []domain.ComparisonSnapshot
	start int
	n     int
}

// NewHistory creates an empty History. A non-positive capacity uses
// DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]domain.ComparisonSnapshot, capacity)}
}

// Append adds s as the newest entry, evicting the oldest when full. It
// reports whether an entry was evicted.
func (h *History) Append(s domain.ComparisonSnapshot) bool {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return false
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
	return true
}

// Snapshots returns the entries oldest first.
func (h *History) Snapshots() []domain.ComparisonSnapshot {
	out := make([]domain.ComparisonSnapshot, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int { return h.n }

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.buf) }

// Reset discards every entry.
func (h *History) Reset() {
	clear(h.buf)
	h.start, h.n = 0, 0
}
