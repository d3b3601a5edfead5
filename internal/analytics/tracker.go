package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

// DefaultCaptureInterval is the period between history captures.
const DefaultCaptureInterval = 10 * time.Second

// CurveSource provides the latest liquidity curve per key.
type CurveSource interface {
	Curve(key domain.VenueKey) (domain.LiquidityCostCurve, bool)
}

// CaptureHandler is called after every snapshot appended to the history.
type CaptureHandler func(domain.ComparisonSnapshot)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Pair      domain.VenuePair
	Assets    domain.AssetMap
	Asset     string
	Interval  time.Duration
	Capacity  int
	SessionID string
}

// Tracker owns the comparison history for the active asset. It captures a
// snapshot on every tick while both venues have a curve for the asset and
// discards the history whenever the asset changes.
type Tracker struct {
	cfg    TrackerConfig
	curves CurveSource
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	asset   string
	history *History

	handlerMu sync.RWMutex
	handlers  []CaptureHandler
}

// NewTracker creates a Tracker reading curves from curves.
func NewTracker(cfg TrackerConfig, curves CurveSource, logger *slog.Logger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCaptureInterval
	}
	return &Tracker{
		cfg:     cfg,
		curves:  curves,
		logger:  logger.With(slog.String("component", "tracker")),
		now:     time.Now,
		asset:   strings.ToUpper(cfg.Asset),
		history: NewHistory(cfg.Capacity),
	}
}

// OnCapture registers a handler for appended snapshots.
func (t *Tracker) OnCapture(h CaptureHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handlers = append(t.handlers, h)
}

// Asset returns the active asset symbol.
func (t *Tracker) Asset() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asset
}

// Pair returns the compared venues.
func (t *Tracker) Pair() domain.VenuePair {
	return t.cfg.Pair
}

// SetAsset switches the active asset. Switching to a different asset empties
// the history so outcomes of different markets are never mixed.
func (t *Tracker) SetAsset(asset string) error {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if _, _, err := t.cfg.Assets.Keys(asset, t.cfg.Pair); err != nil {
		return fmt.Errorf("analytics: set asset: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if asset == t.asset {
		return nil
	}
	dropped := t.history.Len()
	t.asset = asset
	t.history.Reset()
	t.logger.Info("active asset changed, history reset",
		slog.String("asset", asset),
		slog.Int("dropped", dropped),
	)
	return nil
}

// Compare runs the on-demand best-execution comparison for the active asset.
// It returns domain.ErrInsufficientData while either venue lacks a curve.
func (t *Tracker) Compare() ([]domain.SizeComparison, error) {
	first, second, err := t.currentCurves(t.Asset())
	if err != nil {
		return nil, err
	}
	return Compare(first, second), nil
}

// CaptureNow appends a snapshot for the active asset if both venues have a
// curve with at least one shared size. It reports whether a snapshot was
// appended.
func (t *Tracker) CaptureNow() (domain.ComparisonSnapshot, bool) {
	t.mu.Lock()
	first, second, err := t.currentCurves(t.asset)
	if err != nil {
		t.mu.Unlock()
		t.logger.Debug("capture skipped", slog.String("reason", err.Error()))
		return domain.ComparisonSnapshot{}, false
	}

	snap := Capture(t.now(), first, second)
	if len(snap.Outcomes) == 0 {
		t.mu.Unlock()
		t.logger.Debug("capture skipped", slog.String("reason", "no shared sizes"))
		return domain.ComparisonSnapshot{}, false
	}
	snap.SessionID = t.cfg.SessionID
	snap.Asset = t.asset
	t.history.Append(snap)
	t.mu.Unlock()

	t.handlerMu.RLock()
	handlers := t.handlers
	t.handlerMu.RUnlock()
	for _, h := range handlers {
		h(snap)
	}
	return snap, true
}

// History returns the captured snapshots for the active asset, oldest first.
func (t *Tracker) History() []domain.ComparisonSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Snapshots()
}

// WinRates aggregates the current history.
func (t *Tracker) WinRates() []domain.SizeWinRate {
	return WinRates(t.History(), t.cfg.Pair)
}

// Run captures on every interval tick until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	t.logger.Info("capture loop started",
		slog.Duration("interval", t.cfg.Interval),
		slog.String("asset", t.Asset()),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.CaptureNow()
		}
	}
}

func (t *Tracker) currentCurves(asset string) (domain.LiquidityCostCurve, domain.LiquidityCostCurve, error) {
	fk, sk, err := t.cfg.Assets.Keys(asset, t.cfg.Pair)
	if err != nil {
		return domain.LiquidityCostCurve{}, domain.LiquidityCostCurve{}, err
	}
	first, ok := t.curves.Curve(fk)
	if !ok {
		return domain.LiquidityCostCurve{}, domain.LiquidityCostCurve{}, fmt.Errorf("no curve for %s: %w", fk, domain.ErrInsufficientData)
	}
	second, ok := t.curves.Curve(sk)
	if !ok {
		return domain.LiquidityCostCurve{}, domain.LiquidityCostCurve{}, fmt.Errorf("no curve for %s: %w", sk, domain.ErrInsufficientData)
	}
	return first, second, nil
}
