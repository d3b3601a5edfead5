// Package session ties one feed connection, the venue state store, and the
// comparison tracker into a single unit with one teardown point.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/venuecompare/internal/analytics"
	"github.com/alanyoungcy/venuecompare/internal/domain"
	"github.com/alanyoungcy/venuecompare/internal/feed"
	"github.com/alanyoungcy/venuecompare/internal/liquidity"
	"github.com/alanyoungcy/venuecompare/internal/notify"
	"github.com/alanyoungcy/venuecompare/internal/venuestate"
)

const (
	outboxSize     = 1024
	eventQueueSize = 16
	publishTimeout = 2 * time.Second
)

// Config configures a Session.
type Config struct {
	Feed            feed.Config
	Pair            domain.VenuePair
	Assets          domain.AssetMap
	Asset           string
	CaptureInterval time.Duration
	HistoryCapacity int
	PriceWindow     time.Duration
	// DeriveCurves computes a cost curve from each book for keys the feed
	// never sent a curve for.
	DeriveCurves   bool
	LiquiditySizes []float64
}

// Status is the session summary exposed to presentation.
type Status struct {
	SessionID string     `json:"session_id"`
	Asset     string     `json:"asset"`
	Venues    []string   `json:"venues"`
	Connected bool       `json:"connected"`
	StartedAt time.Time  `json:"started_at"`
	Feed      feed.Stats `json:"feed"`
	Captures  int        `json:"captures"`
}

type message struct {
	channel string
	payload []byte
}

// Session owns a feed manager, a state store, and a tracker. Store updates
// and captures are mirrored onto an optional SignalBus.
type Session struct {
	id        string
	cfg       Config
	startedAt time.Time
	logger    *slog.Logger

	feed    *feed.Manager
	store   *venuestate.Store
	tracker *analytics.Tracker
	calc    *liquidity.Calculator

	bus      domain.SignalBus
	notifier *notify.Notifier

	outbox  chan message
	events  chan notify.Event
	dropped atomic.Uint64

	// lost is only touched from the state handler, which the feed manager
	// serializes.
	lost bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    bool
	closeOnce sync.Once
}

// New builds a Session. bus and notifier may be nil.
func New(cfg Config, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) (*Session, error) {
	if err := cfg.Pair.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.Assets == nil {
		cfg.Assets = domain.DefaultAssetMap()
	}
	cfg.Asset = strings.ToUpper(strings.TrimSpace(cfg.Asset))
	if _, _, err := cfg.Assets.Keys(cfg.Asset, cfg.Pair); err != nil {
		return nil, fmt.Errorf("session: initial asset: %w", err)
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("component", "session"), slog.String("session_id", id)),
		feed:      feed.NewManager(cfg.Feed, logger),
		store:     venuestate.New(cfg.PriceWindow),
		bus:       bus,
		notifier:  notifier,
		outbox:    make(chan message, outboxSize),
		events:    make(chan notify.Event, eventQueueSize),
	}
	s.tracker = analytics.NewTracker(analytics.TrackerConfig{
		Pair:      cfg.Pair,
		Assets:    cfg.Assets,
		Asset:     cfg.Asset,
		Interval:  cfg.CaptureInterval,
		Capacity:  cfg.HistoryCapacity,
		SessionID: id,
	}, s.store, logger)
	if cfg.DeriveCurves {
		s.calc = liquidity.NewCalculator(cfg.LiquiditySizes)
	}

	s.feed.OnOrderBook(s.handleBook)
	s.feed.OnLiquidityCurve(s.store.PutCurve)
	s.feed.OnPriceTick(s.store.PutPriceTick)
	s.feed.OnStateChange(s.handleState)
	s.store.OnChange(s.handleChange)
	s.tracker.OnCapture(s.handleCapture)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Store returns the venue state store.
func (s *Session) Store() *venuestate.Store { return s.store }

// Tracker returns the comparison tracker.
func (s *Session) Tracker() *analytics.Tracker { return s.tracker }

// Feed returns the connection manager.
func (s *Session) Feed() *feed.Manager { return s.feed }

// Assets returns the asset map.
func (s *Session) Assets() domain.AssetMap { return s.cfg.Assets }

// Status summarizes the session.
func (s *Session) Status() Status {
	st := s.feed.Stats()
	return Status{
		SessionID: s.id,
		Asset:     s.tracker.Asset(),
		Venues:    []string{string(s.cfg.Pair.First), string(s.cfg.Pair.Second)},
		Connected: st.Connected,
		StartedAt: s.startedAt,
		Feed:      st,
		Captures:  len(s.tracker.History()),
	}
}

// Subscribe adds markets to the feed subscription.
func (s *Session) Subscribe(markets ...string) {
	s.feed.Subscribe(markets...)
}

// SelectAsset makes asset the active comparison asset and subscribes it.
// The capture history is reset when the asset changes.
func (s *Session) SelectAsset(ctx context.Context, asset string) error {
	prev := s.tracker.Asset()
	if err := s.tracker.SetAsset(asset); err != nil {
		return fmt.Errorf("session: select asset: %w", err)
	}
	cur := s.tracker.Asset()
	s.feed.Subscribe(cur)
	if cur != prev {
		s.enqueueStatus()
		s.queueEvent(notify.Event{
			Type:    notify.EventAssetChanged,
			Title:   "Active asset changed",
			Message: fmt.Sprintf("%s -> %s", prev, cur),
		})
	}
	return nil
}

// Run connects the feed and runs the capture loop until ctx is cancelled or
// Close is called, then tears everything down. A closed session cannot run
// again.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("session: run: %w", domain.ErrClosed)
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer s.Close()

	s.feed.Subscribe(s.tracker.Asset())
	s.logger.InfoContext(ctx, "session starting",
		slog.String("asset", s.tracker.Asset()),
		slog.String("first", string(s.cfg.Pair.First)),
		slog.String("second", string(s.cfg.Pair.Second)),
	)
	if err := s.feed.Connect(ctx); err != nil {
		// The manager keeps retrying on its own.
		s.logger.WarnContext(ctx, "initial connect failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tracker.Run(ctx) })
	g.Go(func() error { return s.drainOutbox(ctx) })
	g.Go(func() error { return s.deliverEvents(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the capture loop, the bus and notification goroutines, the
// heartbeat and any pending reconnect, and closes the transport. Run returns
// once its goroutines have exited.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		err = s.feed.Close()
		s.logger.Info("session closed",
			slog.Int("captures", len(s.tracker.History())),
			slog.Uint64("publish_dropped", s.dropped.Load()),
		)
	})
	return err
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Session) handleBook(book domain.OrderBookSnapshot) {
	s.store.PutOrderBook(book)
	if s.calc == nil {
		return
	}
	if existing, ok := s.store.Curve(book.Key()); ok && !existing.Derived {
		return
	}
	curve, err := s.calc.Derive(book)
	if err != nil {
		s.logger.Debug("curve not derived", slog.String("key", book.Key().String()), slog.String("error", err.Error()))
		return
	}
	s.store.PutCurve(curve)
}

func (s *Session) handleChange(c venuestate.Change) {
	if s.bus == nil {
		return
	}
	switch c.Kind {
	case venuestate.ChangeOrderBook:
		if v, ok := s.store.OrderBook(c.Key); ok {
			s.enqueue(domain.BookChannel(c.Key), v)
		}
	case venuestate.ChangeLiquidity:
		if v, ok := s.store.Curve(c.Key); ok {
			s.enqueue(domain.LiquidityChannel(c.Key), v)
		}
	case venuestate.ChangePrice:
		if v, ok := s.store.Price(c.Key); ok {
			s.enqueue(domain.PriceChannel(c.Key), domain.PriceTick{
				Venue: c.Key.Venue, Market: c.Key.Market, Price: v.Price, Timestamp: v.Time,
			})
		}
	}
}

func (s *Session) handleCapture(snap domain.ComparisonSnapshot) {
	s.logger.Info("comparison captured",
		slog.String("asset", snap.Asset),
		slog.Int("sizes", len(snap.Outcomes)),
		slog.Int("history", len(s.tracker.History())),
	)
	if s.bus != nil {
		s.enqueue(domain.ChannelComparison, snap)
	}
}

// handleState runs under the feed manager's lock and must not block or call
// back into the manager.
func (s *Session) handleState(from, to feed.State) {
	if s.bus != nil {
		s.enqueue(domain.ChannelStatus, statusPayload{
			SessionID: s.id,
			Asset:     s.tracker.Asset(),
			State:     to,
			Connected: to == feed.StateConnected,
		})
	}

	switch {
	case to == feed.StateConnected:
		if s.lost {
			s.lost = false
			s.queueEvent(notify.Event{
				Type:    notify.EventConnectionRestored,
				Title:   "Feed connection restored",
				Message: fmt.Sprintf("session %s reconnected", s.id),
			})
		}
	case from == feed.StateConnected && to == feed.StateDisconnected:
		s.lost = true
		s.queueEvent(notify.Event{
			Type:    notify.EventConnectionLost,
			Title:   "Feed connection lost",
			Message: fmt.Sprintf("session %s disconnected, reconnecting", s.id),
		})
	}
}

type statusPayload struct {
	SessionID string     `json:"session_id"`
	Asset     string     `json:"asset"`
	State     feed.State `json:"state"`
	Connected bool       `json:"connected"`
}

func (s *Session) enqueueStatus() {
	if s.bus == nil {
		return
	}
	state := s.feed.State()
	s.enqueue(domain.ChannelStatus, statusPayload{
		SessionID: s.id,
		Asset:     s.tracker.Asset(),
		State:     state,
		Connected: state == feed.StateConnected,
	})
}

// enqueue marshals v for channel. A full outbox drops the message.
func (s *Session) enqueue(channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal bus payload", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	select {
	case s.outbox <- message{channel: channel, payload: payload}:
	default:
		s.dropped.Add(1)
	}
}

func (s *Session) queueEvent(ev notify.Event) {
	if !s.notifier.Enabled() {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("notification queue full", slog.String("event", ev.Type))
	}
}

func (s *Session) drainOutbox(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := s.bus.Publish(pubCtx, m.channel, m.payload)
			cancel()
			if err != nil {
				s.logger.Warn("publish failed",
					slog.String("channel", m.channel),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *Session) deliverEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			// Failures are already logged per sender.
			_ = s.notifier.Notify(ctx, ev)
		}
	}
}
