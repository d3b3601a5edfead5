// Package feed manages the single streaming connection to the upstream
// aggregator: subscriptions, heartbeat, reconnection, and dispatch of
// normalized frames.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/venuecompare/internal/domain"
	"github.com/alanyoungcy/venuecompare/internal/normalize"
)

const (
	// DefaultHeartbeatInterval is the period of outbound keepalive frames.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultReconnectDelay is the wait between a disconnect and the next
	// connection attempt.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxReconnectDelay caps exponential backoff.
	DefaultMaxReconnectDelay = 60 * time.Second

	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 10 * time.Second

	// dropLogBurst bounds how many dropped frames are logged per second.
	dropLogBurst   = 5
	maxLoggedFrame = 256
)

// Config configures a Manager.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	// ExponentialBackoff doubles the delay after each failed attempt up to
	// MaxReconnectDelay. Attempts never stop.
	ExponentialBackoff bool
	MaxReconnectDelay  time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	// StaleTimeout closes a connection that delivered no frame for this
	// long. Zero disables the check.
	StaleTimeout time.Duration
}

// BookHandler receives normalized order book snapshots.
type BookHandler func(domain.OrderBookSnapshot)

// CurveHandler receives normalized liquidity cost curves.
type CurveHandler func(domain.LiquidityCostCurve)

// TickHandler receives normalized price ticks.
type TickHandler func(domain.PriceTick)

// StateHandler observes state transitions. It runs while the manager's lock
// is held and must not call back into the Manager.
type StateHandler func(from, to State)

// Manager owns one streaming connection. Frames from the connection are
// processed one at a time in arrival order.
type Manager struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
	drops  *rate.Limiter

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	gen            uint64
	subs           subscriptionSet
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	backoff        *backoff.Backoff
	closed         bool
	lastErr        error

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex

	handlerMu     sync.RWMutex
	bookHandlers  []BookHandler
	curveHandlers []CurveHandler
	tickHandlers  []TickHandler
	stateHandlers []StateHandler

	messages    atomic.Uint64
	dropped     atomic.Uint64
	reconnects  atomic.Uint64
	lastMessage atomic.Int64
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(DefaultMaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Manager{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:  logger.With(slog.String("component", "feed")),
		drops:   rate.NewLimiter(rate.Every(time.Second), dropLogBurst),
		subs:    make(subscriptionSet),
		backoff: &backoff.Backoff{Min: cfg.ReconnectDelay, Max: cfg.MaxReconnectDelay, Factor: 2},
	}
}

// OnOrderBook registers a handler for order book snapshots.
func (m *Manager) OnOrderBook(h BookHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.bookHandlers = append(m.bookHandlers, h)
}

// OnLiquidityCurve registers a handler for liquidity cost curves.
func (m *Manager) OnLiquidityCurve(h CurveHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.curveHandlers = append(m.curveHandlers, h)
}

// OnPriceTick registers a handler for price ticks.
func (m *Manager) OnPriceTick(h TickHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.tickHandlers = append(m.tickHandlers, h)
}

// OnStateChange registers a state transition observer.
func (m *Manager) OnStateChange(h StateHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.stateHandlers = append(m.stateHandlers, h)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected is the liveness flag read by presentation.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Subscriptions returns the persistent subscription set, sorted.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.sorted()
}

// LastError returns the cause of the most recent disconnect wrapped in
// domain.ErrWSDisconnect, or nil.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns connection counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	st := Stats{
		State:         m.state,
		Connected:     m.state == StateConnected,
		Subscriptions: m.subs.sorted(),
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	st.MessagesReceived = m.messages.Load()
	st.FramesDropped = m.dropped.Load()
	st.ReconnectAttempts = m.reconnects.Load()
	if ns := m.lastMessage.Load(); ns > 0 {
		st.LastMessageAt = time.Unix(0, ns).UTC()
	}
	return st
}

// Connect opens the transport. It is a no-op while Connecting or Connected.
// On success every subscribed market is replayed in one subscribe frame and
// the heartbeat starts. On failure a reconnect is scheduled and the transport
// error is returned; the manager keeps retrying on its own.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("feed: connect: %w", domain.ErrClosed)
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.logger.Info("connecting", slog.String("url", m.cfg.URL))
	conn, _, dialErr := m.dialer.DialContext(ctx, m.cfg.URL, nil)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("feed: connect: %w", domain.ErrClosed)
	}
	if dialErr != nil {
		m.setStateLocked(StateDisconnected)
		delay := m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.logger.Warn("connect failed, reconnecting",
			slog.String("error", dialErr.Error()),
			slog.Duration("delay", delay),
		)
		return fmt.Errorf("feed: connect: %w: %w", domain.ErrTransport, dialErr)
	}

	m.conn = conn
	m.gen++
	gen := m.gen
	m.backoff.Reset()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	replay := m.subs.sorted()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("connected", slog.Int("subscriptions", len(replay)))

	if len(replay) > 0 {
		cmd := normalize.SubscribeCommand{Action: "subscribe", Markets: replay}
		if err := m.write(conn, cmd); err != nil {
			m.handleDisconnect(gen, err)
			return fmt.Errorf("feed: replay subscriptions: %w: %w", domain.ErrTransport, err)
		}
	}

	go m.readLoop(conn, gen)
	go m.heartbeat(conn, gen, stop)
	return nil
}

// Subscribe adds markets to the persistent subscription set. While
// connected, a subscribe frame listing only the newly added markets is sent
// immediately; otherwise they are sent by the next successful connect.
func (m *Manager) Subscribe(markets ...string) {
	m.mu.Lock()
	added := m.subs.add(cleanMarkets(markets))
	conn, gen, state := m.conn, m.gen, m.state
	m.mu.Unlock()

	if len(added) == 0 || state != StateConnected {
		return
	}
	cmd := normalize.SubscribeCommand{Action: "subscribe", Markets: added}
	if err := m.write(conn, cmd); err != nil {
		m.logger.Warn("subscribe send failed, markets will be replayed on reconnect",
			slog.Any("markets", added),
			slog.String("error", err.Error()),
		)
		m.handleDisconnect(gen, err)
		return
	}
	m.logger.Info("subscribed", slog.Any("markets", added))
}

// Unsubscribe removes markets from the subscription set and, while
// connected, tells the peer.
func (m *Manager) Unsubscribe(markets ...string) {
	m.mu.Lock()
	removed := m.subs.remove(cleanMarkets(markets))
	conn, gen, state := m.conn, m.gen, m.state
	m.mu.Unlock()

	if len(removed) == 0 || state != StateConnected {
		return
	}
	cmd := normalize.SubscribeCommand{Action: "unsubscribe", Markets: removed}
	if err := m.write(conn, cmd); err != nil {
		m.handleDisconnect(gen, err)
	}
}

// Close tears the manager down: the pending reconnect and the heartbeat are
// cancelled and the transport is closed. No reconnect happens afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	return conn.Close()
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// setStateLocked records a transition and notifies observers. The caller
// must hold m.mu.
func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.logger.Debug("state changed", slog.String("from", from.String()), slog.String("to", to.String()))

	m.handlerMu.RLock()
	handlers := m.stateHandlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(from, to)
	}
}

// scheduleReconnectLocked moves to ReconnectPending and arms the reconnect
// timer. The caller must hold m.mu.
func (m *Manager) scheduleReconnectLocked() time.Duration {
	delay := m.cfg.ReconnectDelay
	if m.cfg.ExponentialBackoff {
		delay = m.backoff.Duration()
	}
	m.setStateLocked(StateReconnectPending)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	return delay
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closed || m.state != StateReconnectPending {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.mu.Unlock()

	m.reconnects.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	// Failures reschedule inside Connect.
	_ = m.Connect(ctx)
}

// handleDisconnect tears down connection gen after a transport failure and
// schedules a reconnect. Stale generations are ignored so one failure is
// handled exactly once.
func (m *Manager) handleDisconnect(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.lastErr = fmt.Errorf("%w: %w", domain.ErrWSDisconnect, cause)
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	m.setStateLocked(StateDisconnected)
	delay := m.scheduleReconnectLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.logger.Warn("disconnected, reconnecting",
		slog.String("error", cause.Error()),
		slog.Duration("delay", delay),
	)
}

// write sends v as one JSON text frame.
func (m *Manager) write(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// readLoop processes frames from conn until it fails.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		if m.cfg.StaleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(m.cfg.StaleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}
		m.handleFrame(conn, gen, data)
	}
}

// heartbeat sends a keepalive frame every interval until stop is closed.
func (m *Manager) heartbeat(conn *websocket.Conn, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.write(conn, normalize.ControlFrame{Type: normalize.TypePing}); err != nil {
				m.handleDisconnect(gen, fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

// handleFrame decodes one inbound frame and dispatches it.
func (m *Manager) handleFrame(conn *websocket.Conn, gen uint64, data []byte) {
	m.messages.Add(1)
	m.lastMessage.Store(time.Now().UnixNano())

	msg, err := normalize.Decode(data)
	if err != nil {
		m.drop(err, data)
		return
	}

	switch msg.Type {
	case normalize.TypePing:
		if err := m.write(conn, normalize.ControlFrame{Type: normalize.TypePong}); err != nil {
			m.handleDisconnect(gen, err)
		}
		return
	case normalize.TypePong:
		return
	}

	if len(msg.Skipped) > 0 {
		m.logger.Warn("dropped liquidity entries with invalid size keys",
			slog.String("key", msg.Curve.Key().String()),
			slog.Any("keys", msg.Skipped),
		)
	}

	m.handlerMu.RLock()
	books, curves, ticks := m.bookHandlers, m.curveHandlers, m.tickHandlers
	m.handlerMu.RUnlock()

	switch {
	case msg.Book != nil:
		for _, h := range books {
			h(*msg.Book)
		}
	case msg.Curve != nil:
		for _, h := range curves {
			h(*msg.Curve)
		}
	case msg.Tick != nil:
		for _, h := range ticks {
			h(*msg.Tick)
		}
	}
}

// drop counts a malformed frame and logs it, throttled.
func (m *Manager) drop(err error, data []byte) {
	m.dropped.Add(1)
	if !m.drops.Allow() {
		return
	}
	frame := string(data)
	if len(frame) > maxLoggedFrame {
		frame = frame[:maxLoggedFrame] + "..."
	}
	m.logger.Warn("dropping malformed frame",
		slog.String("error", err.Error()),
		slog.String("frame", frame),
	)
}

func cleanMarkets(markets []string) []string {
	out := make([]string, 0, len(markets))
	for _, mk := range markets {
		if mk = strings.TrimSpace(mk); mk != "" {
			out = append(out, mk)
		}
	}
	return out
}
