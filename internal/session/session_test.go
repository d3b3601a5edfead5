package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuecompare/internal/bus"
	"github.com/alanyoungcy/venuecompare/internal/domain"
	"github.com/alanyoungcy/venuecompare/internal/feed"
	"github.com/alanyoungcy/venuecompare/internal/notify"
)

// fakeFeed accepts one manager connection at a time and lets the test push
// frames to it.
type fakeFeed struct {
	srv   *httptest.Server
	mu    sync.Mutex
	conn  *websocket.Conn
	conns chan *websocket.Conn
}

func newFakeFeed(t *testing.T) *fakeFeed {
	t.Helper()
	f := &fakeFeed{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFeed) url() string { return "ws" + strings.TrimPrefix(f.srv.URL, "http") }

func (f *fakeFeed) send(t *testing.T, frame string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.conn)
	require.NoError(t, f.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (f *fakeFeed) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("session never connected")
		return nil
	}
}

func liquidityFrame(exchange, market string, buySlip, sellSlip float64) string {
	return fmt.Sprintf(`{"type":"liquidity_metrics","exchange":%q,"market":%q,"timestamp":1700000000,
		"metrics":{"1000":{"buy_cost":1000,"buy_avg_price":1,"buy_slippage_bps":%g,
		"sell_proceeds":1000,"sell_avg_price":1,"sell_slippage_bps":%g}}}`, exchange, market, buySlip, sellSlip)
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func newSession(t *testing.T, url string, b domain.SignalBus, n *notify.Notifier, derive bool) *Session {
	t.Helper()
	s, err := New(Config{
		Feed: feed.Config{
			URL:               url,
			HeartbeatInterval: time.Hour,
			ReconnectDelay:    20 * time.Millisecond,
		},
		Pair:            domain.VenuePair{First: domain.VenueHyperliquid, Second: domain.VenueLighter},
		Asset:           "eth",
		CaptureInterval: 20 * time.Millisecond,
		DeriveCurves:    derive,
		LiquiditySizes:  []float64{1000},
	}, b, n, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func run(t *testing.T, s *Session) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return cancel
}

func TestSessionCapturesAndPublishes(t *testing.T) {
	up := newFakeFeed(t)
	b := bus.NewMemory()
	defer b.Close()

	comparisons, err := b.Subscribe(t.Context(), domain.ChannelComparison)
	require.NoError(t, err)
	curves, err := b.Subscribe(t.Context(), "ch:liquidity:*")
	require.NoError(t, err)

	s := newSession(t, up.url(), b, nil, false)
	run(t, s)
	up.waitConn(t)

	up.send(t, liquidityFrame("hyperliquid", "ETH", 5, 9))
	up.send(t, liquidityFrame("lighter", "market_0", 8, 3))

	select {
	case raw := <-curves:
		var c domain.LiquidityCostCurve
		require.NoError(t, json.Unmarshal(raw, &c))
		assert.Equal(t, domain.VenueHyperliquid, c.Venue)
	case <-time.After(2 * time.Second):
		t.Fatal("no curve published")
	}

	select {
	case raw := <-comparisons:
		var snap domain.ComparisonSnapshot
		require.NoError(t, json.Unmarshal(raw, &snap))
		assert.Equal(t, s.ID(), snap.SessionID)
		assert.Equal(t, "ETH", snap.Asset)
		require.Len(t, snap.Outcomes, 1)
		assert.Equal(t, domain.VenueOutcome(domain.VenueHyperliquid), snap.Outcomes[0].Buy)
		assert.Equal(t, domain.VenueOutcome(domain.VenueLighter), snap.Outcomes[0].Sell)
	case <-time.After(2 * time.Second):
		t.Fatal("no comparison published")
	}

	cmp, err := s.Tracker().Compare()
	require.NoError(t, err)
	assert.Equal(t, domain.VenueHyperliquid, cmp[0].BuyWinner)

	st := s.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "ETH", st.Asset)
	assert.Equal(t, []string{"ETH"}, st.Feed.Subscriptions)
}

func TestSessionSelectAssetResetsHistory(t *testing.T) {
	up := newFakeFeed(t)
	s := newSession(t, up.url(), nil, nil, false)
	run(t, s)
	up.waitConn(t)

	up.send(t, liquidityFrame("hyperliquid", "ETH", 5, 5))
	up.send(t, liquidityFrame("lighter", "market_0", 5, 5))
	require.Eventually(t, func() bool { return len(s.Tracker().History()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.SelectAsset(t.Context(), "BTC"))
	assert.Empty(t, s.Tracker().WinRates())
	assert.Equal(t, []string{"BTC", "ETH"}, s.Feed().Subscriptions())

	err := s.SelectAsset(t.Context(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	assert.Equal(t, "BTC", s.Tracker().Asset())
}

func TestSessionDerivesCurvesFromBooks(t *testing.T) {
	up := newFakeFeed(t)
	s := newSession(t, up.url(), nil, nil, true)
	run(t, s)
	up.waitConn(t)

	up.send(t, `{"type":"orderbook_update","exchange":"lighter","market":"market_0","timestamp":1700000000,
		"bids":[{"price":3499,"size":10}],"asks":[{"price":3501,"size":10}]}`)

	key := domain.NewVenueKey(domain.VenueLighter, "market_0")
	require.Eventually(t, func() bool {
		_, ok := s.Store().Curve(key)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	c, _ := s.Store().Curve(key)
	assert.True(t, c.Derived)

	// A feed-supplied curve wins and is not overwritten by later books.
	up.send(t, liquidityFrame("lighter", "market_0", 1, 1))
	up.send(t, `{"type":"orderbook_update","exchange":"lighter","market":"market_0","timestamp":1700000001,
		"bids":[{"price":3499,"size":10}],"asks":[{"price":3501,"size":10}]}`)
	require.Eventually(t, func() bool {
		b, ok := s.Store().OrderBook(key)
		return ok && b.Timestamp.Unix() == 1700000001
	}, 2*time.Second, 5*time.Millisecond)
	c, _ = s.Store().Curve(key)
	assert.False(t, c.Derived)
}

func TestSessionNotifiesConnectionLossAndRestore(t *testing.T) {
	up := newFakeFeed(t)
	rec := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{rec}, []string{notify.EventConnectionLost, notify.EventConnectionRestored}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s := newSession(t, up.url(), nil, n, false)
	run(t, s)
	first := up.waitConn(t)
	require.Eventually(t, s.Feed().Connected, time.Second, 5*time.Millisecond)

	first.Close()
	up.waitConn(t)

	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Feed connection lost", "Feed connection restored"}, rec.get())
}

func TestCloseStopsCaptureLoop(t *testing.T) {
	up := newFakeFeed(t)
	s := newSession(t, up.url(), nil, nil, false)

	done := make(chan error, 1)
	go func() { done <- s.Run(t.Context()) }()
	up.waitConn(t)

	up.send(t, liquidityFrame("hyperliquid", "ETH", 5, 9))
	up.send(t, liquidityFrame("lighter", "market_0", 8, 3))
	require.Eventually(t, func() bool { return len(s.Tracker().History()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	captured := len(s.Tracker().History())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, s.Tracker().History(), captured)
	assert.Equal(t, feed.StateDisconnected, s.Feed().State())

	err := s.Run(t.Context())
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestNewRejectsUnknownAsset(t *testing.T) {
	_, err := New(Config{
		Pair:  domain.VenuePair{First: domain.VenueHyperliquid, Second: domain.VenueLighter},
		Asset: "DOGE",
	}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}
