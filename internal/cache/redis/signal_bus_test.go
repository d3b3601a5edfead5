package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := connect(t.Context(), redis.NewClient(&redis.Options{
		Addr:            mr.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	}), "venuecmp:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return ""
	}
}

func assertNothing(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:book:*"))
	assert.True(t, hasPattern("ch:price:lighter:market_?"))
	assert.True(t, hasPattern("ch:[ab]"))
	assert.False(t, hasPattern("ch:comparison"))
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "venuecmp:"}
	assert.Equal(t, "venuecmp:ch:status", c.key("ch:status"))
	assert.Equal(t, "ch:status", (&Client{}).key("ch:status"))
}

func TestSignalBusDelivers(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(t.Context(), "ch:comparison")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(t.Context(), "ch:comparison", []byte(`{"asset":"ETH"}`)))
	assert.JSONEq(t, `{"asset":"ETH"}`, receive(t, ch))

	// Channels live under the key prefix on the server.
	require.NoError(t, c.Underlying().Publish(t.Context(), "venuecmp:ch:comparison", "raw").Err())
	assert.Equal(t, "raw", receive(t, ch))
	require.NoError(t, c.Underlying().Publish(t.Context(), "ch:comparison", "unprefixed").Err())
	assertNothing(t, ch)
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	books, err := bus.Subscribe(t.Context(), "ch:book:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(t.Context(), "ch:book:lighter:market_0", []byte("lighter")))
	require.NoError(t, bus.Publish(t.Context(), "ch:price:lighter:market_0", []byte("price")))
	require.NoError(t, bus.Publish(t.Context(), "ch:book:hyperliquid:ETH", []byte("hyperliquid")))

	assert.Equal(t, "lighter", receive(t, books))
	assert.Equal(t, "hyperliquid", receive(t, books))
	assertNothing(t, books)
}

func TestSignalBusClosesOnCancel(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ctx, cancel := context.WithCancel(t.Context())
	ch, err := bus.Subscribe(ctx, "ch:status")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribeFailsWhenServerDown(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, err := NewSignalBus(c).Subscribe(t.Context(), "ch:status")
	assert.Error(t, err)
}
