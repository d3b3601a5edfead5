package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

func recv(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "channel closed")
		return string(p)
	case <-time.After(time.Second):
		t.Fatal("no message")
		return ""
	}
}

func TestMemoryExactAndPattern(t *testing.T) {
	b := NewMemory()
	defer b.Close()
	ctx := t.Context()

	exact, err := b.Subscribe(ctx, domain.ChannelComparison)
	require.NoError(t, err)
	books, err := b.Subscribe(ctx, "ch:book:*")
	require.NoError(t, err)

	key := domain.NewVenueKey(domain.VenueLighter, "market_0")
	require.NoError(t, b.Publish(ctx, domain.BookChannel(key), []byte("book")))
	require.NoError(t, b.Publish(ctx, domain.ChannelComparison, []byte("cmp")))

	assert.Equal(t, "book", recv(t, books))
	assert.Equal(t, "cmp", recv(t, exact))
	assert.Empty(t, exact)
	assert.Empty(t, books)
}

func TestMemoryCancelClosesSubscription(t *testing.T) {
	b := NewMemory()
	ctx, cancel := context.WithCancel(t.Context())

	ch, err := b.Subscribe(ctx, domain.ChannelStatus)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(t.Context(), domain.ChannelStatus, []byte("x")))
	require.NoError(t, b.Close())

	err = b.Publish(t.Context(), domain.ChannelStatus, nil)
	assert.True(t, errors.Is(err, domain.ErrClosed))
	_, err = b.Subscribe(t.Context(), domain.ChannelStatus)
	assert.True(t, errors.Is(err, domain.ErrClosed))
}

func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	ch, err := b.Subscribe(t.Context(), domain.ChannelComparison)
	require.NoError(t, err)
	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, b.Publish(t.Context(), domain.ChannelComparison, []byte("x")))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestMemoryRejectsBadPattern(t *testing.T) {
	b := NewMemory()
	defer b.Close()
	_, err := b.Subscribe(t.Context(), "ch:[")
	assert.Error(t, err)
}
