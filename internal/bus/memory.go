// Package bus provides an in-process domain.SignalBus used when redis is
// disabled.
package bus

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/alanyoungcy/venuecompare/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Memory fans published payloads out to matching subscribers. Channel names
// follow redis glob semantics. A subscriber that is not keeping up loses
// messages rather than stalling publishers.
type Memory struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewMemory creates an empty bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*subscriber]struct{})}
}

// Publish delivers payload to every subscriber whose channel matches.
func (b *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus: publish %s: %w", channel, domain.ErrClosed)
	}
	for s := range b.subs {
		if !match(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers interest in channel. The returned channel is closed
// when ctx is cancelled or the bus is closed.
func (b *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", channel, err)
	}

	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus: subscribe %s: %w", channel, domain.ErrClosed)
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

// Close closes every subscription.
func (b *Memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
	return nil
}

func (b *Memory) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

func match(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, _ := path.Match(pattern, channel)
	return ok
}

var _ domain.SignalBus = (*Memory)(nil)
