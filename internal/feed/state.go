package feed

import (
	"sort"
	"time"
)

// State is the connection manager's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats is a point-in-time view of the connection.
type Stats struct {
	State             State     `json:"state"`
	Connected         bool      `json:"connected"`
	MessagesReceived  uint64    `json:"messages_received"`
	FramesDropped     uint64    `json:"frames_dropped"`
	ReconnectAttempts uint64    `json:"reconnect_attempts"`
	LastMessageAt     time.Time `json:"last_message_at,omitzero"`
	LastError         string    `json:"last_error,omitempty"`
	Subscriptions     []string  `json:"subscriptions"`
}

// subscriptionSet is the persistent set of subscribed markets.
type subscriptionSet map[string]struct{}

// add inserts markets and returns those not already present, in input order.
func (s subscriptionSet) add(markets []string) []string {
	var added []string
	for _, m := range markets {
		if m == "" {
			continue
		}
		if _, ok := s[m]; ok {
			continue
		}
		s[m] = struct{}{}
		added = append(added, m)
	}
	return added
}

// remove deletes markets and returns those that were present.
func (s subscriptionSet) remove(markets []string) []string {
	var removed []string
	for _, m := range markets {
		if _, ok := s[m]; ok {
			delete(s, m)
			removed = append(removed, m)
		}
	}
	return removed
}

// sorted returns the markets in a stable order.
func (s subscriptionSet) sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
