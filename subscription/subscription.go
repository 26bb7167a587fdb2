// Package subscription holds the live subscriptions of every connection.
package subscription

import (
	"sync/atomic"
	"time"

	"github.com/ephemeral/relay/filter"
	"github.com/ephemeral/relay/protocol"
)

// Sink is the outbound side of the connection that owns a subscription.
// Send must not block; a slow or closed connection reports an error instead.
type Sink interface {
	ConnID() string
	Send(msg protocol.Message) error
}

// Key identifies a subscription: the connection plus its connection-local id.
type Key struct {
	ConnID string
	SubID  string
}

// Subscription is a standing filter set registered by one connection.
type Subscription struct {
	Key
	Filters   filter.Filters
	CreatedAt time.Time
	Sink      Sink

	removed atomic.Bool
}

// New creates a subscription owned by sink. The filters are copied.
func New(sink Sink, subID string, filters filter.Filters) *Subscription {
	return &Subscription{
		Key:       Key{ConnID: sink.ConnID(), SubID: subID},
		Filters:   filters.Clone(),
		CreatedAt: time.Now().UTC(),
		Sink:      sink,
	}
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return !s.removed.Load()
}

// deactivate marks the subscription removed so in-flight broadcasts skip it.
func (s *Subscription) deactivate() {
	s.removed.Store(true)
}
