// Package store defines the retention contract for published events.
//
// The relay is memory-only: the memory subpackage is the sole backend, and
// every query is answered from the retained set.
package store

import (
	"context"

	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/filter"
)

// Store is the event retention interface consumed by the relay core.
type Store interface {
	// Insert adds an event. It returns false with a nil error when an event
	// with the same id is already present, and false with an error when the
	// event is rejected. A rejected event never mutates the store.
	Insert(ctx context.Context, evt *event.Event) (bool, error)

	// Query returns the events matching a filter set in replay order.
	Query(ctx context.Context, filters filter.Filters) ([]*event.Event, error)

	// Purge discards every stored event and returns how many were dropped.
	Purge(ctx context.Context) (int, error)

	// Count returns the number of retained events.
	Count(ctx context.Context) (int, error)

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}
