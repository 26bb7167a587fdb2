package relay

import "errors"

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("relay: store is required")

	// ErrInvalidEvent is returned when an event is structurally malformed.
	ErrInvalidEvent = errors.New("relay: invalid event")

	// ErrEventIDMismatch is returned when id verification is enabled and an
	// event's id is not the hash of its content.
	ErrEventIDMismatch = errors.New("relay: event id does not match content")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("relay: store is closed")

	// ErrRelayClosed is returned when work is submitted after Stop.
	ErrRelayClosed = errors.New("relay: relay is stopped")
)
