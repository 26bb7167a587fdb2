// Package memory provides the in-memory Store: the relay's only event retention.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ephemeral/relay"
	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/filter"
	relaystore "github.com/ephemeral/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store keeps events in a slice sorted newest first (created_at desc, id desc)
// plus an id index for duplicate detection.
type Store struct {
	mu sync.RWMutex

	byID    map[string]*event.Event
	ordered []*event.Event

	maxLimit int
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxLimit caps how many events a single filter can replay. Zero means
// no cap beyond the filter's own limit.
func WithMaxLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		byID: make(map[string]*event.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed and drops its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.byID = make(map[string]*event.Event)
	s.ordered = nil
	return nil
}

// ──────────────────────────────────────────────────
// store.Store
// ──────────────────────────────────────────────────

// Insert validates and stores a copy of evt. A duplicate id is a no-op.
func (s *Store) Insert(_ context.Context, evt *event.Event) (bool, error) {
	if err := evt.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", relay.ErrInvalidEvent, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, relay.ErrStoreClosed
	}
	if _, ok := s.byID[evt.ID]; ok {
		return false, nil
	}

	stored := evt.Clone()
	idx := sort.Search(len(s.ordered), func(i int) bool {
		return before(stored, s.ordered[i])
	})
	s.ordered = append(s.ordered, nil)
	copy(s.ordered[idx+1:], s.ordered[idx:])
	s.ordered[idx] = stored
	s.byID[stored.ID] = stored
	return true, nil
}

// Query scans once per filter in replay order, takes up to that filter's
// limit, and drops events already emitted for an earlier filter.
func (s *Store) Query(_ context.Context, filters filter.Filters) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, relay.ErrStoreClosed
	}

	var result []*event.Event
	seen := make(map[string]struct{})
	for _, f := range filters {
		limit := s.effectiveLimit(f)
		if limit == 0 {
			continue
		}
		taken := 0
		for _, evt := range s.ordered {
			if limit > 0 && taken >= limit {
				break
			}
			if !f.Matches(evt) {
				continue
			}
			taken++
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}
			result = append(result, evt.Clone())
		}
	}
	return result, nil
}

// Purge drops every event.
func (s *Store) Purge(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, relay.ErrStoreClosed
	}
	n := len(s.ordered)
	s.byID = make(map[string]*event.Event)
	s.ordered = nil
	return n, nil
}

// Count returns the number of retained events.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, relay.ErrStoreClosed
	}
	return len(s.ordered), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// effectiveLimit returns -1 for unbounded.
func (s *Store) effectiveLimit(f filter.Filter) int {
	limit := -1
	if f.Limit != nil {
		limit = *f.Limit
	}
	if s.maxLimit > 0 && (limit < 0 || limit > s.maxLimit) {
		limit = s.maxLimit
	}
	return limit
}

// before reports whether a sorts ahead of b in replay order.
func before(a, b *event.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}
