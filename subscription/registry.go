package subscription

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is the process-wide set of live subscriptions, keyed by
// (connection, subscription id). Reads go through a copy-on-write snapshot,
// so iteration never observes a half-applied mutation.
type Registry struct {
	mu     sync.Mutex
	byKey  map[Key]*Subscription
	byConn map[string]map[string]struct{}

	snapshot atomic.Pointer[[]*Subscription]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		byKey:  make(map[Key]*Subscription),
		byConn: make(map[string]map[string]struct{}),
	}
	r.snapshot.Store(&[]*Subscription{})
	return r
}

// Add registers sub, replacing any subscription with the same key. It
// reports whether an existing subscription was replaced.
func (r *Registry) Add(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, replaced := r.byKey[sub.Key]
	if replaced {
		old.deactivate()
	}
	r.byKey[sub.Key] = sub

	owned, ok := r.byConn[sub.ConnID]
	if !ok {
		owned = make(map[string]struct{})
		r.byConn[sub.ConnID] = owned
	}
	owned[sub.SubID] = struct{}{}

	r.publishLocked()
	return replaced
}

// Remove deletes one subscription. Removing an absent key is a no-op; the
// result reports whether anything was removed.
func (r *Registry) Remove(connID, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{ConnID: connID, SubID: subID}
	sub, ok := r.byKey[key]
	if !ok {
		return false
	}
	sub.deactivate()
	delete(r.byKey, key)

	if owned, ok := r.byConn[connID]; ok {
		delete(owned, subID)
		if len(owned) == 0 {
			delete(r.byConn, connID)
		}
	}

	r.publishLocked()
	return true
}

// RemoveAll deletes every subscription owned by connID and returns how many there were.
func (r *Registry) RemoveAll(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.byConn[connID]
	if !ok {
		return 0
	}
	for subID := range owned {
		key := Key{ConnID: connID, SubID: subID}
		if sub, found := r.byKey[key]; found {
			sub.deactivate()
			delete(r.byKey, key)
		}
	}
	delete(r.byConn, connID)

	r.publishLocked()
	return len(owned)
}

// ForEach visits the subscriptions live at the time of the call, stopping
// early when visit returns false. Subscriptions removed while the pass is in
// progress are skipped. visit may call Add and Remove.
func (r *Registry) ForEach(visit func(*Subscription) bool) {
	for _, sub := range *r.snapshot.Load() {
		if !sub.Active() {
			continue
		}
		if !visit(sub) {
			return
		}
	}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

// ConnLen returns the number of subscriptions owned by connID.
func (r *Registry) ConnLen(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn[connID])
}

// publishLocked rebuilds the read snapshot. Must be called with mu held.
func (r *Registry) publishLocked() {
	next := make([]*Subscription, 0, len(r.byKey))
	for _, sub := range r.byKey {
		next = append(next, sub)
	}
	sort.Slice(next, func(i, j int) bool {
		if next[i].ConnID != next[j].ConnID {
			return next[i].ConnID < next[j].ConnID
		}
		return next[i].SubID < next[j].SubID
	})
	r.snapshot.Store(&next)
}
