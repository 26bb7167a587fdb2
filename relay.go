package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/filter"
	"github.com/ephemeral/relay/observability"
	"github.com/ephemeral/relay/protocol"
	"github.com/ephemeral/relay/session"
	"github.com/ephemeral/relay/store"
	"github.com/ephemeral/relay/subscription"
)

// compile-time interface check.
var _ session.Core = (*Relay)(nil)

// Stats is a point-in-time view of the relay's shared state.
type Stats struct {
	Events        int `json:"events"`
	Subscriptions int `json:"subscriptions"`
	Connections   int `json:"connections"`
}

// Start begins the purge schedule. Calls after the first, or after Stop,
// are no-ops.
func (r *Relay) Start(ctx context.Context) {
	if r.config.PurgeInterval <= 0 {
		r.logger.InfoContext(ctx, "purge schedule disabled")
		return
	}

	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	stop := make(chan struct{})
	r.stop = stop
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.purgeLoop(ctx, stop)
	}()
}

// Stop ends the purge schedule and rejects further work. A purge already
// running completes first.
func (r *Relay) Stop(_ context.Context) {
	r.mu.Lock()
	r.stopped = true
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// purgeLoop flushes the store every PurgeInterval until stopped.
func (r *Relay) purgeLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(r.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.Purge(ctx); err != nil {
				r.logger.ErrorContext(ctx, "purge failed", "error", err)
			}
		}
	}
}

// Connect records a newly opened connection.
func (r *Relay) Connect(ctx context.Context, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections++
	if r.metrics != nil {
		r.metrics.Connections.Set(float64(r.connections))
	}
	r.logger.InfoContext(ctx, "received connection",
		"pid", r.instanceID, "conn_id", connID, "conn_count", r.connections)
}

// Disconnect removes every subscription owned by connID. The transport calls
// it exactly once per connection.
func (r *Relay) Disconnect(ctx context.Context, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.registry.RemoveAll(connID)
	if r.connections > 0 {
		r.connections--
	}
	if r.metrics != nil {
		r.metrics.Connections.Set(float64(r.connections))
		r.metrics.Subscriptions.Set(float64(r.registry.Len()))
	}
	r.logger.InfoContext(ctx, "closing connection",
		"pid", r.instanceID, "conn_id", connID, "conn_count", r.connections, "subscriptions", removed)
	return removed
}

// Publish stores evt, acknowledges it to the publishing connection and
// routes it to every matching live subscription, the publisher's own
// included. The three steps run as one unit. A rejected event is
// acknowledged with a failure and never reaches the store.
func (r *Relay) Publish(ctx context.Context, from subscription.Sink, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := r.tracer.StartPublishSpan(ctx, from.ConnID(), evt.ID, evt.Kind)
	delivered := 0
	var spanErr error
	defer func() { r.tracer.EndSpan(span, delivered, spanErr) }()

	if r.stopped {
		spanErr = ErrRelayClosed
		r.recordPublish(observability.ResultRejected)
		return r.ack(ctx, from, protocol.OK{
			EventID: evt.ID,
			Message: protocol.PrefixError + "relay is shutting down",
		})
	}

	if r.config.VerifyIDs && evt.ComputeID() != evt.ID {
		spanErr = ErrEventIDMismatch
		r.recordPublish(observability.ResultRejected)
		return r.ack(ctx, from, protocol.OK{
			EventID: evt.ID,
			Message: protocol.PrefixInvalid + "event id does not match content",
		})
	}

	inserted, err := r.store.Insert(ctx, evt)
	if err != nil {
		spanErr = err
		r.recordPublish(observability.ResultRejected)
		msg := protocol.PrefixError + "could not store event"
		if errors.Is(err, ErrInvalidEvent) {
			msg = protocol.PrefixInvalid + strings.TrimPrefix(err.Error(), ErrInvalidEvent.Error()+": ")
			r.logger.DebugContext(ctx, "event rejected",
				"conn_id", from.ConnID(), "event_id", evt.ID, "error", err)
		} else {
			r.logger.ErrorContext(ctx, "insert event failed",
				"conn_id", from.ConnID(), "event_id", evt.ID, "error", err)
		}
		return r.ack(ctx, from, protocol.OK{EventID: evt.ID, Message: msg})
	}

	if !inserted {
		r.recordPublish(observability.ResultDuplicate)
		return r.ack(ctx, from, protocol.OK{
			EventID:  evt.ID,
			Accepted: true,
			Message:  protocol.PrefixDuplicate + "already have this event",
		})
	}

	r.recordPublish(observability.ResultAccepted)
	if r.metrics != nil {
		if n, countErr := r.store.Count(ctx); countErr == nil {
			r.metrics.StoredEvents.Set(float64(n))
		}
	}
	r.logger.DebugContext(ctx, "event stored",
		"conn_id", from.ConnID(), "event_id", evt.ID, "kind", evt.Kind)

	ackErr := r.ack(ctx, from, protocol.OK{EventID: evt.ID, Accepted: true})
	delivered = r.broadcastLocked(ctx, evt)
	return ackErr
}

// Broadcast routes evt to every live subscription whose filters match it
// and returns how many EVENT frames were handed off. A connection that
// fails to accept its frame does not affect the others.
func (r *Relay) Broadcast(ctx context.Context, evt *event.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(ctx, evt)
}

func (r *Relay) broadcastLocked(ctx context.Context, evt *event.Event) int {
	start := time.Now()
	delivered := 0

	r.registry.ForEach(func(sub *subscription.Subscription) bool {
		if !sub.Filters.Match(evt) {
			return true
		}
		if err := sub.Sink.Send(protocol.EventMessage{SubID: sub.SubID, Event: evt}); err != nil {
			if r.metrics != nil {
				r.metrics.DeliveryFailures.Inc()
			}
			r.logger.WarnContext(ctx, "broadcast send failed",
				"conn_id", sub.ConnID, "sub_id", sub.SubID, "event_id", evt.ID, "error", err)
			return true
		}
		delivered++
		return true
	})

	if r.metrics != nil {
		r.metrics.RecordDelivery(observability.SourceLive, delivered)
		r.metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
	}
	return delivered
}

// Subscribe registers (or replaces) a subscription, replays matching stored
// events to it and marks the end of the replay with EOSE. The subscription
// then stays live.
func (r *Relay) Subscribe(ctx context.Context, sink subscription.Sink, subID string, filters filter.Filters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := r.tracer.StartSubscribeSpan(ctx, sink.ConnID(), subID, len(filters))
	sent := 0
	var spanErr error
	defer func() { r.tracer.EndSpan(span, sent, spanErr) }()

	if r.stopped {
		spanErr = ErrRelayClosed
		return r.notice(ctx, sink, protocol.PrefixError+"relay is shutting down")
	}

	replaced := r.registry.Add(subscription.New(sink, subID, filters))
	if r.metrics != nil {
		r.metrics.Subscriptions.Set(float64(r.registry.Len()))
	}
	r.logger.DebugContext(ctx, "subscription registered",
		"conn_id", sink.ConnID(), "sub_id", subID, "filters", len(filters), "replaced", replaced)

	events, err := r.store.Query(ctx, filters)
	if err != nil {
		spanErr = err
		r.logger.ErrorContext(ctx, "query stored events failed",
			"conn_id", sink.ConnID(), "sub_id", subID, "error", err)
		if noticeErr := r.notice(ctx, sink, protocol.PrefixError+"could not query stored events"); noticeErr != nil {
			return noticeErr
		}
	}

	for _, evt := range events {
		if sendErr := sink.Send(protocol.EventMessage{SubID: subID, Event: evt}); sendErr != nil {
			spanErr = sendErr
			return fmt.Errorf("replay to %s/%s: %w", sink.ConnID(), subID, sendErr)
		}
		sent++
	}
	if r.metrics != nil {
		r.metrics.RecordDelivery(observability.SourceReplay, sent)
	}

	if sendErr := sink.Send(protocol.EOSE{SubID: subID}); sendErr != nil {
		spanErr = sendErr
		return fmt.Errorf("eose to %s/%s: %w", sink.ConnID(), subID, sendErr)
	}
	return nil
}

// Unsubscribe removes one subscription. Unknown ids are ignored.
func (r *Relay) Unsubscribe(ctx context.Context, connID, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.registry.Remove(connID, subID)
	if r.metrics != nil {
		r.metrics.Subscriptions.Set(float64(r.registry.Len()))
	}
	r.logger.DebugContext(ctx, "subscription closed",
		"conn_id", connID, "sub_id", subID, "removed", removed)
	return removed
}

// Purge discards every stored event. Live subscriptions are untouched.
func (r *Relay) Purge(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := r.tracer.StartPurgeSpan(ctx)
	n, err := r.store.Purge(ctx)
	r.tracer.EndSpan(span, 0, err)
	if err != nil {
		return 0, fmt.Errorf("relay: purge: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordPurge(n)
	}
	r.logger.InfoContext(ctx, "store purged", "events", n)
	return n, nil
}

// Stats reports the current size of the store, the registry and the connection set.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	r.mu.Lock()
	conns := r.connections
	r.mu.Unlock()

	return Stats{
		Events:        n,
		Subscriptions: r.registry.Len(),
		Connections:   conns,
	}, nil
}

// Ping checks that the store is usable.
func (r *Relay) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// Registry returns the subscription registry.
func (r *Relay) Registry() *subscription.Registry {
	return r.registry
}

// InstanceID returns the random id this process logs as its pid.
func (r *Relay) InstanceID() string {
	return r.instanceID
}

func (r *Relay) ack(ctx context.Context, to subscription.Sink, ok protocol.OK) error {
	if err := to.Send(ok); err != nil {
		r.logger.WarnContext(ctx, "ack send failed",
			"conn_id", to.ConnID(), "event_id", ok.EventID, "error", err)
		return fmt.Errorf("ack to %s: %w", to.ConnID(), err)
	}
	return nil
}

func (r *Relay) notice(ctx context.Context, to subscription.Sink, msg string) error {
	if r.metrics != nil {
		r.metrics.NoticesTotal.Inc()
	}
	if err := to.Send(protocol.Notice{Message: msg}); err != nil {
		r.logger.WarnContext(ctx, "notice send failed", "conn_id", to.ConnID(), "error", err)
		return fmt.Errorf("notice to %s: %w", to.ConnID(), err)
	}
	return nil
}

func (r *Relay) recordPublish(result string) {
	if r.metrics != nil {
		r.metrics.RecordPublish(result)
	}
}
