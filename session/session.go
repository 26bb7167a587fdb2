// Package session runs the per-connection protocol state machine: it decodes
// inbound frames, dispatches them to the relay core and owns cleanup when the
// connection goes away.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/filter"
	"github.com/ephemeral/relay/observability"
	"github.com/ephemeral/relay/protocol"
	"github.com/ephemeral/relay/subscription"
)

// ErrClosed is returned by Send once the session has been closed.
var ErrClosed = errors.New("session: closed")

// Core is the shared relay state a session dispatches to.
type Core interface {
	Connect(ctx context.Context, connID string)
	Publish(ctx context.Context, from subscription.Sink, evt *event.Event) error
	Subscribe(ctx context.Context, sink subscription.Sink, subID string, filters filter.Filters) error
	Unsubscribe(ctx context.Context, connID, subID string) bool
	Disconnect(ctx context.Context, connID string) int
}

// Transport is the outbound half of a client connection.
type Transport interface {
	// Send queues one frame without blocking.
	Send(msg protocol.Message) error
	Close() error
}

// State is the lifecycle state of a session.
type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var defaultDecoder = sync.OnceValue(func() *protocol.Decoder {
	return protocol.NewDecoder(nil)
})

// Session binds one transport connection to the relay core.
type Session struct {
	connID    string
	core      Core
	transport Transport
	decoder   *protocol.Decoder
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu    sync.RWMutex
	state State
	once  sync.Once
}

// compile-time interface check.
var _ subscription.Sink = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithDecoder shares a decoder between sessions.
func WithDecoder(d *protocol.Decoder) Option {
	return func(s *Session) { s.decoder = d }
}

// WithMetrics counts the notices a session sends.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New opens a session for connID and registers it with core.
func New(ctx context.Context, connID string, core Core, transport Transport, opts ...Option) *Session {
	s := &Session{
		connID:    connID,
		core:      core,
		transport: transport,
		logger:    slog.Default(),
		state:     StateOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = defaultDecoder()
	}
	s.logger = s.logger.With("conn_id", connID)

	core.Connect(ctx, connID)
	return s
}

// ConnID implements subscription.Sink.
func (s *Session) ConnID() string {
	return s.connID
}

// Send implements subscription.Sink.
func (s *Session) Send(msg protocol.Message) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	return s.transport.Send(msg)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handle processes one inbound frame. Client mistakes are answered with
// NOTICE or OK frames and leave the session open; the returned error is
// non-nil only when the connection can no longer be written to.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() == StateClosed {
		return nil
	}

	req, err := s.decoder.Decode(raw)
	if err != nil {
		return s.reject(ctx, err)
	}

	switch r := req.(type) {
	case *protocol.EventRequest:
		return s.core.Publish(ctx, s, r.Event)
	case *protocol.ReqRequest:
		return s.core.Subscribe(ctx, s, r.SubID, r.Filters)
	case *protocol.CloseRequest:
		s.core.Unsubscribe(ctx, s.connID, r.SubID)
		return nil
	default:
		return s.notice(ctx, fmt.Sprintf("unable to handle message %q", req.Verb()))
	}
}

// Close removes every subscription the connection owns and closes the
// transport. Only the first call has any effect.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		removed := s.core.Disconnect(ctx, s.connID)
		s.logger.DebugContext(ctx, "session closed", "subscriptions", removed)
		err = s.transport.Close()
	})
	return err
}

// reject answers a frame that could not be decoded.
func (s *Session) reject(ctx context.Context, err error) error {
	var evtErr *protocol.EventError
	if errors.As(err, &evtErr) && evtErr.ID != "" {
		s.logger.DebugContext(ctx, "event rejected", "event_id", evtErr.ID, "error", err)
		return s.transport.Send(protocol.OK{
			EventID: evtErr.ID,
			Message: protocol.PrefixInvalid + strings.TrimPrefix(noticeText(evtErr.Err), "invalid event: "),
		})
	}

	s.logger.DebugContext(ctx, "frame rejected", "error", err)
	return s.notice(ctx, noticeText(err))
}

func (s *Session) notice(_ context.Context, msg string) error {
	if s.metrics != nil {
		s.metrics.NoticesTotal.Inc()
	}
	return s.transport.Send(protocol.Notice{Message: msg})
}

// noticeText strips package prefixes from an error so it reads well on the wire.
func noticeText(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "protocol: ")
	return msg
}
