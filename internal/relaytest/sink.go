// Package relaytest provides in-memory connection doubles for tests.
package relaytest

import (
	"errors"
	"sync"

	"github.com/ephemeral/relay/protocol"
)

// ErrSinkFailed is returned by a Sink configured to fail.
var ErrSinkFailed = errors.New("relaytest: send failed")

// Sink records every frame sent to it. It satisfies subscription.Sink and
// session.Transport.
type Sink struct {
	id string

	mu     sync.Mutex
	frames []protocol.Message
	fail   bool
	closed int
}

// NewSink creates a recording sink for connID.
func NewSink(connID string) *Sink {
	return &Sink{id: connID}
}

// ConnID returns the connection id.
func (s *Sink) ConnID() string { return s.id }

// Send records msg, or fails when FailSends was called.
func (s *Sink) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrSinkFailed
	}
	s.frames = append(s.frames, msg)
	return nil
}

// Close counts close calls.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// FailSends makes every later Send return ErrSinkFailed.
func (s *Sink) FailSends() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = true
}

// Frames returns the recorded frames.
func (s *Sink) Frames() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.frames...)
}

// Reset drops the recorded frames.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

// Closed returns how many times Close was called.
func (s *Sink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Events returns the recorded EVENT frames.
func (s *Sink) Events() []protocol.EventMessage {
	var out []protocol.EventMessage
	for _, f := range s.Frames() {
		if m, ok := f.(protocol.EventMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

// Verbs returns the verb of each recorded frame, in order.
func (s *Sink) Verbs() []protocol.Verb {
	frames := s.Frames()
	out := make([]protocol.Verb, len(frames))
	for i, f := range frames {
		out[i] = f.Verb()
	}
	return out
}
