// Package eventtest builds well-formed events for tests.
package eventtest

import (
	"strings"

	"github.com/ephemeral/relay/event"
)

// PubKey returns a valid author key made of one repeated hex digit.
func PubKey(c byte) string {
	return strings.Repeat(string(c), event.PubKeyLength)
}

// New returns an event with a correct content id and a placeholder signature.
func New(author byte, kind int, createdAt int64, content string, tags ...event.Tag) *event.Event {
	evt := &event.Event{
		PubKey:    PubKey(author),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      event.Tags(tags),
		Content:   content,
		Sig:       strings.Repeat("0", event.SigLength),
	}
	if evt.Tags == nil {
		evt.Tags = event.Tags{}
	}
	evt.ID = evt.ComputeID()
	return evt
}

// WithID returns a copy of evt carrying id, for tests that need fixed ids.
func WithID(evt *event.Event, id string) *event.Event {
	cp := evt.Clone()
	cp.ID = id
	return cp
}

// ID returns a valid event id made of one repeated hex digit.
func ID(c byte) string {
	return strings.Repeat(string(c), event.IDLength)
}
