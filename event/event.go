// Package event defines the immutable, content-addressed event record that
// clients publish to the relay.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

const (
	// IDLength is the width of an event id in hex characters.
	IDLength = 64

	// PubKeyLength is the width of an author public key in hex characters.
	PubKeyLength = 64

	// SigLength is the width of a signature in hex characters.
	SigLength = 128
)

// Tag is a single tag entry. The first element is the tag name.
type Tag []string

// Name returns the tag name, or "" for an empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the second element of the tag, if present.
func (t Tag) Value() (string, bool) {
	if len(t) < 2 {
		return "", false
	}
	return t[1], true
}

// Tags is the ordered tag list carried by an event.
type Tags []Tag

// Event is a signed record published by a client. Once stored it is never mutated.
type Event struct {
	// ID is the sha256 of the canonical serialization, lowercase hex.
	ID string `json:"id"`

	// PubKey is the author's public key, lowercase hex.
	PubKey string `json:"pubkey"`

	// CreatedAt is the author-supplied unix timestamp in seconds.
	CreatedAt int64 `json:"created_at"`

	// Kind classifies the event.
	Kind int `json:"kind"`

	// Tags are ordered tag entries.
	Tags Tags `json:"tags"`

	// Content is the opaque event body.
	Content string `json:"content"`

	// Sig is the author's signature. The relay checks its shape only.
	Sig string `json:"sig"`
}

// ErrMalformed is wrapped by every structural validation failure.
var ErrMalformed = errors.New("malformed event")

// Validate reports whether the event is structurally well formed.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrMalformed)
	}
	if !isHex(e.ID, IDLength) {
		return fmt.Errorf("%w: id must be %d lowercase hex characters", ErrMalformed, IDLength)
	}
	if !isHex(e.PubKey, PubKeyLength) {
		return fmt.Errorf("%w: pubkey must be %d lowercase hex characters", ErrMalformed, PubKeyLength)
	}
	if !isHex(e.Sig, SigLength) {
		return fmt.Errorf("%w: sig must be %d lowercase hex characters", ErrMalformed, SigLength)
	}
	if e.CreatedAt < 0 {
		return fmt.Errorf("%w: created_at must not be negative", ErrMalformed)
	}
	if e.Kind < 0 {
		return fmt.Errorf("%w: kind must not be negative", ErrMalformed)
	}
	for i, tag := range e.Tags {
		if len(tag) == 0 {
			return fmt.Errorf("%w: tag %d is empty", ErrMalformed, i)
		}
	}
	return nil
}

// ComputeID returns the content id: sha256 over the canonical serialization
// [0,pubkey,created_at,kind,tags,content].
func (e *Event) ComputeID() string {
	sum := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(sum[:])
}

// Serialize returns the canonical array the id is computed over. Strings are
// written raw except for the escapes \" \\ \n \r \t \b \f, so HTML
// characters and line separators hash as the client sent them.
func (e *Event) Serialize() []byte {
	b := make([]byte, 0, 100+len(e.Content)+len(e.PubKey))
	b = append(b, "[0,"...)
	b = appendString(b, e.PubKey)
	b = append(b, ',')
	b = strconv.AppendInt(b, e.CreatedAt, 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(e.Kind), 10)
	b = append(b, ",["...)
	for i, tag := range e.Tags {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, v := range tag {
			if j > 0 {
				b = append(b, ',')
			}
			b = appendString(b, v)
		}
		b = append(b, ']')
	}
	b = append(b, "],"...)
	b = appendString(b, e.Content)
	return append(b, ']')
}

func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			b = append(b, c)
		}
	}
	return append(b, '"')
}

// Clone returns a deep copy so the receiver and the copy share no tag storage.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Tags != nil {
		cp.Tags = make(Tags, len(e.Tags))
		for i, tag := range e.Tags {
			cp.Tags[i] = append(Tag(nil), tag...)
		}
	}
	return &cp
}

// HasTag reports whether the event carries a tag named name whose value is in values.
func (e *Event) HasTag(name string, values []string) bool {
	for _, tag := range e.Tags {
		if tag.Name() != name {
			continue
		}
		v, ok := tag.Value()
		if !ok {
			continue
		}
		for _, want := range values {
			if v == want {
				return true
			}
		}
	}
	return false
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
