// Package id defines TypeID-based identifiers for relay-side entities.
//
// Client-chosen identifiers (event ids, subscription ids) are plain strings
// and never pass through this package. Identifiers the relay mints itself,
// such as connection ids, are K-sortable TypeIDs in the format
// "prefix_suffix", so log lines for one connection sort by connect time.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// PrefixConn marks a client connection id.
const PrefixConn Prefix = "conn"

// ID wraps a TypeID. The zero value is the nil ID. IDs log as their string
// form through encoding.TextMarshaler.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// NewConnID generates a new connection ID.
func NewConnID() ID { return New(PrefixConn) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the zero ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}
