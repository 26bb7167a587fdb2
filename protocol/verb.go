// Package protocol implements the relay wire format: JSON arrays tagged with
// a verb in the first position.
//
//	in   ["EVENT", <event>]              publish
//	in   ["REQ", <sub_id>, <filter>...]  open or replace a subscription
//	in   ["CLOSE", <sub_id>]             close a subscription
//	out  ["OK", <event_id>, <bool>, <message>]
//	out  ["EVENT", <sub_id>, <event>]
//	out  ["EOSE", <sub_id>]
//	out  ["NOTICE", "", <message>]
//
// Inbound frames are validated against JSON Schemas before any field is read.
package protocol

import "fmt"

// Verb is the frame tag.
type Verb string

// Verbs understood on the wire.
const (
	VerbEvent  Verb = "EVENT"
	VerbReq    Verb = "REQ"
	VerbClose  Verb = "CLOSE"
	VerbOK     Verb = "OK"
	VerbEOSE   Verb = "EOSE"
	VerbNotice Verb = "NOTICE"
)

// Inbound reports whether clients may send the verb.
func (v Verb) Inbound() bool {
	switch v {
	case VerbEvent, VerbReq, VerbClose:
		return true
	case VerbOK, VerbEOSE, VerbNotice:
		return false
	default:
		return false
	}
}

// ParseVerb maps a frame tag to an inbound verb.
func ParseVerb(s string) (Verb, error) {
	v := Verb(s)
	if !v.Inbound() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVerb, s)
	}
	return v, nil
}
