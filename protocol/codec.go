package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/filter"
)

// OK message prefixes, machine-readable by clients.
const (
	PrefixInvalid   = "invalid: "
	PrefixDuplicate = "duplicate: "
	PrefixError     = "error: "
)

// ──────────────────────────────────────────────────
// Inbound
// ──────────────────────────────────────────────────

// Request is a decoded inbound frame.
type Request interface {
	Verb() Verb
}

// EventRequest is ["EVENT", event].
type EventRequest struct {
	Event *event.Event
}

// Verb implements Request.
func (*EventRequest) Verb() Verb { return VerbEvent }

// ReqRequest is ["REQ", subID, filter...].
type ReqRequest struct {
	SubID   string
	Filters filter.Filters
}

// Verb implements Request.
func (*ReqRequest) Verb() Verb { return VerbReq }

// CloseRequest is ["CLOSE", subID].
type CloseRequest struct {
	SubID string
}

// Verb implements Request.
func (*CloseRequest) Verb() Verb { return VerbClose }

// Decoder turns raw frames into requests. It is safe for concurrent use.
type Decoder struct {
	validator *Validator
}

// NewDecoder creates a decoder backed by the given validator.
// A nil validator compiles the embedded schemas.
func NewDecoder(v *Validator) *Decoder {
	if v == nil {
		v = MustValidator()
	}
	return &Decoder{validator: v}
}

// Decode parses and validates one inbound frame. Errors wrap ErrUndecodable,
// ErrUnknownVerb, ErrInvalidFrame or, for EVENT payloads, *EventError.
func (d *Decoder) Decode(raw []byte) (Request, error) {
	doc, err := unmarshalDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	if err := d.validator.validate(schemaEnvelope, doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrame, err.Error())
	}
	items := doc.([]any)
	verb, err := ParseVerb(items[0].(string))
	if err != nil {
		return nil, err
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	switch verb {
	case VerbEvent:
		return d.decodeEvent(doc, items, parts)
	case VerbReq:
		return d.decodeReq(doc, parts)
	case VerbClose:
		return d.decodeClose(doc, parts)
	case VerbOK, VerbEOSE, VerbNotice:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
}

func (d *Decoder) decodeEvent(doc any, items []any, parts []json.RawMessage) (Request, error) {
	if err := d.validator.validate(schemaEvent, doc); err != nil {
		return nil, &EventError{ID: rawEventID(items), Err: fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())}
	}

	var evt event.Event
	if err := json.Unmarshal(parts[1], &evt); err != nil {
		return nil, &EventError{ID: rawEventID(items), Err: fmt.Errorf("%w: %w", ErrInvalidEvent, err)}
	}
	if err := evt.Validate(); err != nil {
		return nil, &EventError{ID: evt.ID, Err: fmt.Errorf("%w: %w", ErrInvalidEvent, err)}
	}
	return &EventRequest{Event: &evt}, nil
}

// rawEventID returns the id string of an undecoded EVENT frame, if it has one.
func rawEventID(items []any) string {
	if len(items) < 2 {
		return ""
	}
	obj, ok := items[1].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["id"].(string)
	return id
}

func (d *Decoder) decodeReq(doc any, parts []json.RawMessage) (Request, error) {
	if err := d.validator.validate(schemaReq, doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrame, err.Error())
	}

	var subID string
	if err := json.Unmarshal(parts[1], &subID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	filters := make(filter.Filters, 0, len(parts)-2)
	for _, part := range parts[2:] {
		var f filter.Filter
		if err := json.Unmarshal(part, &f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
		filters = append(filters, f)
	}
	return &ReqRequest{SubID: subID, Filters: filters}, nil
}

func (d *Decoder) decodeClose(doc any, parts []json.RawMessage) (Request, error) {
	if err := d.validator.validate(schemaClose, doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrame, err.Error())
	}

	var subID string
	if err := json.Unmarshal(parts[1], &subID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	return &CloseRequest{SubID: subID}, nil
}

func unmarshalDoc(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty frame")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after frame")
	}
	return doc, nil
}

// ──────────────────────────────────────────────────
// Outbound
// ──────────────────────────────────────────────────

// Message is an outbound frame.
type Message interface {
	json.Marshaler
	Verb() Verb
}

// OK acknowledges a published event.
type OK struct {
	EventID  string
	Accepted bool
	Message  string
}

// Verb implements Message.
func (OK) Verb() Verb { return VerbOK }

// MarshalJSON implements json.Marshaler.
func (m OK) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{VerbOK, m.EventID, m.Accepted, m.Message})
}

// EventMessage delivers a stored or live event to a subscription.
type EventMessage struct {
	SubID string
	Event *event.Event
}

// Verb implements Message.
func (EventMessage) Verb() Verb { return VerbEvent }

// MarshalJSON implements json.Marshaler.
func (m EventMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{VerbEvent, m.SubID, m.Event})
}

// EOSE marks the end of a subscription's stored-event replay.
type EOSE struct {
	SubID string
}

// Verb implements Message.
func (EOSE) Verb() Verb { return VerbEOSE }

// MarshalJSON implements json.Marshaler.
func (m EOSE) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{VerbEOSE, m.SubID})
}

// Notice carries a human-readable error or informational message.
type Notice struct {
	Message string
}

// Verb implements Message.
func (Notice) Verb() Verb { return VerbNotice }

// MarshalJSON implements json.Marshaler.
func (m Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{VerbNotice, "", m.Message})
}

// Encode renders an outbound frame.
func Encode(m Message) ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Verb(), err)
	}
	return raw, nil
}
