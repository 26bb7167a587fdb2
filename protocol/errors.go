package protocol

import "errors"

// Sentinel errors returned by Decode.
var (
	// ErrUndecodable is returned when a frame is not valid JSON.
	ErrUndecodable = errors.New("protocol: unable to parse message")

	// ErrUnknownVerb is returned when the frame tag is not an inbound verb.
	ErrUnknownVerb = errors.New("protocol: unable to handle message")

	// ErrInvalidFrame is returned when a frame does not have the shape its verb requires.
	ErrInvalidFrame = errors.New("protocol: invalid message")

	// ErrInvalidEvent is returned when an EVENT frame carries a malformed event.
	ErrInvalidEvent = errors.New("protocol: invalid event")
)

// EventError describes a rejected EVENT payload. ID is set when the payload
// carried a string id, so the rejection can be acknowledged with OK.
type EventError struct {
	ID  string
	Err error
}

func (e *EventError) Error() string {
	return e.Err.Error()
}

func (e *EventError) Unwrap() error {
	return e.Err
}
