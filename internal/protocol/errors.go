package protocol

import "errors"

var (
	// ErrMalformedFrame reports a frame that cannot be decoded. It is never
	// fatal for the connection that carried it.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrBodyTooLong reports a message whose body does not fit in a frame.
	ErrBodyTooLong = errors.New("message body too long")
)
