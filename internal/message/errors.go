package message

import "errors"

var (
	// ErrMalformed is returned when a payload is not valid JSON for its target type.
	ErrMalformed = errors.New("message: malformed payload")

	// ErrEncode is returned when a value cannot be serialised.
	ErrEncode = errors.New("message: encode failed")
)
