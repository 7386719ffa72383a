package dispatch

import "errors"

var (
	// ErrMalformedPayload is returned when an inbound payload cannot be parsed.
	ErrMalformedPayload = errors.New("dispatch: malformed payload")

	// ErrTokenInvalid is returned when a reboot token fails verification.
	ErrTokenInvalid = errors.New("dispatch: invalid reboot token")
)
