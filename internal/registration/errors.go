package registration

import "errors"

var (
	// ErrMalformedResponse is returned when the backend answer cannot be used.
	ErrMalformedResponse = errors.New("registration: malformed backend response")

	// ErrAttributesFrozen is returned by AddAttribute after the first attempt.
	ErrAttributesFrozen = errors.New("registration: attributes are fixed after the first registration attempt")

	// ErrEmptyDeviceID is returned when an empty identity is assigned.
	ErrEmptyDeviceID = errors.New("registration: empty device id")
)
