package network

import "errors"

var (
	// ErrAssociationFailed is returned when no candidate network could be joined.
	ErrAssociationFailed = errors.New("network: association failed")

	// ErrNoCredentials is returned by associators that need at least one candidate.
	ErrNoCredentials = errors.New("network: no credentials configured")
)
