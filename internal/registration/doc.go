// Package registration obtains and keeps the backend-assigned device identity.
//
// The Manager owns the Device Identity (device id, MAC) and the Registration
// Record (retry count, last attempt, registered flag). The lifecycle loop asks
// Due before every Attempt; the fixed retry interval is always honoured and
// exponential backoff can be layered on top of it.
//
// The manager also fetches backend-issued broker credentials and the
// backend's list of known wireless networks.
package registration
