// Package telemetry publishes device documents on the messaging session.
//
// Every document is copied and stamped with the current device_id before it
// is serialised, so callers can reuse their maps. Live readings are also
// fanned out to the local event stream whether or not the session is up.
// Snapshots can optionally be mirrored to a time-series store.
package telemetry
