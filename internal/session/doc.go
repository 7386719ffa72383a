// Package session owns the device's publish/subscribe connection.
//
// EnsureConnected is called by the lifecycle loop every tick while the
// device is registered. When the transport is down it performs the full
// connect sequence: optional credential fetch, connect with the device's
// deterministic client id and last will, subscribe to the per-device update
// and action topics, then publish the retained presence record.
//
// The transport delivers inbound messages on its own goroutines. The only
// thing the delivery callback does is enqueue into the session inbox; the
// loop drains it with Pump, so command handling always runs on the loop
// goroutine.
package session
