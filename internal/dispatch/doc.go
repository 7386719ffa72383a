// Package dispatch decodes inbound commands and runs them on the loop.
//
// Two topic kinds are recognised by suffix against the current device id:
//
//   - <base>/update/<id>: a configuration document. It replaces the cached
//     configuration, is persisted verbatim, and may carry a new device id.
//   - <base>/action/<id>: an action for the application. The registered
//     callback runs synchronously, then an acknowledgement is published on
//     <base>/ackAction whatever the callback did. A reboot directive then
//     tears the session down and hands over to the restart collaborator.
//
// Malformed payloads are logged and dropped without an acknowledgement.
package dispatch
