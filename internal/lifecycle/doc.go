// Package lifecycle drives the connectivity core from a single goroutine.
//
// Each tick runs, in order:
//
//  1. network association poll
//  2. registration attempt when due, with immediate session establishment on success
//  3. session ensure-connected
//  4. inbound command pump
//  5. periodic update timer
//  6. pending restart requests
//
// Steps 2-5 only run while the link is associated. Losing the link tears the
// messaging session down. Restart requests are honoured in every state.
package lifecycle
