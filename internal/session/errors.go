package session

import "errors"

// ErrNotRegistered is returned by EnsureConnected while the device has no
// valid registration or device id.
var ErrNotRegistered = errors.New("session: device not registered")
