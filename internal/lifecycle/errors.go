package lifecycle

import "errors"

// ErrRestartRequested is returned by Run when the device should be restarted
// by its supervisor.
var ErrRestartRequested = errors.New("lifecycle: restart requested")
