package robot

import "errors"

var (
	// ErrConfiguration marks an invalid configuration. The robot never enables with one.
	ErrConfiguration = errors.New("configuration error")

	// ErrHardwareUnavailable marks a device handle that could not be built or configured at init.
	ErrHardwareUnavailable = errors.New("hardware unavailable")

	// ErrTransientRead marks a single failed sensor or input read. The cycle
	// carries on with the last good value for that signal.
	ErrTransientRead = errors.New("transient read fault")

	ErrNotInitialized = errors.New("robot not initialized")
)
