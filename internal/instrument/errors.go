package instrument

import "errors"

// Domain errors for the instrument package.
var (
	// ErrDuplicateName is returned when registering two devices under the
	// same name.
	ErrDuplicateName = errors.New("instrument: duplicate device name")

	// ErrNotFound is returned when looking up a device that was never
	// registered.
	ErrNotFound = errors.New("instrument: device not found")
)
