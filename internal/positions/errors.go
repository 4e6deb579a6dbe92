package positions

import "errors"

// Domain errors for the positions package.
var (
	// ErrNotFound is returned when a snapshot UID does not exist.
	ErrNotFound = errors.New("positions: snapshot not found")

	// ErrNoMotors is returned when saving a snapshot with no motors.
	ErrNoMotors = errors.New("positions: no motors to snapshot")
)
