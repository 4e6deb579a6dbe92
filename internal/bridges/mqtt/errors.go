package mqtt

import "errors"

// Domain errors for the mqtt bridge.
var (
	// ErrReadOnly is returned when writing to a signal configured without
	// a setpoint topic.
	ErrReadOnly = errors.New("bridges/mqtt: signal is read-only")

	// ErrNoReading is returned when reading a signal before any readback
	// has been delivered.
	ErrNoReading = errors.New("bridges/mqtt: no reading received yet")

	// ErrInvalidPayload is returned when a readback payload cannot be
	// decoded.
	ErrInvalidPayload = errors.New("bridges/mqtt: invalid readback payload")

	// ErrNoInitialValue is returned when writing nil to a signal that has
	// no configured initial value.
	ErrNoInitialValue = errors.New("bridges/mqtt: no initial value configured")
)
