package signal

import (
	"errors"
	"fmt"
)

// Domain errors for the signal package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, signal.ErrWriteFailed) {
//	    // at least one dependency write failed
//	}
var (
	// ErrNoDependencies is returned when a derived signal is constructed
	// with an empty dependency set.
	ErrNoDependencies = errors.New("signal: derived signal requires at least one dependency")

	// ErrUnknownDependency is returned when a forward transform produces a
	// target for a dependency name that was never declared.
	ErrUnknownDependency = errors.New("signal: unknown dependency")

	// ErrConnectTimeout is returned when one or more dependencies fail to
	// connect within the allotted time.
	ErrConnectTimeout = errors.New("signal: connect timed out")

	// ErrNotConnected is returned when an operation requires an
	// established connection.
	ErrNotConnected = errors.New("signal: not connected")

	// ErrWriteFailed is the class of all dependency write failures.
	// Concrete failures are *WriteError values that match this sentinel.
	ErrWriteFailed = errors.New("signal: write failed")

	// ErrNoInverse is returned when the default inverse transform cannot
	// determine a derived value from non-numeric dependency readings.
	ErrNoInverse = errors.New("signal: cannot derive value, provide an explicit inverse transform")

	// ErrConversion is returned when a value cannot be converted through
	// a control point's declared datatype.
	ErrConversion = errors.New("signal: value conversion failed")
)

// WriteError reports a failed write to a single dependency of a derived
// signal. It matches ErrWriteFailed under errors.Is, and Unwrap exposes
// the dependency's own error.
type WriteError struct {
	// Dependency is the transform-argument name of the failing dependency.
	Dependency string

	// Err is the error returned by the dependency's Write.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("signal: write to dependency %q failed: %v", e.Dependency, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports a match for the ErrWriteFailed sentinel so callers can test
// the failure class without knowing which dependency failed.
func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }
