package signal

import (
	"context"
	"time"
)

// Callback receives push updates from a control point. It is given the
// full reading and the bare value (already converted through the control
// point's datatype).
type Callback func(reading Reading, value any)

// ControlPoint is the contract every control point satisfies: soft
// signals, transport-backed signals, and derived signals alike. A derived
// signal's dependencies are ControlPoints, and the derived signal is one
// itself, so composition nests.
type ControlPoint interface {
	// Connect establishes readiness. It must be called before Subscribe
	// or Write; implementations return ErrConnectTimeout (or a wrapped
	// transport error) if readiness cannot be established within timeout.
	Connect(ctx context.Context, timeout time.Duration) error

	// Subscribe registers the single push-update observer. A later call
	// replaces the earlier observer; Subscribe(nil) clears it. Fan-out to
	// multiple observers is the caller's responsibility.
	Subscribe(cb Callback)

	// Read pulls a fresh reading, bypassing any subscription cache.
	Read(ctx context.Context) (Reading, error)

	// GetValue pulls a fresh value, converted through the declared
	// datatype.
	GetValue(ctx context.Context) (any, error)

	// Write sets the control point to value. A nil value writes the
	// control point's initial value. If wait is true, Write returns only
	// once the write has settled.
	Write(ctx context.Context, value any, wait bool) error

	// SourceName returns a diagnostic identity string for this control
	// point under the given display name, e.g. "soft://mono_bragg".
	SourceName(name string) string
}

// Logger is the logging interface used by control points for events that
// have no caller to propagate to, such as transform failures on the push
// path. Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything; the default until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything. Useful as a
// default for control points built outside this package.
func NopLogger() Logger { return noopLogger{} }
