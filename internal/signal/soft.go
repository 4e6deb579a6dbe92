package signal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SoftSignal is an in-memory control point with no transport behind it.
// It backs simulated devices and tests, and serves as a plain settable
// value inside composite devices.
//
// A SoftSignal always connects immediately. Subscribing delivers the
// current reading straight away, so observers never wait for a write to
// learn the present value.
type SoftSignal struct {
	datatype     Datatype
	initialValue any

	// Units and Precision are passthrough display metadata; this layer
	// never interprets them.
	Units     string
	Precision int

	mu       sync.Mutex
	reading  Reading
	callback Callback
}

// NewSoftSignal creates a soft control point reporting initialValue until
// the first write. With a nil initialValue, reads return a zero-time
// reading with a nil value until something is written.
func NewSoftSignal(datatype Datatype, initialValue any) *SoftSignal {
	s := &SoftSignal{
		datatype:     datatype,
		initialValue: initialValue,
	}
	if initialValue != nil {
		if converted, err := datatype.Convert(initialValue); err == nil {
			s.reading = Reading{Value: converted, Timestamp: time.Now(), Severity: SeverityNone}
		}
	}
	return s
}

// Connect is immediate for soft signals.
func (s *SoftSignal) Connect(_ context.Context, _ time.Duration) error { return nil }

// Subscribe registers the observer and immediately delivers the current
// reading, if one exists.
func (s *SoftSignal) Subscribe(cb Callback) {
	s.mu.Lock()
	s.callback = cb
	rd := s.reading
	s.mu.Unlock()

	if cb != nil && rd.Value != nil {
		cb(rd, rd.Value)
	}
}

// Read returns the current reading.
func (s *SoftSignal) Read(_ context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, nil
}

// GetValue returns the current value.
func (s *SoftSignal) GetValue(_ context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading.Value, nil
}

// Write stores value as the new reading and notifies the observer.
// A nil value writes the signal's initial value.
func (s *SoftSignal) Write(_ context.Context, value any, _ bool) error {
	if value == nil {
		value = s.initialValue
	}
	converted, err := s.datatype.Convert(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.reading = Reading{Value: converted, Timestamp: time.Now(), Severity: SeverityNone}
	rd := s.reading
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb(rd, rd.Value)
	}
	return nil
}

// SetSeverity overrides the severity attached to the current reading and
// re-notifies the observer. Simulated devices use it to exercise alarm
// paths.
func (s *SoftSignal) SetSeverity(sev Severity) {
	s.mu.Lock()
	s.reading.Severity = sev
	rd := s.reading
	cb := s.callback
	s.mu.Unlock()

	if cb != nil && rd.Value != nil {
		cb(rd, rd.Value)
	}
}

// SourceName returns "soft://<name>".
func (s *SoftSignal) SourceName(name string) string {
	return fmt.Sprintf("soft://%s", name)
}
