package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// defaultWriteSettle bounds how long a waiting write blocks for the
// readback to move when the caller's context carries no deadline.
const defaultWriteSettle = 30 * time.Second

// Broker is the slice of the MQTT client the bridge needs. Satisfied by
// *infrastructure/mqtt.Client; narrow so tests can fake the broker.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// SignalConfig describes one process variable exposed over MQTT.
type SignalConfig struct {
	Name          string
	Datatype      signal.Datatype
	ReadbackTopic string
	SetpointTopic string // empty means read-only
	QoS           byte
	InitialValue  any
	Units         string
	Precision     int
}

// wireReading is the JSON payload gateways publish on readback topics.
// A missing timestamp is stamped with the local receive time.
type wireReading struct {
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

// wireSetpoint is the JSON payload published on setpoint topics.
type wireSetpoint struct {
	Value any `json:"value"`
}

// Signal is a control point backed by a pair of MQTT topics. It
// satisfies signal.ControlPoint and composes into derived signals.
//
// All methods are safe for concurrent use. The subscriber callback and
// write waiters run outside the signal's internal lock.
type Signal struct {
	cfg    SignalConfig
	broker Broker

	mu        sync.Mutex
	connected bool
	latest    signal.Reading
	hasLatest bool
	callback  signal.Callback
	waiters   []chan signal.Reading

	logger signal.Logger
}

// NewSignal creates a signal over the given broker. Connect must be
// called before the signal is usable.
//
// A signal with only a readback topic is read-only; one with only a
// setpoint topic is write-only (a command channel with no feedback).
func NewSignal(cfg SignalConfig, broker Broker) (*Signal, error) {
	if cfg.ReadbackTopic == "" && cfg.SetpointTopic == "" {
		return nil, fmt.Errorf("bridges/mqtt: signal %q: a topic is required", cfg.Name)
	}
	if broker == nil {
		return nil, fmt.Errorf("bridges/mqtt: signal %q: broker required", cfg.Name)
	}
	return &Signal{cfg: cfg, broker: broker, logger: signal.NopLogger()}, nil
}

// SetLogger replaces the signal's logger. Pass nil to silence it.
func (s *Signal) SetLogger(l signal.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		l = signal.NopLogger()
	}
	s.logger = l
}

// Connect subscribes to the readback topic and waits for the first
// delivery. Gateways publish readbacks retained, so under normal
// operation this returns almost immediately; a timeout means the
// gateway has never published this PV.
func (s *Signal) Connect(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = signal.DefaultTimeout
	}

	// Write-only signals have nothing to subscribe to; readiness is the
	// broker connection itself.
	if s.cfg.ReadbackTopic == "" {
		if !s.broker.IsConnected() {
			return fmt.Errorf("%w: %q: broker not connected", signal.ErrConnectTimeout, s.cfg.Name)
		}
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		return nil
	}

	first := make(chan signal.Reading, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, first)
	s.mu.Unlock()

	if err := s.broker.Subscribe(s.cfg.ReadbackTopic, s.cfg.QoS, s.onReadback); err != nil {
		s.removeWaiter(first)
		return fmt.Errorf("bridges/mqtt: signal %q: %w", s.cfg.Name, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-first:
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		s.teardown(first)
		return fmt.Errorf("bridges/mqtt: signal %q: %w", s.cfg.Name, ctx.Err())
	case <-timer.C:
		s.teardown(first)
		return fmt.Errorf("%w: %q: no retained reading on %s within %s",
			signal.ErrConnectTimeout, s.cfg.Name, s.cfg.ReadbackTopic, timeout)
	}
}

func (s *Signal) teardown(waiter chan signal.Reading) {
	s.removeWaiter(waiter)
	if err := s.broker.Unsubscribe(s.cfg.ReadbackTopic); err != nil {
		s.logger.Warn("unsubscribe failed", "signal", s.cfg.Name, "error", err)
	}
}

func (s *Signal) removeWaiter(waiter chan signal.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == waiter {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// onReadback decodes one readback payload, updates the cached reading,
// releases write waiters, and notifies the subscriber.
func (s *Signal) onReadback(topic string, payload []byte) {
	rd, err := s.decode(payload)
	if err != nil {
		s.logger.Warn("dropping readback", "signal", s.cfg.Name, "topic", topic, "error", err)
		return
	}

	s.mu.Lock()
	s.latest = rd
	s.hasLatest = true
	cb := s.callback
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w <- rd
	}
	if cb != nil {
		cb(rd, rd.Value)
	}
}

func (s *Signal) decode(payload []byte) (signal.Reading, error) {
	var wire wireReading
	if err := json.Unmarshal(payload, &wire); err != nil {
		return signal.Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	value, err := s.cfg.Datatype.Convert(wire.Value)
	if err != nil {
		return signal.Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	ts := time.Now()
	if wire.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
		if err != nil {
			return signal.Reading{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidPayload, wire.Timestamp)
		}
		ts = parsed
	}
	return signal.Reading{
		Value:     value,
		Timestamp: ts,
		Severity:  signal.ParseSeverity(wire.Severity),
	}, nil
}

// Subscribe registers the push-update observer, replaying the latest
// reading if one has been delivered.
func (s *Signal) Subscribe(cb signal.Callback) {
	s.mu.Lock()
	s.callback = cb
	rd := s.latest
	replay := cb != nil && s.hasLatest
	s.mu.Unlock()

	if replay {
		cb(rd, rd.Value)
	}
}

// Read returns the most recent reading delivered by the gateway. The
// readback topic is retained, so this is the device's current state as
// of its last report; MQTT has no request/reply, so there is nothing
// fresher to pull.
func (s *Signal) Read(ctx context.Context) (signal.Reading, error) {
	if err := ctx.Err(); err != nil {
		return signal.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return signal.Reading{}, fmt.Errorf("%w: %q", signal.ErrNotConnected, s.cfg.Name)
	}
	if s.cfg.ReadbackTopic == "" {
		return signal.Reading{}, fmt.Errorf("%w: %q is write-only", ErrNoReading, s.cfg.Name)
	}
	if !s.hasLatest {
		return signal.Reading{}, fmt.Errorf("%w: %q", ErrNoReading, s.cfg.Name)
	}
	return s.latest, nil
}

// GetValue returns the most recent value.
func (s *Signal) GetValue(ctx context.Context) (any, error) {
	rd, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return rd.Value, nil
}

// Write publishes value to the setpoint topic. A nil value writes the
// configured initial value. With wait set, Write blocks until the next
// readback arrives, which is the closest MQTT gets to put-completion.
func (s *Signal) Write(ctx context.Context, value any, wait bool) error {
	if s.cfg.SetpointTopic == "" {
		return fmt.Errorf("%w: %q", ErrReadOnly, s.cfg.Name)
	}
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return fmt.Errorf("%w: %q", signal.ErrNotConnected, s.cfg.Name)
	}

	if value == nil {
		if s.cfg.InitialValue == nil {
			return fmt.Errorf("%w: %q", ErrNoInitialValue, s.cfg.Name)
		}
		value = s.cfg.InitialValue
	}
	converted, err := s.cfg.Datatype.Convert(value)
	if err != nil {
		return fmt.Errorf("bridges/mqtt: signal %q: %w", s.cfg.Name, err)
	}

	payload, err := json.Marshal(wireSetpoint{Value: converted})
	if err != nil {
		return fmt.Errorf("bridges/mqtt: signal %q: %w", s.cfg.Name, err)
	}

	var settled chan signal.Reading
	if wait {
		if s.cfg.ReadbackTopic == "" {
			return fmt.Errorf("bridges/mqtt: signal %q: cannot wait without a readback topic", s.cfg.Name)
		}
		settled = make(chan signal.Reading, 1)
		s.mu.Lock()
		s.waiters = append(s.waiters, settled)
		s.mu.Unlock()
	}

	if err := s.broker.Publish(s.cfg.SetpointTopic, payload, s.cfg.QoS, false); err != nil {
		if wait {
			s.removeWaiter(settled)
		}
		return fmt.Errorf("bridges/mqtt: signal %q: %w", s.cfg.Name, err)
	}
	if !wait {
		return nil
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWriteSettle)
		defer cancel()
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		s.removeWaiter(settled)
		return fmt.Errorf("bridges/mqtt: signal %q: write not settled: %w", s.cfg.Name, ctx.Err())
	}
}

// SourceName identifies the signal by its display name and primary
// topic, e.g. "mqtt://mono_bragg@halcyon/pv/mono_bragg/rbv".
func (s *Signal) SourceName(name string) string {
	topic := s.cfg.ReadbackTopic
	if topic == "" {
		topic = s.cfg.SetpointTopic
	}
	return fmt.Sprintf("mqtt://%s@%s", name, topic)
}

// Name returns the configured signal name.
func (s *Signal) Name() string { return s.cfg.Name }

// Units returns the engineering units, if configured.
func (s *Signal) Units() string { return s.cfg.Units }

// Precision returns the display precision, if configured.
func (s *Signal) Precision() int { return s.cfg.Precision }

var _ signal.ControlPoint = (*Signal)(nil)
