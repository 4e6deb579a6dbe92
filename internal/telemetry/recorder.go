package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/mqtt"
	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// HistoryWriter receives readings for durable history. Satisfied by
// *influxdb.Client; nil disables history.
type HistoryWriter interface {
	WriteReading(signalName string, value float64, severity string, timestamp time.Time)
}

// Publisher pushes retained reading payloads for GUIs. Satisfied by
// *mqtt.Client; nil disables publishing.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// observable is the attachment point offered by instrument.Fanout:
// side observers receive updates without displacing the device's
// subscriber. Devices that do not offer it get a plain subscription.
type observable interface {
	Observe(cb signal.Callback) func()
}

// Recorder watches every device in the registry and forwards each
// combined reading to the history writer and the retained reading
// topics.
//
// Registry devices may already have a subscriber: a derived signal holds
// its dependencies' subscription slots for its push path. The recorder
// therefore attaches as a side observer wherever the device supports it,
// and only falls back to taking the subscription slot on bare control
// points.
type Recorder struct {
	registry *instrument.Registry
	history  HistoryWriter
	pub      Publisher
	topics   mqtt.Topics
	logger   signal.Logger

	mu       sync.Mutex
	releases []func()
}

// readingPayload is the JSON published on reading topics.
type readingPayload struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Units     string    `json:"units,omitempty"`
}

// NewRecorder creates a recorder. Either sink may be nil; a recorder
// with both nil is legal but pointless. Pass a nil logger to silence
// it.
func NewRecorder(registry *instrument.Registry, history HistoryWriter, pub Publisher, logger signal.Logger) *Recorder {
	if logger == nil {
		logger = signal.NopLogger()
	}
	return &Recorder{
		registry: registry,
		history:  history,
		pub:      pub,
		logger:   logger,
	}
}

// Start attaches to every registered device. Devices must already be
// connected; each attachment replays the device's latest reading, so
// the retained topics are primed immediately.
func (r *Recorder) Start() {
	for _, dev := range r.registry.All() {
		r.logger.Debug("recording device", "device", dev.Name)
		cb := r.observer(dev)
		var release func()
		if o, ok := dev.Point.(observable); ok {
			release = o.Observe(cb)
		} else {
			point := dev.Point
			point.Subscribe(cb)
			release = func() { point.Subscribe(nil) }
		}
		r.mu.Lock()
		r.releases = append(r.releases, release)
		r.mu.Unlock()
	}
}

// Stop detaches the recorder from every device, leaving other
// subscribers in place.
func (r *Recorder) Stop() {
	r.mu.Lock()
	releases := r.releases
	r.releases = nil
	r.mu.Unlock()
	for _, release := range releases {
		release()
	}
}

func (r *Recorder) observer(dev instrument.Device) signal.Callback {
	return func(rd signal.Reading, value any) {
		r.record(dev, rd, value)
	}
}

func (r *Recorder) record(dev instrument.Device, rd signal.Reading, value any) {
	if r.history != nil {
		if numeric, ok := asFloat(value); ok {
			r.history.WriteReading(dev.Name, numeric, rd.Severity.String(), rd.Timestamp)
		}
	}

	if r.pub == nil {
		return
	}
	payload, err := json.Marshal(readingPayload{
		Name:      dev.Name,
		Value:     value,
		Timestamp: rd.Timestamp,
		Severity:  rd.Severity.String(),
		Units:     dev.Units,
	})
	if err != nil {
		r.logger.Error("marshalling reading", "device", dev.Name, "error", err)
		return
	}
	if err := r.pub.PublishRetained(r.topics.SignalReading(dev.Name), payload); err != nil {
		r.logger.Warn("publishing reading", "device", dev.Name, "error", err)
	}
}

// asFloat widens numeric values; non-numeric readings skip history but
// still publish.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
