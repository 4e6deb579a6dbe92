package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// Fanout wraps a control point so several consumers can watch its
// updates. The underlying subscription contract is single-slot, which
// breaks down as soon as a registered device is both recorded by
// telemetry and a dependency of a derived signal: whichever consumer
// subscribes last silently steals the other's updates. Fanout claims
// the underlying slot once, on Connect, and dispatches every update to
// its own subscriber plus any number of side observers.
//
// Fanout is itself a control point. Its Subscribe keeps the single-slot
// contract (last registration wins, nil clears), so derived signals can
// depend on a Fanout without knowing it is one; consumers that must not
// displace anyone, like the telemetry recorder, use Observe instead.
//
// All methods are safe for concurrent use.
type Fanout struct {
	point signal.ControlPoint

	mu          sync.Mutex
	claimed     bool
	primary     signal.Callback
	observers   map[int]signal.Callback
	nextID      int
	latest      signal.Reading
	latestValue any
	hasLatest   bool
}

// NewFanout wraps point. The wrapper is transparent until Connect, which
// takes the underlying subscription slot.
func NewFanout(point signal.ControlPoint) *Fanout {
	return &Fanout{point: point, observers: make(map[int]signal.Callback)}
}

// Connect connects the underlying point and claims its subscription
// slot. Connecting twice is harmless; the slot is only claimed once, so
// concurrent connects (a registry ConnectAll racing a derived signal's
// dependency connect) cannot double-subscribe.
func (f *Fanout) Connect(ctx context.Context, timeout time.Duration) error {
	if err := f.point.Connect(ctx, timeout); err != nil {
		return err
	}
	f.mu.Lock()
	claim := !f.claimed
	f.claimed = true
	f.mu.Unlock()
	if claim {
		f.point.Subscribe(f.dispatch)
	}
	return nil
}

// dispatch receives every underlying update and forwards it to the
// subscriber and all observers. Callbacks run outside the lock.
func (f *Fanout) dispatch(rd signal.Reading, value any) {
	f.mu.Lock()
	f.latest = rd
	f.latestValue = value
	f.hasLatest = true
	cbs := make([]signal.Callback, 0, len(f.observers)+1)
	if f.primary != nil {
		cbs = append(cbs, f.primary)
	}
	for _, cb := range f.observers {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(rd, value)
	}
}

// Subscribe registers the single primary observer, replaying the latest
// update if one has been delivered. A later call replaces the earlier
// observer; side observers registered through Observe are unaffected.
func (f *Fanout) Subscribe(cb signal.Callback) {
	f.mu.Lock()
	f.primary = cb
	rd, value := f.latest, f.latestValue
	replay := cb != nil && f.hasLatest
	f.mu.Unlock()

	if replay {
		cb(rd, value)
	}
}

// Observe adds a side observer that receives every update alongside the
// primary subscriber, replaying the latest update if one has been
// delivered. The returned function removes the observer.
func (f *Fanout) Observe(cb signal.Callback) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.observers[id] = cb
	rd, value := f.latest, f.latestValue
	replay := f.hasLatest
	f.mu.Unlock()

	if replay {
		cb(rd, value)
	}
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

// Read pulls a fresh reading from the underlying point.
func (f *Fanout) Read(ctx context.Context) (signal.Reading, error) {
	return f.point.Read(ctx)
}

// GetValue pulls a fresh value from the underlying point.
func (f *Fanout) GetValue(ctx context.Context) (any, error) {
	return f.point.GetValue(ctx)
}

// Write passes through to the underlying point.
func (f *Fanout) Write(ctx context.Context, value any, wait bool) error {
	return f.point.Write(ctx, value, wait)
}

// SourceName passes through; the wrapper has no identity of its own.
func (f *Fanout) SourceName(name string) string {
	return f.point.SourceName(name)
}

var _ signal.ControlPoint = (*Fanout)(nil)
