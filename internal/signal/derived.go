package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Forward maps a value written to a derived signal onto target values for
// its dependencies. The returned map is keyed by dependency argument name
// and may omit dependencies that should not move. deps is the derived
// signal's dependency reference set, passed so transforms can consult
// other control points (current positions, limits) while calculating.
type Forward func(ctx context.Context, value any, deps map[string]ControlPoint) (map[string]any, error)

// Inverse maps the dependencies' current values (keyed by dependency
// argument name) back to the derived signal's value.
type Inverse func(values map[string]any, deps map[string]ControlPoint) (any, error)

// DerivedConfig describes a derived signal. DerivedFrom must be non-empty;
// everything else is optional.
type DerivedConfig struct {
	// Datatype converts values at the derived signal's boundary.
	Datatype Datatype

	// DerivedFrom maps transform-argument names to the underlying control
	// points. The mapping is fixed for the signal's lifetime.
	DerivedFrom map[string]ControlPoint

	// Forward translates written values into per-dependency targets.
	// Defaults to broadcasting the written value to every dependency.
	Forward Forward

	// Inverse translates dependency values into the derived value.
	// Defaults to the elementwise median of numeric dependency values,
	// which makes a single-dependency signal a transparent passthrough.
	Inverse Inverse

	// InitialValue is written when a caller writes nil.
	InitialValue any

	// Units and Precision are passthrough display metadata.
	Units     string
	Precision int
}

// DerivedSignal presents one logical control point whose value is a pure
// function of one or more dependency control points.
//
// On Connect, every dependency is connected concurrently and subscribed;
// each dependency update lands in a per-dependency reading cache. Once all
// dependencies have reported at least once, every further update produces
// exactly one combined reading for the subscriber. The combined reading
// carries the maximum timestamp and maximum severity over the dependency
// readings: a derived quantity is only as fresh and as valid as its
// stalest, worst input.
//
// Pull reads bypass the cache entirely and read every dependency fresh.
// Writes run the forward transform and apply all dependency targets
// concurrently; a failing dependency write never cancels its siblings.
type DerivedSignal struct {
	datatype     Datatype
	deps         map[string]ControlPoint
	depNames     []string // sorted; fixes source-string and write order
	forward      Forward
	inverse      Inverse
	initialValue any
	units        string
	precision    int
	logger       Logger

	mu        sync.Mutex
	connected bool
	cache     map[string]Reading // latest reading per dependency name
	callback  Callback
	latest    *Reading // last combined reading, for late-subscriber replay
}

// NewDerivedSignal validates cfg and builds the signal. It fails
// immediately with ErrNoDependencies for an empty dependency set; a
// composite control point over nothing is meaningless and deferring the
// failure to Connect would only obscure where the mistake was made.
func NewDerivedSignal(cfg DerivedConfig) (*DerivedSignal, error) {
	if len(cfg.DerivedFrom) == 0 {
		return nil, ErrNoDependencies
	}

	deps := make(map[string]ControlPoint, len(cfg.DerivedFrom))
	names := make([]string, 0, len(cfg.DerivedFrom))
	for name, dep := range cfg.DerivedFrom {
		if dep == nil {
			return nil, fmt.Errorf("%w: dependency %q is nil", ErrNoDependencies, name)
		}
		deps[name] = dep
		names = append(names, name)
	}
	sort.Strings(names)

	s := &DerivedSignal{
		datatype:     cfg.Datatype,
		deps:         deps,
		depNames:     names,
		forward:      cfg.Forward,
		inverse:      cfg.Inverse,
		initialValue: cfg.InitialValue,
		units:        cfg.Units,
		precision:    cfg.Precision,
		logger:       noopLogger{},
		cache:        make(map[string]Reading, len(deps)),
	}
	if s.forward == nil {
		s.forward = broadcastForward
	}
	if s.inverse == nil {
		s.inverse = medianInverse
	}
	return s, nil
}

// SetLogger sets the logger used for push-path events that have no caller
// to propagate to.
func (s *DerivedSignal) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// Units returns the display units passed at construction.
func (s *DerivedSignal) Units() string { return s.units }

// Precision returns the display precision passed at construction.
func (s *DerivedSignal) Precision() int { return s.precision }

// Connect connects every dependency concurrently, then subscribes to
// their update streams. Total wall time is bounded by the slowest
// dependency, not the sum. If any dependency fails to connect within
// timeout the whole connect fails and no subscriptions are retained, so
// no partially-connected composite ever processes updates.
func (s *DerivedSignal) Connect(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.depNames {
		dep := s.deps[name]
		g.Go(func() error {
			if err := dep.Connect(gctx, timeout); err != nil {
				return fmt.Errorf("connecting dependency %q: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return err
	}

	// Subscriptions are registered only after every dependency is up, so
	// an update can never be processed before connect completes. Each
	// handler is bound to its dependency's argument name; the name, not
	// the live handle, keys the cache.
	for _, name := range s.depNames {
		dep := s.deps[name]
		dep.Subscribe(s.childCallback(name))
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// childCallback builds the update handler for one dependency.
func (s *DerivedSignal) childCallback(name string) Callback {
	return func(rd Reading, _ any) {
		s.updateReading(name, rd)
	}
}

// updateReading stores a dependency reading and, if every dependency has
// now reported, emits a combined reading to the subscriber. Delivering the
// same reading twice is harmless and arrival order across dependencies
// does not matter: the combined reading is recomputed from a full cache
// snapshot each time. The inverse transform and the subscriber callback
// run outside the lock so they may consult the dependencies.
func (s *DerivedSignal) updateReading(name string, rd Reading) {
	s.mu.Lock()
	s.cache[name] = rd
	if len(s.cache) < len(s.depNames) {
		// Not yet known is an expected transient state, not a fault.
		s.mu.Unlock()
		return
	}
	snapshot := make(map[string]Reading, len(s.cache))
	for dep, cached := range s.cache {
		snapshot[dep] = cached
	}
	s.mu.Unlock()

	combined, err := s.combine(snapshot)
	if err != nil {
		// No caller to propagate to on the push path.
		s.logger.Error("combining dependency readings failed", "dependency", name, "error", err)
		return
	}

	s.mu.Lock()
	s.latest = &combined
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb(combined, combined.Value)
	}
}

// Subscribe registers the single observer; a later registration replaces
// the earlier one. If a combined reading already exists, the observer
// receives it immediately, so a late subscriber does not wait for the next
// natural dependency update.
func (s *DerivedSignal) Subscribe(cb Callback) {
	s.mu.Lock()
	s.callback = cb
	latest := s.latest
	s.mu.Unlock()

	if cb != nil && latest != nil {
		cb(*latest, latest.Value)
	}
}

// combine computes the combined reading from a full set of dependency
// readings.
func (s *DerivedSignal) combine(readings map[string]Reading) (Reading, error) {
	values := make(map[string]any, len(readings))
	var timestamp time.Time
	severity := SeverityNone
	for name, rd := range readings {
		values[name] = rd.Value
		if rd.Timestamp.After(timestamp) {
			timestamp = rd.Timestamp
		}
		if rd.Severity > severity {
			severity = rd.Severity
		}
	}

	value, err := s.inverse(values, s.deps)
	if err != nil {
		return Reading{}, err
	}
	converted, err := s.datatype.Convert(value)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: converted, Timestamp: timestamp, Severity: severity}, nil
}

// Read pulls every dependency fresh, concurrently, and combines the
// results. The subscription cache is never consulted, so a pull read
// reflects current hardware state even with no subscription active.
func (s *DerivedSignal) Read(ctx context.Context) (Reading, error) {
	readings := make(map[string]Reading, len(s.depNames))
	var readingsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.depNames {
		dep := s.deps[name]
		g.Go(func() error {
			rd, err := dep.Read(gctx)
			if err != nil {
				return fmt.Errorf("reading dependency %q: %w", name, err)
			}
			readingsMu.Lock()
			readings[name] = rd
			readingsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Reading{}, err
	}

	combined, err := s.combine(readings)
	if err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	s.latest = &combined
	s.mu.Unlock()
	return combined, nil
}

// GetValue pulls a fresh combined value.
func (s *DerivedSignal) GetValue(ctx context.Context) (any, error) {
	rd, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return rd.Value, nil
}

// Write converts value through the declared datatype, runs the forward
// transform, and applies every dependency target concurrently. All writes
// are allowed to settle even when one fails, so the hardware is never left
// half-commanded because a sibling aborted early; the error, raised after
// all attempts finish, identifies each failing dependency and matches
// ErrWriteFailed.
func (s *DerivedSignal) Write(ctx context.Context, value any, wait bool) error {
	if value == nil {
		value = s.initialValue
	}
	converted, err := s.datatype.Convert(value)
	if err != nil {
		return err
	}

	targets, err := s.forward(ctx, converted, s.deps)
	if err != nil {
		// Transform errors are a device-author contract violation and
		// propagate unmodified.
		return err
	}
	for name := range targets {
		if _, ok := s.deps[name]; !ok {
			return fmt.Errorf("%w: forward transform targeted %q", ErrUnknownDependency, name)
		}
	}

	var wg sync.WaitGroup
	writeErrs := make([]error, len(s.depNames))
	for i, name := range s.depNames {
		target, ok := targets[name]
		if !ok {
			continue
		}
		dep := s.deps[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dep.Write(ctx, target, wait); err != nil {
				writeErrs[i] = &WriteError{Dependency: name, Err: err}
			}
		}()
	}
	wg.Wait()

	return errors.Join(writeErrs...)
}

// SourceName reports the derived signal's identity plus the ordered list
// of dependency argument names, so operators can tell apart composite
// points built over different dependency sets without reading code.
func (s *DerivedSignal) SourceName(name string) string {
	return fmt.Sprintf("derived://%s(%s)", name, strings.Join(s.depNames, ","))
}

// broadcastForward is the default forward transform: every dependency
// receives the value written to the derived signal. Suitable wherever the
// derived quantity maps one-to-one onto each axis, e.g. a gap opened
// symmetrically by opposing blades.
func broadcastForward(_ context.Context, value any, deps map[string]ControlPoint) (map[string]any, error) {
	targets := make(map[string]any, len(deps))
	for name := range deps {
		targets[name] = value
	}
	return targets, nil
}

// medianInverse is the default inverse transform: the median of the
// numeric dependency values. With a single dependency it is a transparent
// passthrough; with several it is deterministic and outlier-resistant
// where "first wins" would be arbitrary. For an even count the median is
// the mean of the two middle values. A lone non-numeric value passes
// through; multiple non-numeric values have no sensible combination and
// need an explicit inverse.
func medianInverse(values map[string]any, _ map[string]ControlPoint) (any, error) {
	floats := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := toFloat64(v)
		if !ok {
			floats = nil
			break
		}
		floats = append(floats, f)
	}
	if floats != nil {
		return median(floats), nil
	}
	if len(values) == 1 {
		for _, v := range values {
			return v, nil
		}
	}
	return nil, ErrNoInverse
}

// median returns the middle value of vs, averaging the two middle values
// for even counts. vs must be non-empty; it is reordered in place.
func median(vs []float64) float64 {
	sort.Float64s(vs)
	mid := len(vs) / 2
	if len(vs)%2 == 1 {
		return vs[mid]
	}
	return (vs[mid-1] + vs[mid]) / 2
}
