package instrument

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// defaultMoveTimeout bounds a waiting move when the caller's context
// carries no deadline. Slow axes should pass their own deadline.
const defaultMoveTimeout = 2 * time.Minute

// Motor pairs a setpoint and a readback control point into one
// positioner. Reads and subscriptions come from the readback; writes go
// to the setpoint, and a waiting write blocks until the readback lands
// within Tolerance of the target.
//
// Motor satisfies signal.ControlPoint, so a motor can serve directly as
// a derived-signal dependency (the energy pseudo-axis does exactly
// that).
type Motor struct {
	name      string
	setpoint  signal.ControlPoint
	readback  signal.ControlPoint
	tolerance float64

	mu       sync.Mutex
	latest   signal.Reading
	hasRead  bool
	callback signal.Callback
	moves    []*moveWaiter

	logger signal.Logger
}

// moveWaiter tracks one in-flight waiting move.
type moveWaiter struct {
	target    float64
	tolerance float64
	done      chan signal.Reading
}

// NewMotor creates a positioner from its setpoint and readback control
// points. Tolerance must be positive.
func NewMotor(name string, setpoint, readback signal.ControlPoint, tolerance float64) (*Motor, error) {
	if setpoint == nil || readback == nil {
		return nil, fmt.Errorf("instrument: motor %q: setpoint and readback required", name)
	}
	if tolerance <= 0 {
		return nil, fmt.Errorf("instrument: motor %q: tolerance must be positive, got %v", name, tolerance)
	}
	return &Motor{
		name:      name,
		setpoint:  setpoint,
		readback:  readback,
		tolerance: tolerance,
		logger:    signal.NopLogger(),
	}, nil
}

// SetLogger replaces the motor's logger. Pass nil to silence it.
func (m *Motor) SetLogger(l signal.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l == nil {
		l = signal.NopLogger()
	}
	m.logger = l
}

// Connect connects both underlying control points concurrently, then
// takes the readback's subscription slot for move tracking and
// fan-through to the motor's own subscriber.
func (m *Motor) Connect(ctx context.Context, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.setpoint.Connect(gctx, timeout) })
	g.Go(func() error { return m.readback.Connect(gctx, timeout) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("instrument: motor %q: %w", m.name, err)
	}
	m.readback.Subscribe(m.onReadback)
	return nil
}

// onReadback tracks readback updates: settle in-flight moves whose
// target has been reached, then forward to the subscriber.
func (m *Motor) onReadback(rd signal.Reading, value any) {
	position, isNumeric := asFloat(value)

	m.mu.Lock()
	m.latest = rd
	m.hasRead = true
	cb := m.callback
	logger := m.logger
	pendingMoves := len(m.moves)
	var settled []*moveWaiter
	if isNumeric {
		remaining := m.moves[:0]
		for _, mv := range m.moves {
			if math.Abs(position-mv.target) <= mv.tolerance {
				settled = append(settled, mv)
			} else {
				remaining = append(remaining, mv)
			}
		}
		m.moves = remaining
	}
	m.mu.Unlock()

	if !isNumeric && pendingMoves > 0 {
		logger.Warn("non-numeric readback while moves pending",
			"motor", m.name, "value", value)
	}
	for _, mv := range settled {
		mv.done <- rd
	}
	if cb != nil {
		cb(rd, value)
	}
}

// Subscribe registers the push-update observer, replaying the latest
// readback if one has been delivered.
func (m *Motor) Subscribe(cb signal.Callback) {
	m.mu.Lock()
	m.callback = cb
	rd := m.latest
	replay := cb != nil && m.hasRead
	m.mu.Unlock()

	if replay {
		cb(rd, rd.Value)
	}
}

// Read pulls a fresh reading from the readback.
func (m *Motor) Read(ctx context.Context) (signal.Reading, error) {
	return m.readback.Read(ctx)
}

// GetValue pulls the current position from the readback.
func (m *Motor) GetValue(ctx context.Context) (any, error) {
	return m.readback.GetValue(ctx)
}

// Write commands a move. With wait set, it blocks until the readback
// reports a position within Tolerance of the target, or the context
// expires. Writes without wait return as soon as the setpoint is
// accepted.
func (m *Motor) Write(ctx context.Context, value any, wait bool) error {
	if !wait {
		return m.setpoint.Write(ctx, value, false)
	}

	target, ok := asFloat(value)
	if !ok {
		return fmt.Errorf("instrument: motor %q: non-numeric target %v (%T)", m.name, value, value)
	}

	mv := &moveWaiter{target: target, tolerance: m.tolerance, done: make(chan signal.Reading, 1)}
	m.mu.Lock()
	m.moves = append(m.moves, mv)
	m.mu.Unlock()

	if err := m.setpoint.Write(ctx, value, false); err != nil {
		m.removeMove(mv)
		return err
	}

	// Already in position: the axis will not necessarily publish a new
	// readback for a zero-length move.
	m.mu.Lock()
	if m.hasRead {
		if pos, ok := asFloat(m.latest.Value); ok && math.Abs(pos-target) <= m.tolerance {
			m.removeMoveLocked(mv)
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultMoveTimeout)
		defer cancel()
	}
	select {
	case <-mv.done:
		return nil
	case <-ctx.Done():
		m.removeMove(mv)
		return fmt.Errorf("instrument: motor %q: move to %v not settled: %w", m.name, target, ctx.Err())
	}
}

func (m *Motor) removeMove(mv *moveWaiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeMoveLocked(mv)
}

func (m *Motor) removeMoveLocked(mv *moveWaiter) {
	for i, existing := range m.moves {
		if existing == mv {
			m.moves = append(m.moves[:i], m.moves[i+1:]...)
			return
		}
	}
}

// SourceName identifies the motor by its underlying control points.
func (m *Motor) SourceName(name string) string {
	return fmt.Sprintf("motor://%s(%s, %s)",
		name, m.setpoint.SourceName(name+".setpoint"), m.readback.SourceName(name+".readback"))
}

// Name returns the motor's registry name.
func (m *Motor) Name() string { return m.name }

// Tolerance returns the in-position tolerance.
func (m *Motor) Tolerance() float64 { return m.tolerance }

// asFloat widens any numeric value to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

var _ signal.ControlPoint = (*Motor)(nil)
