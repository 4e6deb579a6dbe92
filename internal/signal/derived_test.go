package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockPoint is a test control point with scriptable connect and write
// behaviour. Unlike SoftSignal it does not replay a reading on Subscribe,
// which lets tests drive the completeness gate explicitly.
type mockPoint struct {
	mu           sync.Mutex
	connectErr   error
	connectDelay time.Duration
	writeErr     error
	reading      Reading
	writes       []any
	cb           Callback
	subscribed   bool
}

func (m *mockPoint) Connect(ctx context.Context, _ time.Duration) error {
	if m.connectDelay > 0 {
		select {
		case <-time.After(m.connectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.connectErr
}

func (m *mockPoint) Subscribe(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
	m.subscribed = true
}

func (m *mockPoint) Read(_ context.Context) (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading, nil
}

func (m *mockPoint) GetValue(_ context.Context) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading.Value, nil
}

func (m *mockPoint) Write(_ context.Context, value any, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, value)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.reading = Reading{Value: value, Timestamp: time.Now(), Severity: SeverityNone}
	return nil
}

func (m *mockPoint) SourceName(name string) string { return "mock://" + name }

// push delivers a reading through the subscription, as the transport would.
func (m *mockPoint) push(rd Reading) {
	m.mu.Lock()
	m.reading = rd
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(rd, rd.Value)
	}
}

func (m *mockPoint) setReading(rd Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading = rd
}

func (m *mockPoint) wroteValues() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.writes))
	copy(out, m.writes)
	return out
}

// emissions records combined readings delivered to a subscriber.
type emissions struct {
	mu       sync.Mutex
	readings []Reading
}

func (e *emissions) callback(rd Reading, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readings = append(e.readings, rd)
}

func (e *emissions) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.readings)
}

func (e *emissions) last() Reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readings[len(e.readings)-1]
}

func newConnectedDerived(t *testing.T, cfg DerivedConfig) *DerivedSignal {
	t.Helper()
	s, err := NewDerivedSignal(cfg)
	if err != nil {
		t.Fatalf("NewDerivedSignal() error = %v", err)
	}
	if err := s.Connect(context.Background(), DefaultTimeout); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s
}

func TestNewDerivedSignalEmptyDependencies(t *testing.T) {
	_, err := NewDerivedSignal(DerivedConfig{Datatype: DatatypeFloat64})
	if !errors.Is(err, ErrNoDependencies) {
		t.Fatalf("NewDerivedSignal() error = %v, want ErrNoDependencies", err)
	}
}

func TestCompletenessGating(t *testing.T) {
	a := &mockPoint{}
	b := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"a": a, "b": b},
	})

	var got emissions
	s.Subscribe(got.callback)

	a.push(Reading{Value: 1.0, Timestamp: time.Now(), Severity: SeverityNone})
	if got.count() != 0 {
		t.Fatalf("emission before all dependencies reported: got %d, want 0", got.count())
	}

	b.push(Reading{Value: 3.0, Timestamp: time.Now(), Severity: SeverityNone})
	if got.count() != 1 {
		t.Fatalf("emissions after completeness = %d, want 1", got.count())
	}

	// Every further single-dependency update triggers exactly one emission.
	a.push(Reading{Value: 5.0, Timestamp: time.Now(), Severity: SeverityNone})
	if got.count() != 2 {
		t.Fatalf("emissions after further update = %d, want 2", got.count())
	}
	if got.last().Value != 4.0 {
		t.Errorf("combined value = %v, want 4 (median of 5 and 3)", got.last().Value)
	}
}

func TestSingleDependencyPassthrough(t *testing.T) {
	dep := NewSoftSignal(DatatypeFloat64, 3.5)
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"axis": dep},
	})

	ctx := context.Background()
	value, err := s.GetValue(ctx)
	if err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	direct, _ := dep.GetValue(ctx)
	if value != direct {
		t.Errorf("GetValue() = %v, want dependency value %v", value, direct)
	}

	if err := s.Write(ctx, 7.25, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	after, _ := dep.GetValue(ctx)
	if after != 7.25 {
		t.Errorf("dependency value after Write = %v, want 7.25", after)
	}
}

func TestDefaultBroadcastAndMedian(t *testing.T) {
	a := &mockPoint{}
	b := &mockPoint{}
	c := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"a": a, "b": b, "c": c},
	})
	ctx := context.Background()

	if err := s.Write(ctx, 5.0, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for name, dep := range map[string]*mockPoint{"a": a, "b": b, "c": c} {
		writes := dep.wroteValues()
		if len(writes) != 1 || writes[0] != 5.0 {
			t.Errorf("dependency %s writes = %v, want [5]", name, writes)
		}
	}

	a.setReading(Reading{Value: 4.0, Timestamp: time.Now()})
	b.setReading(Reading{Value: 5.0, Timestamp: time.Now()})
	c.setReading(Reading{Value: 9.0, Timestamp: time.Now()})
	value, err := s.GetValue(ctx)
	if err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	if value != 5.0 {
		t.Errorf("GetValue() = %v, want median 5", value)
	}
}

func TestMedianEvenCount(t *testing.T) {
	deps := map[string]ControlPoint{}
	points := []*mockPoint{{}, {}, {}, {}}
	values := []float64{1, 3, 7, 20}
	names := []string{"a", "b", "c", "d"}
	for i, p := range points {
		p.setReading(Reading{Value: values[i], Timestamp: time.Now()})
		deps[names[i]] = p
	}
	s := newConnectedDerived(t, DerivedConfig{Datatype: DatatypeFloat64, DerivedFrom: deps})

	value, err := s.GetValue(context.Background())
	if err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	// Even counts average the two middle values.
	if value != 5.0 {
		t.Errorf("GetValue() = %v, want 5 (mean of 3 and 7)", value)
	}
}

func TestCombinedTimestampAndSeverity(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	a := &mockPoint{}
	b := &mockPoint{}
	a.setReading(Reading{Value: 1.0, Timestamp: t1, Severity: SeverityMinor})
	b.setReading(Reading{Value: 2.0, Timestamp: t2, Severity: SeverityMajor})

	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"a": a, "b": b},
	})

	rd, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !rd.Timestamp.Equal(t2) {
		t.Errorf("combined timestamp = %v, want %v", rd.Timestamp, t2)
	}
	if rd.Severity != SeverityMajor {
		t.Errorf("combined severity = %v, want major", rd.Severity)
	}
}

func TestWriteFaultIsolation(t *testing.T) {
	broken := &mockPoint{writeErr: errors.New("bus rejected value")}
	healthy := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"bad": broken, "good": healthy},
	})

	err := s.Write(context.Background(), 2.0, true)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed", err)
	}
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Write() error %v does not carry a *WriteError", err)
	}
	if writeErr.Dependency != "bad" {
		t.Errorf("failing dependency = %q, want %q", writeErr.Dependency, "bad")
	}

	// The sibling write is not rolled back.
	writes := healthy.wroteValues()
	if len(writes) != 1 || writes[0] != 2.0 {
		t.Errorf("healthy dependency writes = %v, want [2]", writes)
	}
}

func TestLateSubscriberReplay(t *testing.T) {
	a := &mockPoint{}
	b := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"a": a, "b": b},
	})

	// Completeness is reached with no subscriber registered; the reading
	// is cached but not buffered anywhere else.
	a.push(Reading{Value: 2.0, Timestamp: time.Now()})
	b.push(Reading{Value: 4.0, Timestamp: time.Now()})

	var got emissions
	s.Subscribe(got.callback)
	if got.count() != 1 {
		t.Fatalf("emissions on late subscribe = %d, want immediate replay of 1", got.count())
	}
	if got.last().Value != 3.0 {
		t.Errorf("replayed value = %v, want 3", got.last().Value)
	}
}

func TestOrderIndependence(t *testing.T) {
	values := map[string]float64{"a": 2, "b": 8, "c": 11}
	orders := [][]string{
		{"a", "b", "c"},
		{"c", "b", "a"},
		{"b", "c", "a"},
	}

	for _, order := range orders {
		a := &mockPoint{}
		b := &mockPoint{}
		c := &mockPoint{}
		points := map[string]*mockPoint{"a": a, "b": b, "c": c}
		s := newConnectedDerived(t, DerivedConfig{
			Datatype:    DatatypeFloat64,
			DerivedFrom: map[string]ControlPoint{"a": a, "b": b, "c": c},
		})
		var got emissions
		s.Subscribe(got.callback)

		for _, name := range order {
			points[name].push(Reading{Value: values[name], Timestamp: time.Now()})
		}
		if got.last().Value != 8.0 {
			t.Errorf("order %v: final combined value = %v, want 8", order, got.last().Value)
		}
	}
}

func TestConnectTimeout(t *testing.T) {
	slow := &mockPoint{connectDelay: 500 * time.Millisecond}
	fast := &mockPoint{}
	s, err := NewDerivedSignal(DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"slow": slow, "fast": fast},
	})
	if err != nil {
		t.Fatalf("NewDerivedSignal() error = %v", err)
	}

	err = s.Connect(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	// No partial-success state: neither dependency is subscribed.
	if slow.subscribed || fast.subscribed {
		t.Error("dependencies subscribed after failed connect")
	}
}

func TestConnectFailurePropagatesDependency(t *testing.T) {
	bad := &mockPoint{connectErr: errors.New("ioc unreachable")}
	s, err := NewDerivedSignal(DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"bad": bad},
	})
	if err != nil {
		t.Fatalf("NewDerivedSignal() error = %v", err)
	}
	if err := s.Connect(context.Background(), time.Second); err == nil {
		t.Fatal("Connect() succeeded with a failing dependency")
	}
}

func TestForwardErrorPropagatesUnmodified(t *testing.T) {
	transformErr := errors.New("energy out of range")
	dep := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"bragg": dep},
		Forward: func(context.Context, any, map[string]ControlPoint) (map[string]any, error) {
			return nil, transformErr
		},
	})

	if err := s.Write(context.Background(), 1.0, true); !errors.Is(err, transformErr) {
		t.Fatalf("Write() error = %v, want forward transform error", err)
	}
	if len(dep.wroteValues()) != 0 {
		t.Error("dependency written despite forward transform failure")
	}
}

func TestForwardUnknownTarget(t *testing.T) {
	dep := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"bragg": dep},
		Forward: func(context.Context, any, map[string]ControlPoint) (map[string]any, error) {
			return map[string]any{"undulator": 1.0}, nil
		},
	})

	if err := s.Write(context.Background(), 1.0, true); !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("Write() error = %v, want ErrUnknownDependency", err)
	}
}

func TestInverseErrorPropagatesOnPullRead(t *testing.T) {
	transformErr := errors.New("degenerate geometry")
	dep := &mockPoint{}
	dep.setReading(Reading{Value: 1.0, Timestamp: time.Now()})
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"bragg": dep},
		Inverse: func(map[string]any, map[string]ControlPoint) (any, error) {
			return nil, transformErr
		},
	})

	if _, err := s.Read(context.Background()); !errors.Is(err, transformErr) {
		t.Fatalf("Read() error = %v, want inverse transform error", err)
	}
}

func TestWriteNilUsesInitialValue(t *testing.T) {
	dep := &mockPoint{}
	s := newConnectedDerived(t, DerivedConfig{
		Datatype:     DatatypeFloat64,
		DerivedFrom:  map[string]ControlPoint{"axis": dep},
		InitialValue: 1.5,
	})

	if err := s.Write(context.Background(), nil, true); err != nil {
		t.Fatalf("Write(nil) error = %v", err)
	}
	writes := dep.wroteValues()
	if len(writes) != 1 || writes[0] != 1.5 {
		t.Errorf("dependency writes = %v, want [1.5]", writes)
	}
}

func TestSourceNameListsDependencies(t *testing.T) {
	s, err := NewDerivedSignal(DerivedConfig{
		Datatype: DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{
			"gap": &mockPoint{}, "bragg": &mockPoint{}, "offset": &mockPoint{},
		},
	})
	if err != nil {
		t.Fatalf("NewDerivedSignal() error = %v", err)
	}
	want := "derived://energy(bragg,gap,offset)"
	if got := s.SourceName("energy"); got != want {
		t.Errorf("SourceName() = %q, want %q", got, want)
	}
}

func TestCustomTransformsRoundTrip(t *testing.T) {
	voltage := NewSoftSignal(DatatypeFloat64, 0.0)
	squared := newConnectedDerived(t, DerivedConfig{
		Datatype:    DatatypeFloat64,
		DerivedFrom: map[string]ControlPoint{"voltage": voltage},
		Forward: func(_ context.Context, value any, _ map[string]ControlPoint) (map[string]any, error) {
			v, _ := toFloat64(value)
			return map[string]any{"voltage": v / 2}, nil
		},
		Inverse: func(values map[string]any, _ map[string]ControlPoint) (any, error) {
			v, _ := toFloat64(values["voltage"])
			return v * 2, nil
		},
	})
	ctx := context.Background()

	if err := squared.Write(ctx, 10.0, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	raw, _ := voltage.GetValue(ctx)
	if raw != 5.0 {
		t.Errorf("dependency value = %v, want 5", raw)
	}
	derived, err := squared.GetValue(ctx)
	if err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	if derived != 10.0 {
		t.Errorf("derived value = %v, want 10", derived)
	}
}
