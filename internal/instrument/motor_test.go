package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// stubPoint is a scriptable control point for motor and registry tests.
type stubPoint struct {
	connectErr error
	writeErr   error

	mu       sync.Mutex
	reading  signal.Reading
	hasRead  bool
	callback signal.Callback
	writes   []any
}

func (p *stubPoint) Connect(ctx context.Context, timeout time.Duration) error {
	return p.connectErr
}

func (p *stubPoint) Subscribe(cb signal.Callback) {
	p.mu.Lock()
	p.callback = cb
	rd := p.reading
	replay := cb != nil && p.hasRead
	p.mu.Unlock()
	if replay {
		cb(rd, rd.Value)
	}
}

func (p *stubPoint) Read(ctx context.Context) (signal.Reading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reading, nil
}

func (p *stubPoint) GetValue(ctx context.Context) (any, error) {
	rd, err := p.Read(ctx)
	return rd.Value, err
}

func (p *stubPoint) Write(ctx context.Context, value any, wait bool) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.mu.Lock()
	p.writes = append(p.writes, value)
	p.mu.Unlock()
	return nil
}

func (p *stubPoint) SourceName(name string) string { return "stub://" + name }

// push simulates the transport delivering a readback.
func (p *stubPoint) push(value float64) {
	rd := signal.Reading{Value: value, Timestamp: time.Now(), Severity: signal.SeverityNone}
	p.mu.Lock()
	p.reading = rd
	p.hasRead = true
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(rd, value)
	}
}

func (p *stubPoint) written() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.writes...)
}

func connectedMotor(t *testing.T) (*Motor, *stubPoint, *stubPoint) {
	t.Helper()
	setpoint := &stubPoint{}
	readback := &stubPoint{}
	motor, err := NewMotor("mono_bragg", setpoint, readback, 0.01)
	if err != nil {
		t.Fatalf("NewMotor: %v", err)
	}
	if err := motor.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return motor, setpoint, readback
}

func TestNewMotorValidation(t *testing.T) {
	if _, err := NewMotor("m", nil, &stubPoint{}, 0.1); err == nil {
		t.Error("nil setpoint accepted")
	}
	if _, err := NewMotor("m", &stubPoint{}, &stubPoint{}, 0); err == nil {
		t.Error("zero tolerance accepted")
	}
}

func TestMotorConnectFailurePropagates(t *testing.T) {
	bad := &stubPoint{connectErr: errors.New("no gateway")}
	motor, err := NewMotor("m", bad, &stubPoint{}, 0.1)
	if err != nil {
		t.Fatalf("NewMotor: %v", err)
	}
	if err := motor.Connect(context.Background(), time.Second); !errors.Is(err, bad.connectErr) {
		t.Errorf("Connect: got %v, want wrapped connect error", err)
	}
}

func TestMotorWriteNoWait(t *testing.T) {
	motor, setpoint, _ := connectedMotor(t)
	if err := motor.Write(context.Background(), 12.5, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := setpoint.written(); len(got) != 1 || got[0] != 12.5 {
		t.Errorf("setpoint writes = %v, want [12.5]", got)
	}
}

func TestMotorMoveSettlesWithinTolerance(t *testing.T) {
	motor, _, readback := connectedMotor(t)
	readback.push(0.0)

	done := make(chan error, 1)
	go func() {
		done <- motor.Write(context.Background(), 45.0, true)
	}()

	time.Sleep(10 * time.Millisecond)
	readback.push(20.0)   // still moving
	readback.push(44.995) // inside tolerance

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("move never settled")
	}
}

func TestMotorMoveAlreadyInPosition(t *testing.T) {
	motor, _, readback := connectedMotor(t)
	readback.push(45.0)

	// No further readback will arrive; the move must still complete.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := motor.Write(ctx, 45.005, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestMotorMoveTimesOut(t *testing.T) {
	motor, _, readback := connectedMotor(t)
	readback.push(0.0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := motor.Write(ctx, 45.0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Write: got %v, want DeadlineExceeded", err)
	}
}

func TestMotorSetpointFailureAborts(t *testing.T) {
	setpoint := &stubPoint{writeErr: errors.New("publish failed")}
	motor, err := NewMotor("m", setpoint, &stubPoint{}, 0.1)
	if err != nil {
		t.Fatalf("NewMotor: %v", err)
	}
	if err := motor.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := motor.Write(context.Background(), 1.0, true); !errors.Is(err, setpoint.writeErr) {
		t.Errorf("Write: got %v, want setpoint error", err)
	}
}

func TestMotorSubscribeForwardsReadback(t *testing.T) {
	motor, _, readback := connectedMotor(t)
	readback.push(1.0)

	var mu sync.Mutex
	var values []any
	motor.Subscribe(func(rd signal.Reading, value any) {
		mu.Lock()
		values = append(values, value)
		mu.Unlock()
	})
	readback.push(2.0)

	mu.Lock()
	defer mu.Unlock()
	if len(values) != 2 || values[0] != 1.0 || values[1] != 2.0 {
		t.Errorf("values = %v, want [1 2]", values)
	}
}

func TestMotorAsDerivedDependency(t *testing.T) {
	motor, _, readback := connectedMotor(t)
	readback.push(10.0)

	derived, err := signal.NewDerivedSignal(signal.DerivedConfig{
		Datatype:    signal.DatatypeFloat64,
		DerivedFrom: map[string]signal.ControlPoint{"axis": motor},
	})
	if err != nil {
		t.Fatalf("NewDerivedSignal: %v", err)
	}
	if err := derived.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	value, err := derived.GetValue(context.Background())
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if value != 10.0 {
		t.Errorf("value = %v, want 10", value)
	}
}
