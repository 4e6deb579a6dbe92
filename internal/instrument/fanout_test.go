package instrument

import (
	"context"
	"testing"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

func connectedFanout(t *testing.T, initial float64) (*Fanout, *signal.SoftSignal) {
	t.Helper()
	soft := signal.NewSoftSignal(signal.DatatypeFloat64, initial)
	fan := NewFanout(soft)
	if err := fan.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return fan, soft
}

func TestFanoutDeliversToSubscriberAndObservers(t *testing.T) {
	fan, soft := connectedFanout(t, 1.0)

	var primary, side []float64
	fan.Subscribe(func(_ signal.Reading, value any) {
		primary = append(primary, value.(float64))
	})
	fan.Observe(func(_ signal.Reading, value any) {
		side = append(side, value.(float64))
	})

	if err := soft.Write(context.Background(), 2.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Both saw the replay of the initial value, then the update.
	want := []float64{1.0, 2.0}
	for name, got := range map[string][]float64{"primary": primary, "side": side} {
		if len(got) != len(want) {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s = %v, want %v", name, got, want)
			}
		}
	}
}

func TestFanoutObserveDoesNotDisplaceSubscriber(t *testing.T) {
	fan, soft := connectedFanout(t, 1.0)

	var primary int
	fan.Subscribe(func(signal.Reading, any) { primary++ })
	fan.Observe(func(signal.Reading, any) {})

	before := primary
	if err := soft.Write(context.Background(), 2.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if primary != before+1 {
		t.Errorf("primary callbacks = %d, want %d", primary, before+1)
	}
}

func TestFanoutSubscribeLastWins(t *testing.T) {
	fan, soft := connectedFanout(t, 1.0)

	var first, second int
	fan.Subscribe(func(signal.Reading, any) { first++ })
	fan.Subscribe(func(signal.Reading, any) { second++ })

	firstBefore := first
	if err := soft.Write(context.Background(), 2.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if first != firstBefore {
		t.Error("replaced subscriber still receiving updates")
	}
	if second < 2 {
		t.Errorf("second subscriber callbacks = %d, want replay + update", second)
	}
}

func TestFanoutObserverDetach(t *testing.T) {
	fan, soft := connectedFanout(t, 1.0)

	var calls int
	release := fan.Observe(func(signal.Reading, any) { calls++ })
	release()

	before := calls
	if err := soft.Write(context.Background(), 2.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if calls != before {
		t.Errorf("detached observer called: %d -> %d", before, calls)
	}
}

func TestFanoutConnectClaimsSlotOnce(t *testing.T) {
	fan, soft := connectedFanout(t, 1.0)
	// A second connect (registry ConnectAll racing a derived dependency
	// connect) must not re-claim and double-dispatch.
	if err := fan.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	var calls int
	fan.Subscribe(func(signal.Reading, any) { calls++ })
	if err := soft.Write(context.Background(), 2.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if calls != 2 {
		t.Errorf("callbacks = %d, want 2 (replay + update)", calls)
	}
}

func TestFanoutDelegatesControlPoint(t *testing.T) {
	fan, _ := connectedFanout(t, 14.31)

	if err := fan.Write(context.Background(), 15.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	value, err := fan.GetValue(context.Background())
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if value != 15.0 {
		t.Errorf("value = %v, want 15", value)
	}
	if got := fan.SourceName("mono_bragg"); got != "soft://mono_bragg" {
		t.Errorf("SourceName = %q", got)
	}
}

func TestFanoutAsDerivedDependencySharesUpdates(t *testing.T) {
	fan, soft := connectedFanout(t, 10.0)

	derived, err := signal.NewDerivedSignal(signal.DerivedConfig{
		Datatype:    signal.DatatypeFloat64,
		DerivedFrom: map[string]signal.ControlPoint{"axis": fan},
	})
	if err != nil {
		t.Fatalf("NewDerivedSignal: %v", err)
	}
	if err := derived.Connect(context.Background(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var combined []float64
	derived.Subscribe(func(_ signal.Reading, value any) {
		combined = append(combined, value.(float64))
	})

	// A side observer joining after the derived signal must not steal
	// the derived signal's dependency updates.
	fan.Observe(func(signal.Reading, any) {})

	if err := soft.Write(context.Background(), 11.0, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(combined) == 0 || combined[len(combined)-1] != 11.0 {
		t.Errorf("combined = %v, want final 11", combined)
	}
}
