// Package signal provides the control-point abstraction for Halcyon Core.
//
// A control point is an addressable, asynchronously readable and writable
// endpoint: a motor axis setpoint, an ion chamber voltage, a shutter state.
// Physical control points are supplied by protocol bridges (see
// internal/bridges); soft control points live in memory. Both satisfy the
// same narrow ControlPoint interface, so devices compose them freely.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                     ControlPoint interface                    │
//	│   Connect / Subscribe / Read / GetValue / Write / SourceName  │
//	└───────┬──────────────────────┬────────────────────────┬───────┘
//	        │                      │                        │
//	┌───────▼────────┐    ┌────────▼─────────┐    ┌─────────▼────────┐
//	│   SoftSignal   │    │  DerivedSignal   │    │  bridges/mqtt    │
//	│  (in-memory)   │    │ (composite, this │    │  (transport-     │
//	│                │    │  package's core) │    │   backed)        │
//	└────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Derived signals
//
// A DerivedSignal presents one logical control point whose value is a pure
// function of one or more dependency control points. A forward transform
// maps a written value onto per-dependency targets; an inverse transform
// maps the dependencies' current values back to the derived value. Updates
// from the dependencies are fanned in through a per-dependency reading
// cache; once every dependency has reported at least once, each further
// update produces exactly one combined reading for the subscriber.
//
// # Usage
//
//	bragg := signal.NewSoftSignal(signal.DatatypeFloat64, 0.0)
//	energy, err := signal.NewDerivedSignal(signal.DerivedConfig{
//	    Datatype:    signal.DatatypeFloat64,
//	    DerivedFrom: map[string]signal.ControlPoint{"bragg": bragg},
//	    Forward:     energyToBragg,
//	    Inverse:     braggToEnergy,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := energy.Connect(ctx, signal.DefaultTimeout); err != nil {
//	    return err
//	}
//	energy.Subscribe(func(rd signal.Reading, value any) { ... })
//
// # Thread Safety
//
// All control points in this package are safe for concurrent use. Subscriber
// callbacks and user transforms run outside the signals' internal locks;
// they may read other control points but must not reconnect or resubscribe
// the signal that invoked them.
package signal
