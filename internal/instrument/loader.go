package instrument

import (
	"fmt"

	bridgemqtt "github.com/halcyonbeam/halcyon-core/internal/bridges/mqtt"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/config"
	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// Load builds the registry declared in cfg: soft signals, MQTT-backed
// motors on broker, and the energy pseudo-axis if enabled. Devices are
// registered but not connected; call Registry.ConnectAll afterwards.
//
// Every device is registered behind a Fanout, so derived signals and
// the telemetry recorder can watch the same device without fighting
// over its single subscription slot.
func Load(cfg config.InstrumentConfig, broker bridgemqtt.Broker, logger signal.Logger) (*Registry, error) {
	registry := NewRegistry()

	for _, sc := range cfg.SoftSignals {
		soft := signal.NewSoftSignal(signal.Datatype(sc.Datatype), sc.Initial)
		soft.Units = sc.Units
		if err := registry.Register(Device{
			Name:   sc.Name,
			Labels: sc.Labels,
			Units:  sc.Units,
			Point:  NewFanout(soft),
		}); err != nil {
			return nil, err
		}
	}

	for _, mc := range cfg.Motors {
		motor, err := buildMotor(mc, broker, logger)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(Device{
			Name:      mc.Name,
			Labels:    mc.Labels,
			Units:     mc.Units,
			Precision: mc.Precision,
			Point:     NewFanout(motor),
		}); err != nil {
			return nil, err
		}
	}

	if cfg.Energy.Enabled {
		mono, err := registry.Point(cfg.Energy.MonoMotor)
		if err != nil {
			return nil, fmt.Errorf("instrument: energy mono motor: %w", err)
		}
		energy, err := NewEnergyPositioner(mono, cfg.Energy.DSpacing)
		if err != nil {
			return nil, err
		}
		energy.SetLogger(logger)
		if err := registry.Register(Device{
			Name:      "energy",
			Labels:    []string{"energy", "baseline"},
			Units:     "eV",
			Precision: 1,
			Point:     NewFanout(energy),
		}); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// buildMotor wires one motor axis: a read-only readback signal, a
// write-only setpoint signal, and the positioner over both.
func buildMotor(mc config.MotorConfig, broker bridgemqtt.Broker, logger signal.Logger) (*Motor, error) {
	readback, err := bridgemqtt.NewSignal(bridgemqtt.SignalConfig{
		Name:          mc.Name + ".readback",
		Datatype:      signal.DatatypeFloat64,
		ReadbackTopic: mc.ReadbackTopic,
		Units:         mc.Units,
		Precision:     mc.Precision,
	}, broker)
	if err != nil {
		return nil, err
	}
	readback.SetLogger(logger)

	// The setpoint signal is write-only; in-position detection is the
	// motor's job, watching the readback against its tolerance.
	setpoint, err := bridgemqtt.NewSignal(bridgemqtt.SignalConfig{
		Name:          mc.Name + ".setpoint",
		Datatype:      signal.DatatypeFloat64,
		SetpointTopic: mc.SetpointTopic,
		Units:         mc.Units,
		Precision:     mc.Precision,
	}, broker)
	if err != nil {
		return nil, err
	}
	setpoint.SetLogger(logger)

	tolerance := mc.Tolerance
	if tolerance == 0 {
		tolerance = 1e-5
	}
	motor, err := NewMotor(mc.Name, setpoint, readback, tolerance)
	if err != nil {
		return nil, err
	}
	motor.SetLogger(logger)
	return motor, nil
}
