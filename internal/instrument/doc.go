// Package instrument assembles the beamline's control points from
// configuration and holds them in a registry for lookup by name or
// label.
//
// Architecture:
//
//	config.InstrumentConfig ──Load──▶ Registry
//	                                    ├── soft signals   (in-memory)
//	                                    ├── motors         (MQTT-backed axes)
//	                                    └── energy         (derived from Bragg angle)
//
// The instrument is declared in configuration and built once at
// startup. A Motor pairs a setpoint and a readback signal into a single
// positioner; the energy pseudo-axis is a derived signal over the
// monochromator Bragg motor, converting through the crystal's
// d-spacing.
package instrument
