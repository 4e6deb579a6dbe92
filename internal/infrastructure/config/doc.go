// Package config loads and validates Halcyon Core configuration.
//
// Configuration comes from a single YAML file, with hardcoded defaults
// underneath and HALCYON_* environment variables on top. The instrument
// section declares the beamline's control points and devices; everything
// else configures infrastructure (database, MQTT broker, InfluxDB, API,
// logging).
//
// Validation happens at load time: a misdeclared motor or a dangling
// energy.mono_motor reference fails startup instead of surfacing as a
// nil device hours into a run.
package config
