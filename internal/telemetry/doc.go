// Package telemetry fans combined signal readings out to observers
// outside the control path: the InfluxDB reading history and retained
// MQTT topics that GUIs watch.
//
// The recorder takes each device's single subscription slot, so it also
// acts as the fan-out point: anything else that wants push updates
// listens on the retained MQTT reading topics rather than subscribing
// to the control point directly.
package telemetry
