// Package mqtt exposes instrument process variables published over MQTT
// as control points.
//
// Architecture:
//
//	device gateway ──publish──▶ halcyon/pv/{device}/{field}        (retained)
//	Signal.Write   ──publish──▶ halcyon/pv/{device}/{field}/set
//
// Each Signal subscribes to one readback topic carrying JSON readings
// and optionally publishes to one setpoint topic. Because gateways
// publish readbacks retained, a freshly connected Signal receives the
// current value immediately; Connect waits for that first delivery
// before declaring readiness, mirroring how a channel-access connection
// is only useful once the first monitor event lands.
//
// Signals satisfy signal.ControlPoint, so they compose directly into
// derived signals alongside soft signals and other composites.
package mqtt
