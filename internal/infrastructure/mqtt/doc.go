// Package mqtt wraps the paho MQTT client for Halcyon Core.
//
// MQTT is the transport between the core and the control-system gateways:
// gateways publish process-variable readbacks onto pv topics and accept
// setpoints on command topics, and the core publishes combined signal
// readings back out for displays.
//
// # Topic hierarchy
//
//	halcyon/pv/{device}/{field}        readbacks from gateways (retained)
//	halcyon/pv/{device}/{field}/set    setpoints to gateways
//	halcyon/signals/{name}/reading     combined readings from the core (retained)
//	halcyon/system/status              online/offline status (retained, LWT)
//
// # Reliability
//
// The client auto-reconnects with exponential backoff, restores all
// subscriptions after a reconnect, and carries a Last Will so displays
// can tell a crashed core from a quiet one.
package mqtt
