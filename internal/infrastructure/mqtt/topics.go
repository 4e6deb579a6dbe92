package mqtt

import "fmt"

// Topic prefixes for the Halcyon MQTT hierarchy.
const (
	// TopicPrefix is the root of all Halcyon topics.
	TopicPrefix = "halcyon"

	// TopicPrefixPV is the base for process-variable topics.
	TopicPrefixPV = "halcyon/pv"

	// TopicPrefixSignals is the base for combined-reading topics.
	TopicPrefixSignals = "halcyon/signals"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "halcyon/system"
)

// Topics provides builders for Halcyon MQTT topics, keeping topic naming
// consistent across the codebase.
type Topics struct{}

// PVReadback returns the topic a gateway publishes a readback on.
//
// Example: halcyon/pv/mono_bragg/rbv
func (Topics) PVReadback(device, field string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixPV, device, field)
}

// PVSetpoint returns the topic a setpoint is published to.
//
// Example: halcyon/pv/mono_bragg/val/set
func (Topics) PVSetpoint(device, field string) string {
	return fmt.Sprintf("%s/%s/%s/set", TopicPrefixPV, device, field)
}

// SignalReading returns the topic the core publishes a signal's combined
// reading on.
//
// Example: halcyon/signals/energy/reading
func (Topics) SignalReading(name string) string {
	return fmt.Sprintf("%s/%s/reading", TopicPrefixSignals, name)
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
