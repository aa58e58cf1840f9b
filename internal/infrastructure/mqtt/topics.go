package mqtt

import "fmt"

// Topic prefixes for the Trazo MQTT hierarchy.
//
// Inbound signal topics carry external conditions (safety interlocks,
// e-stop, demand-response, telemetry); outbound core topics carry
// resolved setpoint targets and lifecycle events.
const (
	// TopicPrefixSignal is the base for inbound signal topics.
	// Scheme: trazo/signal/{kind}/{scope_kind}/{scope_id}
	TopicPrefixSignal = "trazo/signal"

	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "trazo/core"

	// TopicPrefixTelemetry is the base for measured-value topics.
	TopicPrefixTelemetry = "trazo/telemetry"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "trazo/system"
)

// Topics provides builders for Trazo MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	target := topics.SetpointTarget("pod", "pod-a", "temperature")
//	// Returns: "trazo/core/target/pod/pod-a/temperature"
type Topics struct{}

// =============================================================================
// Inbound Signal Topics
// =============================================================================

// SafetySignal returns the topic for safety interlock assertions on a scope.
//
// Example: trazo/signal/safety/pod/pod-a
func (Topics) SafetySignal(scopeKind, scopeID string) string {
	return fmt.Sprintf("%s/safety/%s/%s", TopicPrefixSignal, scopeKind, scopeID)
}

// EStopSignal returns the topic for e-stop assertions on a scope.
//
// Example: trazo/signal/estop/room/veg-1
func (Topics) EStopSignal(scopeKind, scopeID string) string {
	return fmt.Sprintf("%s/estop/%s/%s", TopicPrefixSignal, scopeKind, scopeID)
}

// DemandResponse returns the topic for demand-response directives on a scope.
//
// Example: trazo/signal/dr/site/main
func (Topics) DemandResponse(scopeKind, scopeID string) string {
	return fmt.Sprintf("%s/dr/%s/%s", TopicPrefixSignal, scopeKind, scopeID)
}

// Telemetry returns the topic for measured values of one pair.
//
// Example: trazo/telemetry/pod/pod-a/temperature
func (Topics) Telemetry(scopeKind, scopeID, parameter string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixTelemetry, scopeKind, scopeID, parameter)
}

// =============================================================================
// Core Topics
// =============================================================================

// SetpointTarget returns the topic the engine publishes resolved targets on.
//
// Example: trazo/core/target/pod/pod-a/temperature
func (Topics) SetpointTarget(scopeKind, scopeID, parameter string) string {
	return fmt.Sprintf("%s/target/%s/%s/%s", TopicPrefixCore, scopeKind, scopeID, parameter)
}

// CoreEvent returns the topic for lifecycle events.
//
// Example: trazo/core/event/override_event
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: trazo/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: trazo/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSafetySignals returns a pattern matching all safety assertions.
//
// Pattern: trazo/signal/safety/+/+
func (Topics) AllSafetySignals() string {
	return fmt.Sprintf("%s/safety/+/+", TopicPrefixSignal)
}

// AllEStopSignals returns a pattern matching all e-stop assertions.
//
// Pattern: trazo/signal/estop/+/+
func (Topics) AllEStopSignals() string {
	return fmt.Sprintf("%s/estop/+/+", TopicPrefixSignal)
}

// AllDemandResponse returns a pattern matching all DR directives.
//
// Pattern: trazo/signal/dr/+/+
func (Topics) AllDemandResponse() string {
	return fmt.Sprintf("%s/dr/+/+", TopicPrefixSignal)
}

// AllTelemetry returns a pattern matching all measured values.
//
// Pattern: trazo/telemetry/+/+/+
func (Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/+/+/+", TopicPrefixTelemetry)
}

// AllSetpointTargets returns a pattern matching all resolved targets.
//
// Pattern: trazo/core/target/+/+/+
func (Topics) AllSetpointTargets() string {
	return fmt.Sprintf("%s/target/+/+/+", TopicPrefixCore)
}

// AllCoreEvents returns a pattern matching all core events.
//
// Pattern: trazo/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Trazo topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: trazo/#
func (Topics) AllTopics() string {
	return "trazo/#"
}
