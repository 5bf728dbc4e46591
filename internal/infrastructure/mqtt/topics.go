package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes per the Gray Logic MQTT specification.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{id}.
// This bridge always publishes under protocol "tuya".
const (
	// TopicPrefix is the base for all Gray Logic topics.
	TopicPrefix = "graylogic"

	// protocolName identifies this bridge in the topic hierarchy.
	protocolName = "tuya"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("bf3a9c...")
//	// Returns: "graylogic/state/tuya/bf3a9c..."
type Topics struct{}

// State returns the topic for normalized state events for a device.
//
// Example: graylogic/state/tuya/bf3a9cde01
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocolName, deviceID)
}

// Command returns the topic the Core uses to command a device.
//
// Example: graylogic/command/tuya/bf3a9cde01
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocolName, deviceID)
}

// CommandPattern returns the wildcard subscription covering all device commands.
//
// Example: graylogic/command/tuya/+
func (Topics) CommandPattern() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocolName)
}

// Ack returns the topic for command acknowledgements.
//
// Example: graylogic/ack/tuya/bf3a9cde01
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocolName, deviceID)
}

// Health returns the topic for bridge health status.
//
// Example: graylogic/health/tuya
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocolName)
}

// Discovery returns the topic for device discovery announcements.
//
// Example: graylogic/discovery/tuya
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocolName)
}

// DeviceID extracts the device id from a state or command topic.
// Returns empty string if the topic does not follow the flat bridge scheme.
func (Topics) DeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != protocolName {
		return ""
	}
	return parts[3]
}
