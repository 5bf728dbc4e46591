package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
)

// MQTT message types for communication between Gray Logic Core and the
// Tuya bridge. These types implement the bridge interface specification
// (docs/architecture/bridge-interface.md).

// CommandMessage is sent from Core to the bridge to execute a device command.
// Topic: graylogic/command/tuya/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier. When empty it is
	// taken from the topic.
	DeviceID string `json:"device_id,omitempty"`

	// Command is the command name (e.g. "on", "set_level", "set_color").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"level": 50} for set_level
	//   {"hue": 50, "saturation": 100, "level": 50} for set_color
	//   {"kelvin": 4000} for set_color_temperature
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	// Values: "api", "automation", "voice", "scene"
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and sent to the platform.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotSupported      = "NOT_SUPPORTED"
	ErrCodeCloudError        = "CLOUD_ERROR"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/tuya/{device_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("tuya").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g. "UNKNOWN_DEVICE", "CLOUD_ERROR").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// StateMessage is sent from the bridge to Core when device state changes.
// Topic: graylogic/state/tuya/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Events are the normalized attribute events in this update.
	Events []tuya.NormalizedEvent `json:"events"`

	// Protocol is the protocol identifier ("tuya").
	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is sent from the bridge to Core to report operational status.
// Topic: graylogic/health/tuya
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Authenticated reports whether a cloud session is currently held.
	Authenticated bool `json:"authenticated"`

	// Realtime is the push channel state
	// ("disconnected", "connecting", "connected", "subscribed").
	Realtime string `json:"realtime"`

	// DevicesManaged is the number of devices mirrored from the account.
	DevicesManaged int `json:"devices_managed"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// DiscoveryMessage is sent from the bridge to Core to announce the devices
// found on the linked account.
// Topic: graylogic/discovery/tuya
type DiscoveryMessage struct {
	// Timestamp is when discovery was performed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Devices contains the discovered devices.
	Devices []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice represents a device found on the account.
type DiscoveredDevice struct {
	// ID is the platform device identifier.
	ID string `json:"id"`

	// Name is the user-assigned device name.
	Name string `json:"name"`

	// Category is the platform category code (e.g. "dj" for light).
	Category string `json:"category"`

	// Online reports the platform's view of device reachability.
	Online bool `json:"online"`

	// Capabilities lists the derived capabilities
	// (e.g. ["on_off", "dim", "color"]).
	Capabilities []string `json:"capabilities"`
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, deviceID string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    status,
		Protocol:  "tuya",
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, deviceID, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckFailed,
		Protocol:  "tuya",
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates a state message for a device.
func NewStateMessage(deviceID string, events []tuya.NormalizedEvent) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Events:    events,
		Protocol:  "tuya",
	}
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if the bridge disconnects
// unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// capabilitiesFor derives Core-facing capabilities from a device's
// capability model.
func capabilitiesFor(dev tuya.Device) []string {
	seen := make(map[string]bool)
	var caps []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			caps = append(caps, name)
		}
	}

	for _, fn := range dev.Spec.Functions {
		for _, cat := range tuya.CategoriesFor(fn.Code) {
			switch cat {
			case tuya.CategorySwitch:
				add("on_off")
			case tuya.CategoryBrightness:
				add("dim")
			case tuya.CategoryColour:
				add("color")
			case tuya.CategoryColourTemperature:
				add("color_temperature")
			case tuya.CategoryFanSpeed:
				add("fan_speed")
			case tuya.CategoryPosition, tuya.CategoryControl:
				add("position")
			case tuya.CategorySceneSwitch:
				add("button")
			}
		}
	}
	return caps
}
