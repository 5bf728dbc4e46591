package history

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
)

// WriteEvent records a single normalized attribute event.
//
// Numeric values land in the "value" field; everything else (switch
// states, colour names, shade positions as strings) lands in
// "value_text" so both remain queryable.
//
// Parameters:
//   - deviceID: cloud device identifier
//   - event: the translated attribute event
func (r *Recorder) WriteEvent(deviceID string, event tuya.NormalizedEvent) {
	if !r.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"attribute": event.Name,
	}
	if event.Unit != "" {
		tags["unit"] = event.Unit
	}

	fields := make(map[string]interface{}, 1)
	switch v := event.Value.(type) {
	case float64:
		fields["value"] = v
	case int:
		fields["value"] = float64(v)
	case bool:
		fields["value_text"] = boolText(v)
	default:
		fields["value_text"] = toText(v)
	}

	point := write.NewPoint("device_events", tags, fields, time.Now())
	r.writeAPI.WritePoint(point)
}

// WriteEvents records a batch of events for one device.
func (r *Recorder) WriteEvents(deviceID string, events []tuya.NormalizedEvent) {
	for _, ev := range events {
		r.WriteEvent(deviceID, ev)
	}
}

// WriteLifecycle records a device lifecycle transition
// (online, offline, rename, bind, delete).
func (r *Recorder) WriteLifecycle(deviceID, code string) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_lifecycle",
		map[string]string{
			"device_id": deviceID,
			"code":      code,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// WriteBridgeStatus records the bridge's own health snapshot: realtime
// channel state, authentication state, and managed device count.
func (r *Recorder) WriteBridgeStatus(bridgeID, realtimeState string, authenticated bool, deviceCount int) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_status",
		map[string]string{
			"bridge_id": bridgeID,
		},
		map[string]interface{}{
			"realtime_state": realtimeState,
			"authenticated":  authenticated,
			"device_count":   deviceCount,
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

func boolText(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func toText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
