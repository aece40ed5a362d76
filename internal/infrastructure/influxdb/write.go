package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementZoneLevel    = "zone_level"
	MeasurementButtonAction = "button_action"
	MeasurementBridgeState  = "bridge_state"
)

// ZoneLevelPoint builds a zone_level point.
//
// Tags: bridge_id, zone. Fields: level (0 to 100).
func ZoneLevelPoint(bridgeID string, zone int, level float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementZoneLevel,
		map[string]string{
			"bridge_id": bridgeID,
			"zone":      strconv.Itoa(zone),
		},
		map[string]any{
			"level": level,
		},
		ts,
	)
}

// ButtonActionPoint builds a button_action point, one per gesture.
//
// Tags: bridge_id, serial, button, action. Fields: count (always 1), so
// presses can be summed per window.
func ButtonActionPoint(bridgeID, serial string, button int, action string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementButtonAction,
		map[string]string{
			"bridge_id": bridgeID,
			"serial":    serial,
			"button":    strconv.Itoa(button),
			"action":    action,
		},
		map[string]any{
			"count": 1,
		},
		ts,
	)
}

// BridgeStatePoint builds a bridge_state point from a health sample.
//
// Tags: bridge_id, state. Fields: connected, telnet, devices.
func BridgeStatePoint(bridgeID, state string, connected, telnet bool, devices int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBridgeState,
		map[string]string{
			"bridge_id": bridgeID,
			"state":     state,
		},
		map[string]any{
			"connected": connected,
			"telnet":    telnet,
			"devices":   devices,
		},
		ts,
	)
}

// WriteZoneLevel records a zone level change.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteZoneLevel("0A1B2C3D", 7, 75)
func (c *Client) WriteZoneLevel(bridgeID string, zone int, level float64) {
	c.WritePoint(ZoneLevelPoint(bridgeID, zone, level, time.Now()))
}

// WriteButtonAction records one remote gesture (pushed, held, released...).
func (c *Client) WriteButtonAction(bridgeID, serial string, button int, action string) {
	c.WritePoint(ButtonActionPoint(bridgeID, serial, button, action, time.Now()))
}

// WriteBridgeState records a bridge health sample.
func (c *Client) WriteBridgeState(bridgeID, state string, connected, telnet bool, devices int) {
	c.WritePoint(BridgeStatePoint(bridgeID, state, connected, telnet, devices, time.Now()))
}

// WritePoint queues a prepared point. It is a no-op while disconnected.
func (c *Client) WritePoint(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
}
