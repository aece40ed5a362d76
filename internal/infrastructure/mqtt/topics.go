package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots the gateway topic tree when none is configured.
const DefaultTopicPrefix = "lutron"

// Topics provides builders for the gateway's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Every topic hangs off a single prefix:
//
//	topics := mqtt.NewTopics("lutron")
//	topics.Event("0A1B2C3D", "ZoneStatus")
//	// Returns: "lutron/event/0A1B2C3D/ZoneStatus"
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix, or DefaultTopicPrefix when
// prefix is empty. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// =============================================================================
// Bridge Topics
// =============================================================================

// Event returns the topic for a bridge's hub envelopes of one type.
//
// Example: lutron/event/0A1B2C3D/ButtonAction
func (t Topics) Event(bridgeID, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.Prefix, bridgeID, eventType)
}

// ZoneState returns the retained state topic of one zone.
//
// Example: lutron/state/0A1B2C3D/zone/7
func (t Topics) ZoneState(bridgeID string, zone int) string {
	return fmt.Sprintf("%s/state/%s/zone/%d", t.Prefix, bridgeID, zone)
}

// Command returns the topic for commands to a bridge.
//
// Example: lutron/command/0A1B2C3D/setlevel
func (t Topics) Command(bridgeID, op string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix, bridgeID, op)
}

// Ack returns the topic for a command acknowledgement.
//
// Example: lutron/ack/0A1B2C3D/6f1c...
func (t Topics) Ack(bridgeID, commandID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", t.Prefix, bridgeID, commandID)
}

// Health returns the retained health topic of a bridge.
//
// Example: lutron/health/0A1B2C3D
func (t Topics) Health(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", t.Prefix, bridgeID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the gateway status topic carrying the LWT.
//
// Example: lutron/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Prefix)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching commands to every bridge.
//
// Pattern: lutron/command/+/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", t.Prefix)
}

// AllEvents returns a pattern matching every bridge event.
//
// Pattern: lutron/event/#
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/#", t.Prefix)
}

// AllHealth returns a pattern matching every bridge health message.
//
// Pattern: lutron/health/+
func (t Topics) AllHealth() string {
	return fmt.Sprintf("%s/health/+", t.Prefix)
}

// ParseCommand splits a command topic into its bridge ID and operation.
// It reports false for topics outside the command tree.
func (t Topics) ParseCommand(topic string) (bridgeID, op string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
