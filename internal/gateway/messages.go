package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
)

// Command operations accepted on lutron/command/{bridge}/{op}.
const (
	OpSetLevel   = "setlevel"
	OpRaise      = "raise"
	OpLower      = "lower"
	OpStop       = "stop"
	OpScene      = "scene"
	OpButton     = "button"
	OpButtonMode = "buttonmode"
	OpCommunique = "communique"
	OpRefresh    = "refresh"
	OpDevices    = "devices"
	OpScenes     = "scenes"
	OpStatus     = "status"
	OpSummary    = "summary"
)

// CommandMessage is a hub command for one bridge.
// Topic: lutron/command/{bridge}/{op}
type CommandMessage struct {
	// ID correlates the command with its ack. Assigned when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	// Zone is a zone name or number; DeviceID is the LIP integration ID.
	// Either selects the target of level commands.
	Zone     string `json:"zone,omitempty"`
	DeviceID int    `json:"device_id,omitempty"`

	Level float64 `json:"level,omitempty"`
	Fade  int     `json:"fade,omitempty"`

	// Serial is a remote's serial number or name (integration ID on
	// Telnet-only bridges).
	Serial string        `json:"serial,omitempty"`
	Button int           `json:"button,omitempty"`
	Action lutron.Action `json:"action,omitempty"`

	Scene string `json:"scene,omitempty"`

	Modes    map[int]lutron.ButtonSetting `json:"modes,omitempty"`
	PushMS   int                          `json:"push_ms,omitempty"`
	RepeatMS int                          `json:"repeat_ms,omitempty"`

	Communique string `json:"communique,omitempty"`

	// Reset clears the updated flag on devices and scenes replies.
	Reset bool `json:"reset,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the command was sent to the bridge.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: lutron/ack/{bridge}/{id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Bridge    string    `json:"bridge"`
	Op        string    `json:"op"`
	Status    AckStatus `json:"status"`

	// Result carries the reply of query operations (devices, scenes,
	// status, summary).
	Result any `json:"result,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failed commands.
const (
	ErrCodeUnknownBridge     = "UNKNOWN_BRIDGE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeUnreachable       = "DEVICE_UNREACHABLE"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode classifies err for an ack.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownBridge):
		return ErrCodeUnknownBridge
	case errors.Is(err, ErrUnknownOperation), errors.Is(err, lutron.ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, lutron.ErrInvalidCommunique):
		return ErrCodeInvalidParameters
	case errors.Is(err, lutron.ErrUnknownZone),
		errors.Is(err, lutron.ErrUnknownScene),
		errors.Is(err, lutron.ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, lutron.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, lutron.ErrNotInitialized),
		errors.Is(err, lutron.ErrNotConnected),
		errors.Is(err, lutron.ErrClosed),
		errors.Is(err, ErrStopped):
		return ErrCodeUnreachable
	case errors.Is(err, lutron.ErrUnsupported):
		return ErrCodeUnsupported
	default:
		return ErrCodeBridgeError
	}
}

// NewAck builds an ack for cmd. A nil err means accepted.
func NewAck(bridgeID, op string, cmd CommandMessage, result any, err error) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Bridge:    bridgeID,
		Op:        op,
		Status:    AckAccepted,
		Result:    result,
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Result = nil
		ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	}
	return ack
}

// HealthStatus is a bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports one bridge.
// Topic: lutron/health/{bridge}, QoS 1, retained.
type HealthMessage struct {
	Bridge          string       `json:"bridge"`
	Timestamp       time.Time    `json:"timestamp"`
	Status          HealthStatus `json:"status"`
	Version         string       `json:"version"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	State           string       `json:"state"`
	Address         string       `json:"address"`
	Model           string       `json:"model,omitempty"`
	Initialized     bool         `json:"initialized"`
	Connected       bool         `json:"connected"`
	TelnetConnected bool         `json:"telnet_connected"`
	DevicesManaged  int          `json:"devices_managed"`
	Reason          string       `json:"reason,omitempty"`
}

// healthStatus derives a status from an engine summary.
func healthStatus(s lutron.Summary) (HealthStatus, string) {
	switch {
	case s.Initialized && s.Connected:
		return HealthHealthy, ""
	case !s.Initialized && s.LastError == "":
		return HealthStarting, "initializing"
	case s.LastError != "":
		return HealthDegraded, s.LastError
	default:
		return HealthDegraded, "bridge " + s.State
	}
}

// NewHealthMessage builds a health message from an engine summary.
func NewHealthMessage(s lutron.Summary, version string, devices int, startTime time.Time) HealthMessage {
	status, reason := healthStatus(s)
	return HealthMessage{
		Bridge:          s.BridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         version,
		UptimeSeconds:   int64(time.Since(startTime).Seconds()),
		State:           s.State,
		Address:         s.Address,
		Model:           s.Model,
		Initialized:     s.Initialized,
		Connected:       s.Connected,
		TelnetConnected: s.TelnetUp,
		DevicesManaged:  devices,
		Reason:          reason,
	}
}
