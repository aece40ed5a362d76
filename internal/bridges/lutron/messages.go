package lutron

import (
	"encoding/json"
	"strconv"
	"time"
)

// Hub envelope body types produced by the engine.
const (
	EventZoneStatus   = BodyZoneStatus
	EventButtonAction = "ButtonAction"
)

// Envelope is the normalized JSON message delivered to the hub.
//
// Example:
//
//	{
//	  "Header": {"MessageBodyType": "OneZoneStatus", "Bridge": "0A1B2C3D"},
//	  "Body": {"ZoneStatus": {"Level": 75, "Zone": {"href": "/zone/4"}}}
//	}
type Envelope struct {
	Header EnvelopeHeader  `json:"Header"`
	Body   json.RawMessage `json:"Body"`
}

// EnvelopeHeader identifies the body type and source bridge.
type EnvelopeHeader struct {
	MessageBodyType string `json:"MessageBodyType"`
	Bridge          string `json:"Bridge"`
	URL             string `json:"Url,omitempty"`
}

// ZoneStatus is a zone's level.
type ZoneStatus struct {
	Level float64 `json:"Level"`
	Zone  Href    `json:"Zone"`
}

// ZoneStatusBody is the body of a OneZoneStatus envelope.
type ZoneStatusBody struct {
	ZoneStatus ZoneStatus `json:"ZoneStatus"`
}

// ButtonActionBody is the body of a ButtonAction envelope.
type ButtonActionBody struct {
	SerialNumber string `json:"SerialNumber"`
	ID           int    `json:"ID"`
	Button       int    `json:"Button"`
	Action       Action `json:"Action"`
}

// ZoneNumber returns N from the zone href, or 0.
func (z ZoneStatus) ZoneNumber() int { return hrefNumber(z.Zone.Href, leapURLZone) }

// NewEnvelope marshals body into an envelope.
func NewEnvelope(bodyType, bridge string, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Header: EnvelopeHeader{MessageBodyType: bodyType, Bridge: bridge},
		Body:   raw,
	}, nil
}

// ZoneStatusEnvelope builds a OneZoneStatus envelope for zone.
func ZoneStatusEnvelope(bridge string, zone int, level float64) Envelope {
	env, _ := NewEnvelope(EventZoneStatus, bridge, ZoneStatusBody{
		ZoneStatus: ZoneStatus{Level: level, Zone: Href{Href: zoneHref(zone)}},
	})
	return env
}

// ButtonActionEnvelope builds a ButtonAction envelope.
func ButtonActionEnvelope(bridge, serial string, deviceID, button int, action Action) Envelope {
	env, _ := NewEnvelope(EventButtonAction, bridge, ButtonActionBody{
		SerialNumber: serial,
		ID:           deviceID,
		Button:       button,
		Action:       action,
	})
	return env
}

// DecodeZoneStatus extracts the zone status from a OneZoneStatus envelope.
func (e Envelope) DecodeZoneStatus() (ZoneStatus, error) {
	var body ZoneStatusBody
	err := json.Unmarshal(e.Body, &body)
	return body.ZoneStatus, err
}

// DecodeButtonAction extracts the action from a ButtonAction envelope.
func (e Envelope) DecodeButtonAction() (ButtonActionBody, error) {
	var body ButtonActionBody
	err := json.Unmarshal(e.Body, &body)
	return body, err
}

func zoneHref(zone int) string {
	return leapURLZone + strconv.Itoa(zone)
}

// HubSink receives normalized events. SendEvent must not block the engine
// for long; delivery failures are the sink's to log.
type HubSink interface {
	SendEvent(env Envelope)
}

// HubSinkFunc adapts a function to HubSink.
type HubSinkFunc func(Envelope)

// SendEvent calls f(env).
func (f HubSinkFunc) SendEvent(env Envelope) { f(env) }

// DeviceList is the reply to a device list request.
type DeviceList struct {
	Devices []Device `json:"Devices"`
	Updated bool     `json:"Updated"`
}

// SceneList is the reply to a scene list request.
type SceneList struct {
	Scenes  []Scene `json:"VirtualButtons"`
	Updated bool    `json:"Updated"`
}

// Summary describes a bridge for the supervisor and front door.
type Summary struct {
	BridgeID    string    `json:"Bridge"`
	Connected   bool      `json:"Connected"`
	Address     string    `json:"Ip"`
	Brand       string    `json:"BridgeBrand"`
	Model       string    `json:"DeviceType"`
	Digest      string    `json:"Digest"`
	State       string    `json:"State"`
	Initialized bool      `json:"Initialized"`
	TelnetUp    bool      `json:"TelnetConnected"`
	LastError   string    `json:"LastError,omitempty"`
	Since       time.Time `json:"Since"`
}
