package lutron

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

// LEAP message body types dispatched by the engine.
const (
	BodyPingResponse           = "OnePingResponse"
	BodyServers                = "MultipleServerDefinition"
	BodyServer                 = "OneServerDefinition"
	BodyDevices                = "MultipleDeviceDefinition"
	BodyLIPIdList              = "OneLIPIdListDefinition"
	BodyButtonGroups           = "MultipleButtonGroupDefinition"
	BodyButtons                = "MultipleButtonDefinition"
	BodyProgrammingModel       = "OneProgrammingModelDefinition"
	BodyVirtualButtons         = "MultipleVirtualButtonDefinition"
	BodyZoneStatus             = "OneZoneStatus"
	communiqueException        = "ExceptionResponse"
	statusNoContent            = "204 NoContent"
	statusCreated              = "201 Created"
	serverTypeLIP              = "LIP"
	serverEnabled              = "Enabled"
	singleActionProgramming    = "SingleActionProgrammingModel"
	buttonCommandPressRelease  = "PressAndRelease"
	buttonCommandPressHold     = "PressAndHold"
	buttonCommandRelease       = "Release"
	zoneCommandGoToLevel       = "GoToLevel"
	defaultLEAPButtonOffset    = 100
	leapURLProgrammingModel    = "/programmingmodel/"
	leapURLZone                = "/zone/"
	leapURLDevice              = "/device/"
	leapURLVirtualButton       = "/virtualbutton/"
	leapURLButton              = "/button/"
	leapURLZoneStatusSuffix    = "/status"
	leapURLCommandProcessorSfx = "/commandprocessor"
)

// Href is a LEAP resource reference.
type Href struct {
	Href string `json:"href"`
}

// Communique is one LEAP record.
type Communique struct {
	CommuniqueType string           `json:"CommuniqueType"`
	Header         CommuniqueHeader `json:"Header"`
	Body           json.RawMessage  `json:"Body,omitempty"`
}

// CommuniqueHeader is the LEAP header block.
type CommuniqueHeader struct {
	MessageBodyType string `json:"MessageBodyType,omitempty"`
	StatusCode      string `json:"StatusCode,omitempty"`
	URL             string `json:"Url,omitempty"`
}

// ParseCommunique decodes one framed LEAP record.
func ParseCommunique(raw []byte) (*Communique, error) {
	var c Communique
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &c, nil
}

// DecodeBody unmarshals the communique body into v.
func (c *Communique) DecodeBody(v any) error {
	if len(c.Body) == 0 {
		return fmt.Errorf("%w: %s has no body", ErrProtocol, c.Header.MessageBodyType)
	}
	if err := json.Unmarshal(c.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %w", ErrProtocol, c.Header.MessageBodyType, err)
	}
	return nil
}

// Serial is a device serial number. LEAP sends it as a JSON number, the
// hub sends it as a string; both decode to the decimal text.
type Serial string

// UnmarshalJSON accepts a number or a string.
func (s *Serial) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Serial(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = Serial(n.String())
	return nil
}

// BridgeIDFromSerial derives the stable bridge ID: the serial number as
// eight uppercase hex digits.
func BridgeIDFromSerial(s Serial) string {
	n, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return strings.ToUpper(string(s))
	}
	return fmt.Sprintf("%08X", n)
}

// ServerDefinition describes one intra-bridge server.
type ServerDefinition struct {
	Href          string `json:"href"`
	Type          string `json:"Type"`
	EnableState   string `json:"EnableState"`
	LIPProperties *struct {
		IDs Href `json:"Ids"`
	} `json:"LIPProperties,omitempty"`
}

type serversBody struct {
	Servers []ServerDefinition `json:"Servers"`
}

type serverBody struct {
	Server ServerDefinition `json:"Server"`
}

type devicesBody struct {
	Devices []Device `json:"Devices"`
}

// LIPEntry is one device or zone in the LIP id list.
type LIPEntry struct {
	ID   int    `json:"ID"`
	Name string `json:"Name"`
	Area *struct {
		Name string `json:"Name"`
	} `json:"Area,omitempty"`
}

// LIPIdList is the body of OneLIPIdListDefinition.
type LIPIdList struct {
	Devices []LIPEntry `json:"Devices"`
	Zones   []LIPEntry `json:"Zones"`
}

type lipIDListBody struct {
	LIPIdList LIPIdList `json:"LIPIdList"`
}

// ButtonGroupDefinition is one LEAP button group.
type ButtonGroupDefinition struct {
	Href    string `json:"href"`
	Parent  Href   `json:"Parent"`
	Buttons []Href `json:"Buttons"`
}

type buttonGroupsBody struct {
	ButtonGroups []ButtonGroupDefinition `json:"ButtonGroups"`
}

// ButtonDefinition is one LEAP button.
type ButtonDefinition struct {
	Href             string `json:"href"`
	ButtonNumber     int    `json:"ButtonNumber"`
	Parent           Href   `json:"Parent"`
	ProgrammingModel Href   `json:"ProgrammingModel"`
}

type buttonsBody struct {
	Buttons []ButtonDefinition `json:"Buttons"`
}

type programmingModelBody struct {
	ProgrammingModel struct {
		Href string `json:"href"`
		Type string `json:"ProgrammingModelType"`
	} `json:"ProgrammingModel"`
}

// VirtualButtonDefinition is one LEAP virtual button (scene).
type VirtualButtonDefinition struct {
	Href         string `json:"href"`
	Name         string `json:"Name"`
	IsProgrammed bool   `json:"IsProgrammed"`
}

type virtualButtonsBody struct {
	VirtualButtons []VirtualButtonDefinition `json:"VirtualButtons"`
}

type zoneStatusBody struct {
	ZoneStatus struct {
		Level float64 `json:"Level"`
		Zone  Href    `json:"Zone"`
	} `json:"ZoneStatus"`
}

// hrefNumber extracts N from "<prefix>N", or 0.
func hrefNumber(href, prefix string) int {
	if !strings.HasPrefix(href, prefix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(href, prefix))
	if err != nil {
		return 0
	}
	return n
}

// Digest is the change-detection checksum of a raw reply: CRC-32 (IEEE)
// of the trimmed bytes as lowercase hex.
func Digest(raw []byte) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE(bytes.TrimSpace(raw))), 16)
}

// LEAP request builders. The byte layout matches what the bridges accept,
// including the irregular spacing of the CreateRequest button forms.

func leapRead(url string) []byte {
	return []byte(`{"CommuniqueType":"ReadRequest","Header":{"Url":"` + url + `"}}` + "\n")
}

// PingRequest is the LEAP keepalive.
func PingRequest() []byte { return leapRead("/server/status/ping") }

// ServersRequest reads the intra-bridge server list.
func ServersRequest() []byte { return leapRead("/server") }

// DevicesRequest reads the device list.
func DevicesRequest() []byte { return leapRead("/device") }

// ScenesRequest reads the virtual button list.
func ScenesRequest() []byte { return leapRead("/virtualbutton") }

// ButtonGroupsRequest reads the button group list.
func ButtonGroupsRequest() []byte { return leapRead("/buttongroup") }

// ButtonsRequest reads the button list.
func ButtonsRequest() []byte { return leapRead("/button") }

// ProgrammingModelRequest reads one button programming model.
func ProgrammingModelRequest(n int) []byte {
	return leapRead(leapURLProgrammingModel + strconv.Itoa(n))
}

// LIPIdListRequest reads the LIP id list at the href the LIP server reports.
func LIPIdListRequest(href string) []byte { return leapRead(href) }

// ZoneStatusRequest reads one zone's level.
func ZoneStatusRequest(zone int) []byte {
	return leapRead(leapURLZone + strconv.Itoa(zone) + leapURLZoneStatusSuffix)
}

// EnableServerRequest enables the server at href.
func EnableServerRequest(href string) []byte {
	return []byte(`{"CommuniqueType":"UpdateRequest","Header":{"Url":"` + href +
		`"},"Body":{"Server":{"href":"` + href + `","EnableState":"Enabled"}}}` + "\n")
}

func zoneCommand(zone int, command string) []byte {
	return []byte(`{"CommuniqueType":"CreateRequest","Header":{"Url":"/zone/` + strconv.Itoa(zone) +
		`/commandprocessor"},"Body":{"Command":{"CommandType":` + command + "\n")
}

// ZoneLevelRequest sets a zone to level percent.
func ZoneLevelRequest(zone int, level float64) []byte {
	return zoneCommand(zone, `"GoToLevel","Parameter":[{"Type":"Level","Value":`+
		strconv.FormatFloat(level, 'f', -1, 64)+`}]}}}`)
}

// ZoneChangeRequest starts or stops a ramp; commandType is Raise, Lower or Stop.
func ZoneChangeRequest(zone int, commandType string) []byte {
	return zoneCommand(zone, `"`+commandType+`"}}}`)
}

// VirtualButtonPressRequest activates a scene.
func VirtualButtonPressRequest(n int) []byte {
	return []byte(`{"CommuniqueType": "CreateRequest","Header": {"Url":"/virtualbutton/` + strconv.Itoa(n) +
		`/commandprocessor"},"Body": {"Command": {"CommandType": "PressAndRelease"}}}` + "\n")
}

// ButtonCommandRequest presses, holds or releases a remote's button.
func ButtonCommandRequest(n int, commandType string) []byte {
	return []byte(`{"CommuniqueType": "CreateRequest","Header": {"Url":"/button/` + strconv.Itoa(n) +
		`/commandprocessor"},"Body": {"Command": {"CommandType": "` + commandType + `"}}}` + "\n")
}
