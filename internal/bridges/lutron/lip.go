package lutron

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LIP action numbers for #OUTPUT.
const (
	lipOutputSetLevel = 1
	lipOutputRaise    = 2
	lipOutputLower    = 3
	lipOutputStop     = 4
)

// LIP button operations for #DEVICE and ~DEVICE.
const (
	LIPPress       = 3
	LIPRelease     = 4
	LIPHold        = 5
	LIPDoubleTap   = 6
	LIPHoldRelease = 32
)

const lipEOL = "\r\n"

// LIPSetLevel builds "#OUTPUT,id,1,level[,fade]".
func LIPSetLevel(deviceID int, level float64, fadeSeconds int) string {
	cmd := "#OUTPUT," + strconv.Itoa(deviceID) + "," + strconv.Itoa(lipOutputSetLevel) + "," +
		strconv.FormatFloat(level, 'f', -1, 64)
	if fadeSeconds > 0 {
		cmd += "," + strconv.Itoa(fadeSeconds)
	}
	return cmd + lipEOL
}

// LIPChangeLevel builds "#OUTPUT,id,2|3|4" for raise, lower or stop.
func LIPChangeLevel(deviceID int, change LevelChange) (string, error) {
	var code int
	switch change {
	case ChangeRaise:
		code = lipOutputRaise
	case ChangeLower:
		code = lipOutputLower
	case ChangeStop:
		code = lipOutputStop
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, change)
	}
	return "#OUTPUT," + strconv.Itoa(deviceID) + "," + strconv.Itoa(code) + lipEOL, nil
}

// LIPQueryLevel builds "?OUTPUT,id,1".
func LIPQueryLevel(deviceID int) string {
	return "?OUTPUT," + strconv.Itoa(deviceID) + "," + strconv.Itoa(lipOutputSetLevel) + lipEOL
}

// LIPDevice builds "#DEVICE,id,button,op".
func LIPDevice(deviceID, button, op int) string {
	return "#DEVICE," + strconv.Itoa(deviceID) + "," + strconv.Itoa(button) + "," + strconv.Itoa(op) + lipEOL
}

// LIPLogout ends a Telnet session.
func LIPLogout() string { return "LOGOUT" + lipEOL }

// lipPing is the Telnet keepalive; the bridge answers with its prompt.
const lipPing = lipEOL

// LevelChange is a ramp command for a zone.
type LevelChange string

// Ramp commands.
const (
	ChangeRaise LevelChange = "raise"
	ChangeLower LevelChange = "lower"
	ChangeStop  LevelChange = "stop"
)

// ParseLevelChange accepts the hub's command names, case-insensitively.
func ParseLevelChange(s string) (LevelChange, error) {
	switch c := LevelChange(strings.ToLower(strings.TrimSpace(s))); c {
	case ChangeRaise, ChangeLower, ChangeStop:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// leapCommand returns the LEAP CommandType for the change.
func (c LevelChange) leapCommand() string {
	switch c {
	case ChangeRaise:
		return "Raise"
	case ChangeLower:
		return "Lower"
	default:
		return "Stop"
	}
}

// LIPEventKind tags a parsed LIP line.
type LIPEventKind int

// LIP line kinds.
const (
	LIPOther LIPEventKind = iota
	LIPOutput
	LIPDeviceEvent
)

// LIPEvent is a parsed ~OUTPUT or ~DEVICE line.
type LIPEvent struct {
	Kind     LIPEventKind
	DeviceID int
	// Level is set for LIPOutput, normalized to a whole percent.
	Level int
	// Button and Op are set for LIPDeviceEvent.
	Button int
	Op     int
}

// ParseLIPLine decodes one Telnet line. Lines other than ~OUTPUT and ~DEVICE
// yield LIPOther; malformed monitored lines return ErrProtocol.
func ParseLIPLine(line string) (LIPEvent, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")
	switch fields[0] {
	case "~OUTPUT":
		if len(fields) < 4 {
			return LIPEvent{}, fmt.Errorf("%w: short output line %q", ErrProtocol, line)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return LIPEvent{}, fmt.Errorf("%w: output id in %q", ErrProtocol, line)
		}
		if fields[2] != strconv.Itoa(lipOutputSetLevel) {
			return LIPEvent{Kind: LIPOther}, nil
		}
		level, err := strconv.ParseFloat(fields[3], 64)
		return LIPEvent{Kind: LIPOutput, DeviceID: id, Level: normalizeLevel(level, err)}, nil

	case "~DEVICE":
		if len(fields) < 4 {
			return LIPEvent{}, fmt.Errorf("%w: short device line %q", ErrProtocol, line)
		}
		var nums [3]int
		for i := range nums {
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return LIPEvent{}, fmt.Errorf("%w: device field %d in %q", ErrProtocol, i+1, line)
			}
			nums[i] = n
		}
		return LIPEvent{Kind: LIPDeviceEvent, DeviceID: nums[0], Button: nums[1], Op: nums[2]}, nil
	}
	return LIPEvent{Kind: LIPOther}, nil
}

// normalizeLevel maps a reported level to a whole percent in [0,100]: zero
// or unparsable is 0, any positive level below one is 1.
func normalizeLevel(level float64, err error) int {
	if err != nil || math.IsNaN(level) || level <= 0 {
		return 0
	}
	if level < 1 {
		return 1
	}
	return int(math.Round(clampLevel(level)))
}

// clampLevel bounds a commanded level to [0,100].
func clampLevel(level float64) float64 {
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
