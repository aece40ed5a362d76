package lutron

import (
	"fmt"
	"time"
)

// Shared engine timings.
const (
	// reconnectDelayReset is the pause before reconnecting to a new address.
	reconnectDelayReset = 30 * time.Second

	// reconnectDelayAuthFail is the pause before a fresh connect after the
	// bridge refused or reset the connection.
	reconnectDelayAuthFail = 15 * time.Second

	// reconnectDelayMax caps the transient-failure backoff.
	reconnectDelayMax = 75 * time.Second

	// reconnectDelayStep is the per-attempt increase of the transient backoff.
	reconnectDelayStep = 7500 * time.Millisecond

	// reconnectDelayShort follows an inactivity timeout.
	reconnectDelayShort = 500 * time.Millisecond

	// telnetRetryInterval re-opens a dropped Pro Telnet session.
	telnetRetryInterval = 5 * time.Minute

	pingInterval = 90 * time.Second
	pollInterval = 290 * time.Second
)

// Capability describes what a bridge type speaks and how the engine drives
// it. The engine is the same for every type; only the descriptor differs.
type Capability struct {
	// Type is the bridge type tag.
	Type string

	// Brand is reported in summaries.
	Brand string

	// LEAP reports whether the bridge is reached over TLS. When false the
	// Telnet session is the only transport.
	LEAP bool

	// RequestTimeout bounds list and status requests made by callers.
	RequestTimeout time.Duration

	// ResponseTimeout is the correlator inactivity window.
	ResponseTimeout time.Duration

	// AuthTimeout bounds the Telnet login during initialization, or 0.
	AuthTimeout time.Duration

	// TelnetLogin and TelnetPassword are fixed Telnet credentials, used
	// when the credential bundle does not carry its own.
	TelnetLogin    string
	TelnetPassword string

	discovery discoveryKind
}

// discoveryKind selects the topology discovery sequence.
type discoveryKind int

const (
	// discoveryLEAP walks servers, devices, button groups, buttons,
	// programming models and scenes over LEAP.
	discoveryLEAP discoveryKind = iota
	// discoveryStatic installs the bridge as its only device and waits for
	// the Telnet prompt.
	discoveryStatic
)

// Hybrid drives Caseta and RA2 Select Smart Bridges: LEAP over TLS, plus
// LIP over Telnet on Pro models.
var Hybrid = Capability{
	Type:            TypeHybrid,
	Brand:           "Lutron",
	LEAP:            true,
	RequestTimeout:  5 * time.Second,
	ResponseTimeout: 20 * time.Second,
	TelnetLogin:     "lutron",
	TelnetPassword:  "integration",
	discovery:       discoveryLEAP,
}

// TelnetOnly drives RadioRA 2 and HomeWorks QS processors over LIP alone.
var TelnetOnly = Capability{
	Type:            TypeTelnet,
	Brand:           "Lutron",
	LEAP:            false,
	RequestTimeout:  1500 * time.Millisecond,
	ResponseTimeout: 3 * time.Second,
	AuthTimeout:     10 * time.Second,
	discovery:       discoveryStatic,
}

// CapabilityFor returns the descriptor for a bridge type tag.
func CapabilityFor(bridgeType string) (Capability, error) {
	switch bridgeType {
	case TypeHybrid, "":
		return Hybrid, nil
	case TypeTelnet:
		return TelnetOnly, nil
	default:
		return Capability{}, fmt.Errorf("%w: bridge type %q", ErrUnsupported, bridgeType)
	}
}

// transientBackoff returns the delay for the given attempt count and
// whether the count should advance.
func transientBackoff(tries int) (time.Duration, bool) {
	d := time.Duration(tries+1) * reconnectDelayStep
	if d > reconnectDelayMax {
		return reconnectDelayMax, false
	}
	return d, true
}
