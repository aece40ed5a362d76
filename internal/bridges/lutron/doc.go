// Package lutron implements the Lutron bridge engine for the gateway.
//
// It talks to Caseta and RA2 Select Smart Bridges over LEAP (JSON records on
// a TLS connection, port 8081) and, on Pro models and RadioRA 2 / HomeWorks
// QS processors, over LIP (line commands on a Telnet session, port 23). It
// translates between the bridges and the hub's normalized JSON envelopes.
//
// # Architecture
//
//	┌─────────────┐ commands  ┌──────────────────────┐  LEAP/TLS  ┌──────────┐
//	│   Gateway   │──────────►│        Engine        │◄──────────►│  Lutron  │
//	│ (MQTT, API) │◄──────────│ loop · dir · tracker │◄──────────►│  bridge  │
//	└─────────────┘ envelopes └──────────────────────┘ LIP/Telnet └──────────┘
//
// One Engine drives one bridge. A single loop goroutine owns the topology
// Directory, the response Correlator and the connection state; transport
// readers, timers and public methods post closures into its mailbox.
//
// # Key Responsibilities
//
//   - Connect with credentials from a CredentialSource, resuming TLS
//     sessions across reconnects
//   - Discover devices, zones, remotes and scenes, merging LIP integration
//     IDs into the LEAP device list on Pro bridges
//   - Route zone and button commands over Telnet when a session is up,
//     otherwise over LEAP
//   - Turn raw press and release codes into closed, pushed, held and open
//     gestures
//   - Keep the link alive with pings and detect topology changes by polling
//
// # Bridge Types
//
// The engine is the same for every bridge; a Capability descriptor selects
// the transports, timeouts and discovery sequence:
//
//   - Hybrid (type "lutron"): LEAP, plus Telnet when the bridge reports an
//     enabled LIP server
//   - TelnetOnly (type "lutrontelnet"): Telnet alone, with login and
//     password from the credential bundle
//
// Example:
//
//	engine, err := lutron.NewEngine(lutron.Options{
//	    BridgeID:    "0A1B2C3D",
//	    Type:        lutron.TypeHybrid,
//	    Address:     "192.168.1.40",
//	    Credentials: source,
//	    Sink:        sink,
//	})
//	if err != nil {
//	    return err
//	}
//	defer engine.Stop()
//	if err := engine.Initialize(ctx); err != nil {
//	    return err
//	}
//	err = engine.SetZoneLevel(ctx, "Kitchen:Pendants", 0, 75, 2)
//
// # Thread Safety
//
// Engine and Tracker methods are safe for concurrent use. Directory and
// Correlator are owned by their engine's loop.
package lutron
