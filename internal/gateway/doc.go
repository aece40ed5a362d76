// Package gateway supervises the configured Lutron bridges and connects them
// to the hub.
//
// A Gateway owns one lutron.Engine per bridge in the configuration. It:
//   - Initializes every bridge concurrently and retries failed starts
//   - Fans each engine envelope out to MQTT, WebSocket clients and InfluxDB
//   - Executes hub commands from lutron/command/{bridge}/{op} and acknowledges
//     them on lutron/ack/{bridge}/{id}
//   - Publishes retained health for each bridge on an interval
//   - Applies discovered address changes to known bridges
//
// The same Execute path serves MQTT commands and the HTTP front door, so both
// accept the same operations and return the same errors.
//
// MQTT Topics:
//
//	lutron/event/{bridge}/{type}     engine envelopes (QoS 1)
//	lutron/state/{bridge}/zone/{n}   last zone level (retained)
//	lutron/command/{bridge}/{op}     hub commands
//	lutron/ack/{bridge}/{id}         command results
//	lutron/health/{bridge}           bridge health (retained)
package gateway
