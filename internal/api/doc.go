// Package api implements the HTTP REST API and WebSocket event stream for the
// Lutron gateway.
//
// This package provides:
//   - REST endpoints for bridge summaries, device and scene lists, zone
//     control, remote buttons and raw communiques
//   - WebSocket hub streaming bridge events as they arrive
//   - JWT bearer authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The server sits beside the MQTT command surface. Both call into the
// gateway's Execute, so an HTTP request and an MQTT command with the same
// operation behave identically. Events reach WebSocket clients through the
// Hub, which the gateway's sink calls for every envelope.
//
// # Security
//
// Every route except /health requires an HS256 bearer token minted with
// `lutrongw token`. WebSocket clients either send the bearer header or
// exchange it for a single-use ticket via POST /api/v1/auth/ws-ticket.
package api
