// Package auth provides bearer-token authentication and role-based
// authorisation for the gateway's HTTP front door.
//
// Tokens are HS256 JWTs signed with the shared secret from
// security.jwt.secret. Each token carries a subject and a role:
//   - viewer: read bridge summaries, devices, scenes and zone status
//   - operator: viewer plus zone, scene and button control
//   - admin: operator plus button modes and raw communiques
//
// The role-permission mapping is static; there is no user database.
// Tokens are minted out of band with IssueToken (lutrongw token ...).
package auth
