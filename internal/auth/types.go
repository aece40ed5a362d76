package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer may read bridge state.
	RoleViewer Role = "viewer"

	// RoleOperator may also drive zones, scenes and buttons.
	RoleOperator Role = "operator"

	// RoleAdmin may also change button behaviour and send raw commands.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Authentication errors.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
