package auth

// Permission represents a named capability on the front door.
type Permission string

// Permission constants.
const (
	PermBridgeRead    Permission = "bridge:read"
	PermZoneOperate   Permission = "zone:operate"
	PermSceneExecute  Permission = "scene:execute"
	PermButtonOperate Permission = "button:operate"
	PermBridgeManage  Permission = "bridge:manage"
	PermRawCommand    Permission = "bridge:raw"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermBridgeRead,
	},
	RoleOperator: {
		PermBridgeRead,
		PermZoneOperate,
		PermSceneExecute,
		PermButtonOperate,
	},
	RoleAdmin: {
		PermBridgeRead,
		PermZoneOperate,
		PermSceneExecute,
		PermButtonOperate,
		PermBridgeManage,
		PermRawCommand,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
