package auth

import "testing"

func TestHasPermission(t *testing.T) {
	all := []Permission{
		PermBridgeRead, PermZoneOperate, PermSceneExecute,
		PermButtonOperate, PermBridgeManage, PermRawCommand,
	}
	granted := map[Role][]Permission{
		RoleViewer:   {PermBridgeRead},
		RoleOperator: {PermBridgeRead, PermZoneOperate, PermSceneExecute, PermButtonOperate},
		RoleAdmin:    all,
	}

	for role, perms := range granted {
		t.Run(string(role), func(t *testing.T) {
			has := make(map[Permission]bool)
			for _, p := range perms {
				has[p] = true
			}
			for _, p := range all {
				if got := HasPermission(role, p); got != has[p] {
					t.Errorf("HasPermission(%s, %s) = %v, want %v", role, p, got, has[p])
				}
			}
		})
	}
}

func TestHasPermission_UnknownRole(t *testing.T) {
	if HasPermission("guest", PermBridgeRead) {
		t.Error("unknown role should have no permissions")
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleOperator)
	if len(perms) != 4 {
		t.Fatalf("len(PermissionsForRole(operator)) = %d, want 4", len(perms))
	}
	perms[0] = PermRawCommand
	if HasPermission(RoleOperator, PermRawCommand) {
		t.Error("PermissionsForRole() returned the internal slice")
	}
	if PermissionsForRole("guest") != nil {
		t.Error("PermissionsForRole(unknown) should be nil")
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleViewer, true},
		{RoleOperator, true},
		{RoleAdmin, true},
		{"owner", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidRole(tt.role); got != tt.want {
			t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}
